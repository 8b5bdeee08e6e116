// Package secrets keeps provider API keys encrypted at rest and decrypts
// them only immediately before use.
package secrets

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrKeyNotFound = errors.New("no api key stored for provider")

type Store struct {
	db   *sql.DB
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
	}
}

// New derives the cipher key from the process secret. The secret can be any
// non-empty string; it is stretched with SHA-256 to the cipher's key size.
func New(db *sql.DB, processSecret string) (*Store, error) {
	if processSecret == "" {
		return nil, errors.New("process secret is empty")
	}
	key := sha256.Sum256([]byte(processSecret))
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, err
	}
	return &Store{db: db, aead: aead}, nil
}

// Set encrypts and upserts the API key for a provider.
func (s *Store) Set(ctx context.Context, provider, apiKey string) error {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	ciphertext := s.aead.Seal(nil, nonce, []byte(apiKey), []byte(provider))

	query := `
		INSERT INTO provider_keys (provider, nonce, ciphertext, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (provider) DO UPDATE SET nonce = $2, ciphertext = $3, updated_at = NOW()`
	_, err := s.db.ExecContext(ctx, query, provider, nonce, ciphertext)
	return err
}

// Get decrypts the stored API key for a provider.
func (s *Store) Get(ctx context.Context, provider string) (string, error) {
	var nonce, ciphertext []byte
	query := `SELECT nonce, ciphertext FROM provider_keys WHERE provider = $1`
	err := s.db.QueryRowContext(ctx, query, provider).Scan(&nonce, &ciphertext)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, provider)
	}
	if err != nil {
		return "", err
	}

	plaintext, err := s.aead.Open(nil, nonce, ciphertext, []byte(provider))
	if err != nil {
		return "", fmt.Errorf("decrypt api key for %s: %w", provider, err)
	}
	return string(plaintext), nil
}

// Delete removes a provider's key.
func (s *Store) Delete(ctx context.Context, provider string) error {
	query := `DELETE FROM provider_keys WHERE provider = $1`
	_, err := s.db.ExecContext(ctx, query, provider)
	return err
}
