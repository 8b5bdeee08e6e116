package text

import (
	"strings"
	"unicode"
)

const (
	DefaultMaxSize = 1000
	DefaultOverlap = 200
)

// SplitSentences splits text on sentence-terminal punctuation (., !, ?)
// followed by whitespace. The terminator stays with its sentence.
func SplitSentences(text string) []string {
	var sentences []string
	var buf strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		buf.WriteRune(r)

		if r == '.' || r == '!' || r == '?' {
			atEnd := i == len(runes)-1
			if atEnd || unicode.IsSpace(runes[i+1]) {
				s := strings.TrimSpace(buf.String())
				if s != "" {
					sentences = append(sentences, s)
				}
				buf.Reset()
			}
		}
	}

	if s := strings.TrimSpace(buf.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// Chunk greedily accumulates sentences into chunks of at most maxSize
// characters, then prepends the trailing overlap characters of each chunk's
// predecessor (taken from the pre-overlap text) so that no sentence is
// isolated at a cut point.
//
// A single sentence longer than maxSize is emitted as its own oversized
// chunk rather than looping forever.
func Chunk(text string, maxSize, overlap int) []string {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var raw []string
	var buf string

	for _, sentence := range sentences {
		if buf == "" {
			if len(sentence) > maxSize {
				raw = append(raw, sentence)
				continue
			}
			buf = sentence
			continue
		}

		candidate := buf + " " + sentence
		if len(candidate) > maxSize {
			raw = append(raw, buf)
			if len(sentence) > maxSize {
				raw = append(raw, sentence)
				buf = ""
			} else {
				buf = sentence
			}
			continue
		}
		buf = candidate
	}
	if buf != "" {
		raw = append(raw, buf)
	}

	if len(raw) <= 1 || overlap <= 0 {
		return raw
	}

	// Overlap pass: prefix each chunk (except the first) with the tail of
	// the previous pre-overlap chunk.
	out := make([]string, len(raw))
	out[0] = raw[0]
	for i := 1; i < len(raw); i++ {
		prev := raw[i-1]
		tail := prev
		if len(prev) > overlap {
			tail = prev[len(prev)-overlap:]
		}
		out[i] = tail + " " + raw[i]
	}
	return out
}
