package config

const (
	// TopicIngestTask is the NSQ topic for ingestion requests. One message
	// per startIngestion call, carrying the source ID.
	TopicIngestTask = "ingest.task"

	// TopicIngestProgress is the NSQ topic for best-effort progress
	// broadcasts emitted by the orchestrator while a source is processing.
	TopicIngestProgress = "ingest.progress"
)
