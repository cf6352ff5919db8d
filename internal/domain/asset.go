package domain

import "time"

// Asset is the durable result of a successful job.
type Asset struct {
	ID          string
	JobID       string
	WorkspaceID string
	StorageKey  string
	URL         string
	ContentType string
	Bytes       int64
	CreatedAt   time.Time
}
