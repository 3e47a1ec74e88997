package model

import "time"

// DocumentRecord describes a registry document saved during a run. Records
// are only created for successful, non-duplicate writes.
type DocumentRecord struct {
	Institution string    `json:"institution"`
	LotID       string    `json:"lot_id"`
	Path        string    `json:"path"`
	Size        int64     `json:"size_bytes"`
	LotURL      string    `json:"lot_url"`
	SourceURL   string    `json:"source_url"`
	SavedAt     time.Time `json:"saved_at"`
}

// StoredFile is a document found on disk under the output root.
type StoredFile struct {
	Name      string    `json:"name"`
	Source    string    `json:"source"`
	Path      string    `json:"path"`
	Size      int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}
