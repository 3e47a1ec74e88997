package model

import "time"

// RunStatus represents the current state of a scrape run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Stage names a pipeline stage in failure reports.
type Stage string

const (
	StageEvents    Stage = "events"
	StageLots      Stage = "lots"
	StageDocuments Stage = "documents"
)

// Run represents a single full scrape.
type Run struct {
	ID        string     `json:"id"`
	Trigger   string     `json:"trigger"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Failure records a unit of work that failed without aborting the run.
type Failure struct {
	Stage       Stage  `json:"stage"`
	Institution string `json:"institution"`
	URL         string `json:"url"`
	Error       string `json:"error"`
}

// RunStats counts what a run touched.
type RunStats struct {
	Institutions int `json:"institutions"`
	Events       int `json:"events"`
	Lots         int `json:"lots"`
	Downloaded   int `json:"downloaded"`
	NoKeyword    int `json:"skipped_no_keyword"`
	NoDocument   int `json:"skipped_no_document"`
	Existing     int `json:"skipped_existing"`
	Failed       int `json:"failed"`
}

// RunResult is the outcome of a full scrape. Partial success is normal.
type RunResult struct {
	RunID       string           `json:"run_id,omitempty"`
	Documents   []DocumentRecord `json:"documents"`
	Failures    []Failure        `json:"failures,omitempty"`
	Stats       RunStats         `json:"stats"`
	Interrupted bool             `json:"interrupted,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
}

// Paths returns the stored path of every document in the result.
func (r *RunResult) Paths() []string {
	paths := make([]string, 0, len(r.Documents))
	for _, d := range r.Documents {
		paths = append(paths, d.Path)
	}
	return paths
}
