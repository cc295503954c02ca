package api

import "time"

type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobRunning  JobStatus = "running"
	JobComplete JobStatus = "complete"
	JobFailed   JobStatus = "failed"
)

func (s JobStatus) Terminal() bool {
	return s == JobComplete || s == JobFailed
}

// Prompt is a named, versioned instruction. Kind is "system" or "helper".
type Prompt struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Version   int       `json:"version"`
	Purpose   string    `json:"purpose"`
	Model     string    `json:"model"`
	Kind      string    `json:"kind"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// PromptAction is one stored execution of a prompt. Immutable once the
// server returns it.
type PromptAction struct {
	ID            int64     `json:"id"`
	PromptName    string    `json:"prompt_name"`
	PromptVersion int       `json:"prompt_version"`
	UserMessage   string    `json:"user_message"`
	Output        string    `json:"output"`
	TokensUsed    int       `json:"tokens_used"`
	Model         string    `json:"model"`
	CreatedAt     time.Time `json:"created_at"`
}

type MediaItem struct {
	ID               string     `json:"id"`
	URL              string     `json:"url"`
	MimeType         string     `json:"mime_type"`
	Filename         string     `json:"filename"`
	SizeBytes        int64      `json:"size_bytes"`
	UploadedAt       time.Time  `json:"uploaded_at"`
	ExternalID       string     `json:"external_id,omitempty"`
	StartedRunningAt *time.Time `json:"started_running_at,omitempty"`
}

type ImportJob struct {
	ID            string    `json:"id"`
	Status        JobStatus `json:"status"`
	TotalFound    int       `json:"total_found"`
	TotalImported int       `json:"total_imported"`
	ErrorMessage  string    `json:"error_message,omitempty"`
}

/// ImportJobStatus is one poll response: the job plus the bounded window of
// items imported since the previous poll.
type ImportJobStatus struct {
	Job          ImportJob   `json:"job"`
	RecentImages []MediaItem `json:"recent_images"`
}

// ExecuteResult is the terminal frame payload of an execute stream.
type ExecuteResult struct {
	TokensUsed int    `json:"tokens_used"`
	Model      string `json:"model"`
}

// ImportResult is the terminal frame payload of an import stream.
type ImportResult struct {
	Items       []MediaItem `json:"items"`
	FailedCount int         `json:"failed_count"`
}

type ImportProgress struct {
	Imported  int `json:"imported"`
	Failed    int `json:"failed"`
	PagesDone int `json:"pages_done"`
}
