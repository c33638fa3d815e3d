package models

type UploadResponse struct {
	EvaluationID string         `json:"evaluation_id"`
	Status       string         `json:"status"`
	Documents    []UploadedFile `json:"documents"`
}

type UploadedFile struct {
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name"`
	FileType     string `json:"file_type"`
	FileSize     int64  `json:"file_size"`
}

type EvaluateRequest struct {
	EvaluationID string `json:"evaluation_id"`
}

type EvaluateResponse struct {
	Message      string `json:"message"`
	EvaluationID string `json:"evaluation_id"`
}

// ResultResponse is the polling payload; which optional fields are set depends on Status.
type ResultResponse struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	AttemptsMade int             `json:"attempts_made"`
	Result       *EvaluationData `json:"result"`
	Message      string          `json:"message,omitempty"`
	Error        string          `json:"error,omitempty"`
	Exhausted    bool            `json:"exhausted,omitempty"`
}

type EvaluationData struct {
	CVMatchRate     int     `json:"cv_match_rate"`
	CVFeedback      string  `json:"cv_feedback"`
	ProjectScore    float64 `json:"project_score"`
	ProjectFeedback string  `json:"project_feedback"`
	OverallSummary  string  `json:"overall_summary"`
}
