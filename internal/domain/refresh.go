package domain

import "time"

// RefreshResult reports the rebuild outcome for one aggregate view. A failed
// view never prevents the remaining views from refreshing.
type RefreshResult struct {
	ViewName   string        `json:"view_name"`
	Status     string        `json:"status"`
	Duration   time.Duration `json:"duration"`
	Err        error         `json:"-"`
	ErrorText  string        `json:"error,omitempty"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Refresh statuses.
const (
	RefreshStatusOK     = "ok"
	RefreshStatusFailed = "failed"
)
