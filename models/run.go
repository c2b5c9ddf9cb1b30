package models

import "time"

// RunStatus tracks a ScrapeRun through queued -> running -> succeeded|failed.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s RunStatus) Terminal() bool {
	return s == RunSucceeded || s == RunFailed
}

// ScrapeRun is one pipeline execution and its outcome.
type ScrapeRun struct {
	ID           string        `json:"id"`
	Params       SearchParams  `json:"params"`
	Status       RunStatus     `json:"status"`
	Result       *ScrapeResult `json:"result,omitempty"`
	Error        string        `json:"error,omitempty"`
	ErrorKind    Kind          `json:"error_kind,omitempty"`
	ErrorStage   Stage         `json:"error_stage,omitempty"`
	TotalFlights int           `json:"total_flights"`
	AvgCPP       float64       `json:"avg_cpp"`
	CreatedAt    time.Time     `json:"created_at"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
}

// RunComparison summarises two runs side by side.
type RunComparison struct {
	First       ScrapeRun  `json:"first"`
	Second      ScrapeRun  `json:"second"`
	FlightDelta int        `json:"flight_delta"`
	AvgCPPDelta float64    `json:"avg_cpp_delta"`
	BestCPP     [2]float64 `json:"best_cpp"`
}
