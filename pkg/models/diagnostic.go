package models

import "time"

// DiagnosticRun groups the probe results of one diagnostics invocation.
type DiagnosticRun struct {
	ID         string       `json:"id"`
	BaseURL    string       `json:"base_url"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Results    []TestResult `json:"results"`
}

// Passed counts the results that reached the endpoint with a 2xx status.
func (r DiagnosticRun) Passed() int {
	passed := 0
	for _, result := range r.Results {
		if !result.Failed() {
			passed++
		}
	}
	return passed
}
