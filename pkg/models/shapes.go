package models

// Transfer shapes returned across the backend boundary. Every field is a
// pointer so that an absent key stays nil instead of collapsing into the
// zero value.

// ServiceStatus represents proxy process liveness.
type ServiceStatus struct {
	IsRunning *bool   `json:"isRunning,omitempty"`
	Message   *string `json:"message,omitempty"`
	Address   *string `json:"address,omitempty"`
	APIKey    *string `json:"apiKey,omitempty"`
}

// Running reports IsRunning, treating an absent value as false.
func (s ServiceStatus) Running() bool {
	return s.IsRunning != nil && *s.IsRunning
}

// QuotaInfo is a snapshot of remaining upstream usage quota.
// Error is set when the quota fetch itself failed.
type QuotaInfo struct {
	GeniusBot *int    `json:"geniusBot,omitempty"`
	Credits   *int    `json:"credits,omitempty"`
	Error     *string `json:"error,omitempty"`
}

// TestResult is the record of one diagnostic probe.
type TestResult struct {
	Endpoint     *string `json:"endpoint,omitempty"`
	URL          *string `json:"url,omitempty"`
	RequestData  *string `json:"requestData,omitempty"`
	ResponseData *string `json:"responseData,omitempty"`
	StatusCode   *int    `json:"statusCode,omitempty"`
	Error        *string `json:"error,omitempty"`
}

// Failed reports whether the probe hit a transport error or a non-2xx status.
func (r TestResult) Failed() bool {
	if r.Error != nil {
		return true
	}
	return r.StatusCode == nil || *r.StatusCode < 200 || *r.StatusCode >= 300
}

// Clone returns a copy that shares no pointers with s.
func (s ServiceStatus) Clone() ServiceStatus {
	return ServiceStatus{
		IsRunning: clonePtr(s.IsRunning),
		Message:   clonePtr(s.Message),
		Address:   clonePtr(s.Address),
		APIKey:    clonePtr(s.APIKey),
	}
}

// Clone returns a copy that shares no pointers with q.
func (q QuotaInfo) Clone() QuotaInfo {
	return QuotaInfo{
		GeniusBot: clonePtr(q.GeniusBot),
		Credits:   clonePtr(q.Credits),
		Error:     clonePtr(q.Error),
	}
}

// Clone returns a copy that shares no pointers with r.
func (r TestResult) Clone() TestResult {
	return TestResult{
		Endpoint:     clonePtr(r.Endpoint),
		URL:          clonePtr(r.URL),
		RequestData:  clonePtr(r.RequestData),
		ResponseData: clonePtr(r.ResponseData),
		StatusCode:   clonePtr(r.StatusCode),
		Error:        clonePtr(r.Error),
	}
}

// CloneTestResults deep-copies a result list. The result is never nil.
func CloneTestResults(results []TestResult) []TestResult {
	out := make([]TestResult, len(results))
	for i, r := range results {
		out[i] = r.Clone()
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
