// Package state holds the console's shared application state. One AppState
// is created at start and handed to every collaborator; it is never
// persisted.
package state

import (
	"sync"

	"proxyconsole/pkg/models"
	"proxyconsole/pkg/shape"
)

// InitialMessage is the service status message before any check ran.
const InitialMessage = "service not started"

// AppState is the mutable console state. Writes are not validated.
type AppState struct {
	mu            sync.RWMutex
	config        map[string]any
	serviceStatus models.ServiceStatus
	loading       bool
	testResults   []models.TestResult
	quotaInfo     models.QuotaInfo
}

// Snapshot is a point-in-time copy of the state.
type Snapshot struct {
	Config           map[string]any       `json:"config"`
	ServiceStatus    models.ServiceStatus `json:"serviceStatus"`
	Loading          bool                 `json:"loading"`
	TestResults      []models.TestResult  `json:"testResults"`
	QuotaInfo        models.QuotaInfo     `json:"quotaInfo"`
	IsServiceRunning bool                 `json:"isServiceRunning"`
}

// New creates the state with the given configuration document.
func New(config map[string]any) *AppState {
	return &AppState{
		config: cloneMap(config),
		serviceStatus: models.ServiceStatus{
			IsRunning: models.Bool(false),
			Message:   models.String(InitialMessage),
			Address:   models.String(""),
			APIKey:    models.String(""),
		},
		testResults: []models.TestResult{},
	}
}

// Config returns a copy of the configuration document.
func (s *AppState) Config() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMap(s.config)
}

// SetConfig replaces the configuration document.
func (s *AppState) SetConfig(config map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cloneMap(config)
}

// ServiceStatus returns the current service status.
func (s *AppState) ServiceStatus() models.ServiceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serviceStatus.Clone()
}

// SetServiceStatus replaces the service status.
func (s *AppState) SetServiceStatus(status models.ServiceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serviceStatus = status.Clone()
}

// IsServiceRunning is derived from the service status on every call.
func (s *AppState) IsServiceRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serviceStatus.Running()
}

// Loading reports whether a backend call is in flight.
func (s *AppState) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// SetLoading sets the loading flag.
func (s *AppState) SetLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = loading
}

// TestResults returns the diagnostic results in append order.
func (s *AppState) TestResults() []models.TestResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.CloneTestResults(s.testResults)
}

// AppendTestResult adds results to the end of the sequence.
func (s *AppState) AppendTestResult(results ...models.TestResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.testResults = append(s.testResults, models.CloneTestResults(results)...)
}

// ClearTestResults empties the sequence.
func (s *AppState) ClearTestResults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.testResults = []models.TestResult{}
}

// QuotaInfo returns the latest quota snapshot.
func (s *AppState) QuotaInfo() models.QuotaInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quotaInfo.Clone()
}

// SetQuotaInfo replaces the quota snapshot.
func (s *AppState) SetQuotaInfo(info models.QuotaInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotaInfo = info.Clone()
}

// Snapshot copies the whole state under one lock.
func (s *AppState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		Config:           cloneMap(s.config),
		ServiceStatus:    s.serviceStatus.Clone(),
		Loading:          s.loading,
		TestResults:      models.CloneTestResults(s.testResults),
		QuotaInfo:        s.quotaInfo.Clone(),
		IsServiceRunning: s.serviceStatus.Running(),
	}
}

// ApplyServiceStatus decodes a raw payload and stores it. A parse failure
// leaves the state untouched; a *shape.SchemaError is returned after the
// partial value was stored.
func (s *AppState) ApplyServiceStatus(src any) (models.ServiceStatus, error) {
	status, err := shape.DecodeServiceStatus(src)
	if status == nil {
		return models.ServiceStatus{}, err
	}
	s.SetServiceStatus(*status)
	return *status, err
}

// ApplyQuotaInfo decodes a raw payload and stores it, like ApplyServiceStatus.
func (s *AppState) ApplyQuotaInfo(src any) (models.QuotaInfo, error) {
	info, err := shape.DecodeQuotaInfo(src)
	if info == nil {
		return models.QuotaInfo{}, err
	}
	s.SetQuotaInfo(*info)
	return *info, err
}

// ApplyTestResult decodes a raw payload and appends it, like ApplyServiceStatus.
func (s *AppState) ApplyTestResult(src any) (models.TestResult, error) {
	result, err := shape.DecodeTestResult(src)
	if result == nil {
		return models.TestResult{}, err
	}
	s.AppendTestResult(*result)
	return *result, err
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}
