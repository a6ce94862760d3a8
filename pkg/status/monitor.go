// Package status tracks whether the local proxy service is reachable.
package status

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"proxyconsole/pkg/config"
	"proxyconsole/pkg/log"
	"proxyconsole/pkg/models"
	"proxyconsole/pkg/shape"
	"proxyconsole/pkg/upstream"
)

const (
	defaultCheckInterval = 5 * time.Second
	defaultCheckTimeout  = 5 * time.Second

	// MessageRunning is the status message of a reachable service.
	MessageRunning = "running"

	livenessPath = "/v1/models"
)

// Checker probes the proxy once.
type Checker struct {
	client  *upstream.Client
	baseURL string
	apiKey  string
}

// NewChecker creates a checker for the proxy at baseURL.
func NewChecker(client *upstream.Client, baseURL, apiKey string) *Checker {
	return &Checker{client: client, baseURL: strings.TrimSuffix(baseURL, "/"), apiKey: apiKey}
}

// CheckerFromConfig creates a checker that reaches the proxy directly.
func CheckerFromConfig(cfg *config.Config) (*Checker, error) {
	client, err := upstream.NewClient(upstream.Options{
		Timeout: defaultCheckTimeout,
		Direct:  true,
	})
	if err != nil {
		return nil, err
	}
	return NewChecker(client, cfg.BaseURL(), cfg.Security.BearerToken), nil
}

// Check reports the service running when any HTTP response arrives,
// whatever its status.
func (c *Checker) Check(ctx context.Context) models.ServiceStatus {
	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	resp, err := c.client.Do(ctx, http.MethodGet, c.baseURL+livenessPath, nil, headers)
	if err != nil {
		return models.ServiceStatus{
			IsRunning: models.Bool(false),
			Message:   models.String("service unreachable: " + err.Error()),
		}
	}

	log.Debug().Str("base_url", c.baseURL).Int("status", resp.StatusCode).Msg("Service responded")

	return models.ServiceStatus{
		IsRunning: models.Bool(true),
		Message:   models.String(MessageRunning),
		Address:   models.String(c.baseURL),
		APIKey:    models.String(log.MaskSecret(c.apiKey)),
	}
}

// Sink receives every status the monitor observes as a raw payload and
// returns the value it stored.
type Sink interface {
	ApplyServiceStatus(src any) (models.ServiceStatus, error)
}

// Monitor runs the checker periodically and forwards results to a sink.
type Monitor struct {
	mu       sync.RWMutex
	checker  *Checker
	sink     Sink
	interval time.Duration
	last     *bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
	started  bool
}

// NewMonitor creates a monitor. A non-positive interval uses the default.
func NewMonitor(checker *Checker, sink Sink, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &Monitor{
		checker:  checker,
		sink:     sink,
		interval: interval,
	}
}

// SetChecker swaps the checker, e.g. after the server settings changed.
func (m *Monitor) SetChecker(checker *Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checker = checker
}

// CheckNow runs one check synchronously, stores the result through the sink
// and returns what was stored.
func (m *Monitor) CheckNow(ctx context.Context) models.ServiceStatus {
	m.mu.RLock()
	checker := m.checker
	m.mu.RUnlock()

	status := m.store(checker.Check(ctx))

	m.mu.Lock()
	changed := m.last == nil || *m.last != status.Running()
	m.last = models.Bool(status.Running())
	m.mu.Unlock()

	if changed {
		message := ""
		if status.Message != nil {
			message = *status.Message
		}
		log.Info().
			Bool("running", status.Running()).
			Str("message", message).
			Msg("Service status changed")
	}

	return status
}

func (m *Monitor) store(checked models.ServiceStatus) models.ServiceStatus {
	payload, err := shape.Encode(checked)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode service status")
		return checked
	}

	stored, err := m.sink.ApplyServiceStatus(payload)
	var schemaErr *shape.SchemaError
	switch {
	case errors.As(err, &schemaErr):
		log.Warn().Err(err).Msg("Service status stored with schema problems")
	case err != nil:
		log.Error().Err(err).Msg("Failed to store service status")
		return checked
	}
	return stored
}

// Start performs an initial check and begins the background loop.
// Starting a running monitor does nothing.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.mu.Unlock()

	m.CheckNow(context.Background())

	m.wg.Add(1)
	go m.loop(stopCh)

	log.Info().Dur("interval", m.interval).Msg("Status monitor started")
}

// Stop ends the background loop and waits for it. Stopping a monitor that
// is not running does nothing.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
	log.Info().Msg("Status monitor stopped")
}

func (m *Monitor) loop(stopCh <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.interval)
			m.CheckNow(ctx)
			cancel()
		}
	}
}
