// Package probe runs the diagnostic requests against the local proxy.
package probe

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"proxyconsole/pkg/config"
	"proxyconsole/pkg/log"
	"proxyconsole/pkg/models"
	"proxyconsole/pkg/upstream"

	"github.com/google/uuid"
)

const (
	// Recorded response bodies are cut at this many bytes.
	maxResponseData = 1000
	truncatedSuffix = "\n... (response truncated)"

	probeTimeout = 30 * time.Second
	userAgent    = "proxyconsole/1.0"
)

const chatRequest = `{
  "model": "gpt-4o",
  "messages": [
    {"role": "system", "content": "You are a helpful assistant."},
    {"role": "user", "content": "Hello"}
  ],
  "stream": false
}`

const imageRequest = `{
  "prompt": "a white siamese cat",
  "n": 1,
  "size": "512x512"
}`

// Probe is one diagnostic request.
type Probe struct {
	Endpoint string
	Method   string
	Body     string
}

// DefaultProbes exercises each OpenAI-compatible endpoint once.
var DefaultProbes = []Probe{
	{Endpoint: "/v1/models", Method: http.MethodGet},
	{Endpoint: "/v1/chat/completions", Method: http.MethodPost, Body: chatRequest},
	{Endpoint: "/v1/images/generations", Method: http.MethodPost, Body: imageRequest},
}

// Runner executes probes in order against one base URL.
type Runner struct {
	client  *upstream.Client
	baseURL string
	headers map[string]string
	probes  []Probe
}

// NewRunner creates a runner. A nil probe list means DefaultProbes.
func NewRunner(client *upstream.Client, baseURL, bearerToken, cookie string, probes []Probe) *Runner {
	if probes == nil {
		probes = DefaultProbes
	}

	headers := map[string]string{"Authorization": "Bearer " + bearerToken}
	if cookie != "" {
		headers["Cookie"] = cookie
	}

	return &Runner{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		headers: headers,
		probes:  probes,
	}
}

// FromConfig creates a runner that talks to the configured proxy directly,
// bypassing any outbound proxy.
func FromConfig(cfg *config.Config) (*Runner, error) {
	client, err := upstream.NewClient(upstream.Options{
		Timeout: probeTimeout,
		Direct:  true,
		Headers: map[string]string{
			"Content-Type": "application/json",
			"User-Agent":   userAgent,
		},
	})
	if err != nil {
		return nil, err
	}

	return NewRunner(client, cfg.BaseURL(), cfg.Security.BearerToken, cfg.Monica.Cookie, nil), nil
}

// Run executes every probe sequentially. Each probe yields exactly one
// result, in probe order.
func (r *Runner) Run(ctx context.Context) models.DiagnosticRun {
	run := models.DiagnosticRun{
		ID:        uuid.NewString(),
		BaseURL:   r.baseURL,
		StartedAt: time.Now().UTC(),
		Results:   make([]models.TestResult, 0, len(r.probes)),
	}

	for _, p := range r.probes {
		run.Results = append(run.Results, r.execute(ctx, p))
	}
	run.FinishedAt = time.Now().UTC()

	log.Info().
		Str("run_id", run.ID).
		Str("base_url", run.BaseURL).
		Int("passed", run.Passed()).
		Int("total", len(run.Results)).
		Msg("Diagnostics finished")

	return run
}

func (r *Runner) execute(ctx context.Context, p Probe) models.TestResult {
	target := r.baseURL + p.Endpoint
	result := models.TestResult{
		Endpoint:     models.String(p.Endpoint),
		URL:          models.String(target),
		RequestData:  models.String(p.Body),
		ResponseData: models.String(""),
		StatusCode:   models.Int(0),
	}

	var body []byte
	if p.Body != "" {
		body = []byte(p.Body)
	}

	resp, err := r.client.Do(ctx, p.Method, target, body, r.headers)
	if err != nil {
		log.Warn().Err(err).Str("url", target).Msg("Probe failed")
		result.Error = models.String(err.Error())
		return result
	}

	result.StatusCode = models.Int(resp.StatusCode)
	result.ResponseData = models.String(truncate(string(resp.Body)))

	log.Debug().Str("url", target).Int("status", resp.StatusCode).Msg("Probe completed")
	return result
}

func truncate(data string) string {
	if len(data) <= maxResponseData {
		return data
	}
	return data[:maxResponseData] + truncatedSuffix
}

// Describe renders a result the way the diagnostics screen labels it.
func Describe(result models.TestResult) string {
	switch {
	case result.Error != nil:
		return "failed: " + *result.Error
	case result.StatusCode == nil:
		return "no status"
	case *result.StatusCode >= 200 && *result.StatusCode < 300:
		return fmt.Sprintf("ok (HTTP %d)", *result.StatusCode)
	case *result.StatusCode == http.StatusUnauthorized:
		return "invalid API key (HTTP 401)"
	case *result.StatusCode == http.StatusForbidden:
		return "access denied (HTTP 403)"
	default:
		return fmt.Sprintf("error (HTTP %d)", *result.StatusCode)
	}
}
