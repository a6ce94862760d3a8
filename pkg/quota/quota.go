// Package quota queries the upstream account quota. Failures are reported
// in-band through QuotaInfo.Error.
package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"proxyconsole/pkg/config"
	"proxyconsole/pkg/log"
	"proxyconsole/pkg/models"
	"proxyconsole/pkg/upstream"
)

const (
	ModuleGeniusBot = "genius_bot"
	ModuleCredits   = "credits"

	// Only the plan scene counts toward the reported quota.
	scenePlan = "plan"
)

var requestHeaders = map[string]string{
	"Accept":          "*/*",
	"Content-Type":    "application/json",
	"Origin":          "https://monica.im",
	"Referer":         "https://monica.im/",
	"User-Agent":      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36",
	"X-Client-Locale": "en_US",
	"X-Client-Type":   "web",
	"X-Product-Name":  "Monica",
}

// Fetcher queries the quota endpoint.
type Fetcher struct {
	client *upstream.Client
	url    string
	cookie string
}

// NewFetcher creates a fetcher for the given endpoint and account cookie.
func NewFetcher(client *upstream.Client, url, cookie string) *Fetcher {
	return &Fetcher{client: client, url: url, cookie: cookie}
}

// FromConfig creates a fetcher that goes through the configured outbound proxy.
func FromConfig(cfg *config.Config) (*Fetcher, error) {
	client, err := upstream.FromConfig(cfg, false, requestHeaders)
	if err != nil {
		return nil, err
	}

	url := cfg.Monica.QuotaURL
	if url == "" {
		url = config.DefaultQuotaURL
	}
	return NewFetcher(client, url, cfg.Monica.Cookie), nil
}

// Fetch queries the quota. It never returns an error; failures populate
// the Error field and leave the counters absent.
func (f *Fetcher) Fetch(ctx context.Context) models.QuotaInfo {
	if f.cookie == "" {
		return failed(config.ErrMissingCookie.Error())
	}

	body, err := json.Marshal(models.QuotaRequest{Modules: []string{ModuleGeniusBot, ModuleCredits}})
	if err != nil {
		return failed(fmt.Sprintf("encode request: %v", err))
	}

	resp, err := f.client.Do(ctx, http.MethodPost, f.url, body, map[string]string{"Cookie": f.cookie})
	if err != nil {
		log.Warn().Err(err).Str("url", f.url).Msg("Quota request failed")
		return failed(fmt.Sprintf("request failed: %v", err))
	}

	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Str("url", f.url).Msg("Quota endpoint returned an error status")
		return failed(fmt.Sprintf("HTTP error: %d", resp.StatusCode))
	}

	var quotaResp models.QuotaResponse
	if err := json.Unmarshal(resp.Body, &quotaResp); err != nil {
		return failed(fmt.Sprintf("decode response: %v", err))
	}

	if quotaResp.Code != 0 {
		return failed(fmt.Sprintf("API error: %s", quotaResp.Msg))
	}

	info := Reduce(&quotaResp)
	log.Debug().
		Int("genius_bot", *info.GeniusBot).
		Int("credits", *info.Credits).
		Msg("Quota fetched")

	return info
}

// Reduce extracts the plan quotas of the tracked modules. Modules missing
// from the response count as zero.
func Reduce(resp *models.QuotaResponse) models.QuotaInfo {
	var geniusBot, credits int

	for _, module := range resp.Data.ModuleQuotas {
		for _, q := range module.Quotas {
			if q.Scene != scenePlan {
				continue
			}
			switch module.Module {
			case ModuleGeniusBot:
				geniusBot = q.CurrentQuota
			case ModuleCredits:
				credits = q.CurrentQuota
			}
		}
	}

	return models.QuotaInfo{
		GeniusBot: models.Int(geniusBot),
		Credits:   models.Int(credits),
	}
}

func failed(msg string) models.QuotaInfo {
	return models.QuotaInfo{Error: models.String(msg)}
}
