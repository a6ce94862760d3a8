package server

import (
	"errors"
	"io"
	"net/http"

	"proxyconsole/pkg/config"
	"proxyconsole/pkg/log"
	"proxyconsole/pkg/status"

	"github.com/labstack/echo/v4"
)

// ConfigResponse is returned by the configuration endpoints.
type ConfigResponse struct {
	Config map[string]any `json:"config"`
	// Warnings lists settings that still need filling in.
	Warnings []string `json:"warnings,omitempty"`
	Saved    bool     `json:"saved"`
}

// getConfig handles GET /api/config.
func (cs *ConsoleServer) getConfig(ctx echo.Context) error {
	cfg := cs.config()

	doc, err := cfg.AsMap()
	if err != nil {
		log.Error().Err(err).Msg("Failed to render configuration")
		return errorJSON(ctx, http.StatusInternalServerError, "Failed to render configuration")
	}

	return ctx.JSON(http.StatusOK, ConfigResponse{Config: doc, Warnings: warnings(cfg)})
}

// putConfig handles PUT /api/config. The body is YAML or JSON.
func (cs *ConsoleServer) putConfig(ctx echo.Context) error {
	body, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return errorJSON(ctx, http.StatusBadRequest, "Failed to read request body")
	}

	cfg, err := config.Parse(body)
	if err != nil {
		log.Warn().Err(err).Msg("Rejected configuration")
		return errorJSON(ctx, http.StatusBadRequest, err.Error())
	}

	if err := cfg.Validate(); errors.Is(err, config.ErrInvalidConfig) {
		log.Warn().Err(err).Msg("Rejected configuration")
		return errorJSON(ctx, http.StatusBadRequest, err.Error())
	}

	doc, err := cfg.AsMap()
	if err != nil {
		log.Error().Err(err).Msg("Failed to render configuration")
		return errorJSON(ctx, http.StatusInternalServerError, "Failed to render configuration")
	}

	saved := false
	if cs.configPath != "" {
		if err := cfg.Save(cs.configPath); err != nil {
			log.Error().Err(err).Str("path", cs.configPath).Msg("Failed to save configuration")
			return errorJSON(ctx, http.StatusInternalServerError, "Failed to save configuration")
		}
		saved = true
	}

	cs.mu.Lock()
	cs.cfg = cfg.Clone()
	cs.mu.Unlock()

	cs.state.SetConfig(doc)

	if cs.monitor != nil {
		checker, err := status.CheckerFromConfig(cfg)
		if err != nil {
			log.Error().Err(err).Msg("Failed to rebuild status checker")
		} else {
			cs.monitor.SetChecker(checker)
		}
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		log.Warn().Err(err).Msg("Logging settings not applied")
	}

	log.Info().
		Str("address", cfg.Address()).
		Str("cookie", maskIf(cfg, cfg.Monica.Cookie)).
		Bool("saved", saved).
		Msg("Configuration updated")

	return ctx.JSON(http.StatusOK, ConfigResponse{Config: doc, Warnings: warnings(cfg), Saved: saved})
}

func warnings(cfg *config.Config) []string {
	err := cfg.Validate()
	if err == nil {
		return nil
	}

	var out []string
	for _, sentinel := range []error{config.ErrMissingCookie, config.ErrMissingBearerToken, config.ErrMissingBotUID} {
		if errors.Is(err, sentinel) {
			out = append(out, sentinel.Error())
		}
	}
	return out
}

func maskIf(cfg *config.Config, secret string) string {
	if cfg.Logging.MaskSensitive {
		return log.RedactSecret(secret)
	}
	return secret
}
