package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"proxyconsole/pkg/config"
	"proxyconsole/pkg/history"
	"proxyconsole/pkg/log"
	"proxyconsole/pkg/models"
	"proxyconsole/pkg/probe"
	"proxyconsole/pkg/quota"
	"proxyconsole/pkg/shape"
	"proxyconsole/pkg/status"

	"github.com/labstack/echo/v4"
)

// historyRetention is how many runs the journal keeps.
const historyRetention = 100

// DiagnosticsResponse is returned by POST /api/diagnostics.
type DiagnosticsResponse struct {
	Run     models.DiagnosticRun `json:"run"`
	Summary []string             `json:"summary"`
	// Reports holds the schema report of each stored result, in run order.
	Reports []shape.Report `json:"reports"`
	// Journaled is false when the run could not be stored.
	Journaled bool `json:"journaled"`
}

// checkService handles POST /api/service/check.
func (cs *ConsoleServer) checkService(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	if cs.monitor != nil {
		return ctx.JSON(http.StatusOK, cs.monitor.CheckNow(reqCtx))
	}

	checker, err := status.CheckerFromConfig(cs.config())
	if err != nil {
		log.Error().Err(err).Msg("Failed to create status checker")
		return errorJSON(ctx, http.StatusInternalServerError, "Failed to create status checker")
	}

	serviceStatus, _, err := storeResult(shape.ServiceStatusSchema, checker.Check(reqCtx), cs.state.ApplyServiceStatus)
	if err != nil {
		return errorJSON(ctx, http.StatusInternalServerError, "Failed to store service status")
	}
	return ctx.JSON(http.StatusOK, serviceStatus)
}

// refreshQuota handles POST /api/quota/refresh. Upstream failures are
// reported in the error field of a 200 response; the schema report then
// lists the counters as absent.
func (cs *ConsoleServer) refreshQuota(ctx echo.Context) error {
	cfg := cs.config()

	fetcher, err := quota.FromConfig(cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create quota fetcher")
		return errorJSON(ctx, http.StatusInternalServerError, "Failed to create quota fetcher")
	}

	var info models.QuotaInfo
	cs.whileLoading(func() {
		info = fetcher.Fetch(ctx.Request().Context())
	})

	stored, report, err := storeResult(shape.QuotaInfoSchema, info, cs.state.ApplyQuotaInfo)
	if err != nil {
		return errorJSON(ctx, http.StatusInternalServerError, "Failed to store quota")
	}

	return ctx.JSON(http.StatusOK, ShapeResponse{Shape: shape.QuotaInfoSchema.Name, Value: stored, Report: report})
}

// runDiagnostics handles POST /api/diagnostics.
func (cs *ConsoleServer) runDiagnostics(ctx echo.Context) error {
	cfg := cs.config()

	if err := cfg.Validate(); errors.Is(err, config.ErrMissingCookie) ||
		errors.Is(err, config.ErrMissingBearerToken) ||
		errors.Is(err, config.ErrMissingBotUID) {
		return errorJSON(ctx, http.StatusBadRequest, err.Error())
	}

	runner, err := probe.FromConfig(cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create probe runner")
		return errorJSON(ctx, http.StatusInternalServerError, "Failed to create probe runner")
	}

	var run models.DiagnosticRun
	cs.whileLoading(func() {
		run = runner.Run(ctx.Request().Context())
	})

	reports := make([]shape.Report, 0, len(run.Results))
	for _, result := range run.Results {
		_, report, err := storeResult(shape.TestResultSchema, result, cs.state.ApplyTestResult)
		if err != nil {
			return errorJSON(ctx, http.StatusInternalServerError, "Failed to store test result")
		}
		reports = append(reports, report)
	}

	journaled := cs.journal(context.WithoutCancel(ctx.Request().Context()), run)

	summary := make([]string, 0, len(run.Results))
	for _, result := range run.Results {
		summary = append(summary, *result.Endpoint+": "+probe.Describe(result))
	}

	return ctx.JSON(http.StatusOK, DiagnosticsResponse{
		Run:       run,
		Summary:   summary,
		Reports:   reports,
		Journaled: journaled,
	})
}

func (cs *ConsoleServer) journal(ctx context.Context, run models.DiagnosticRun) bool {
	if cs.history == nil {
		return false
	}

	if err := cs.history.SaveRun(ctx, run); err != nil {
		log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to journal diagnostic run")
		return false
	}

	if pruned, err := cs.history.Prune(ctx, historyRetention); err != nil {
		log.Warn().Err(err).Msg("Failed to prune diagnostics journal")
	} else if pruned > 0 {
		log.Debug().Int64("pruned", pruned).Msg("Pruned diagnostics journal")
	}

	return true
}

// clearDiagnostics handles DELETE /api/diagnostics.
func (cs *ConsoleServer) clearDiagnostics(ctx echo.Context) error {
	cs.state.ClearTestResults()
	return ctx.JSON(http.StatusOK, map[string]string{
		"message": "Test results cleared",
	})
}

// listHistory handles GET /api/diagnostics/history?limit=N.
func (cs *ConsoleServer) listHistory(ctx echo.Context) error {
	if cs.history == nil {
		return ctx.JSON(http.StatusOK, []models.DiagnosticRun{})
	}

	limit := 0
	if raw := ctx.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return errorJSON(ctx, http.StatusBadRequest, "Invalid limit")
		}
		limit = parsed
	}

	runs, err := cs.history.ListRuns(ctx.Request().Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list diagnostic runs")
		return errorJSON(ctx, http.StatusInternalServerError, "Internal server error")
	}

	return ctx.JSON(http.StatusOK, runs)
}

// getHistoryRun handles GET /api/diagnostics/history/:id.
func (cs *ConsoleServer) getHistoryRun(ctx echo.Context) error {
	id := ctx.Param("id")

	if cs.history == nil {
		return errorJSON(ctx, http.StatusNotFound, history.ErrRunNotFound.Error())
	}

	run, err := cs.history.GetRun(ctx.Request().Context(), id)
	if errors.Is(err, history.ErrRunNotFound) {
		return errorJSON(ctx, http.StatusNotFound, err.Error())
	}
	if err != nil {
		log.Error().Err(err).Str("run_id", id).Msg("Failed to load diagnostic run")
		return errorJSON(ctx, http.StatusInternalServerError, "Internal server error")
	}

	return ctx.JSON(http.StatusOK, run)
}

// storeResult hands a backend result to the state as a raw payload, the way
// any other producer's payload enters it. Schema problems are logged and
// reported; the partial value is stored regardless.
func storeResult[T any](schema shape.Schema, result any, apply func(any) (T, error)) (T, shape.Report, error) {
	var zero T

	payload, err := shape.Encode(result)
	if err != nil {
		log.Error().Err(err).Str("shape", schema.Name).Msg("Failed to encode backend result")
		return zero, shape.Report{}, err
	}

	report, err := shape.Inspect(schema, payload)
	if err != nil {
		log.Error().Err(err).Str("shape", schema.Name).Msg("Backend result is not a valid payload")
		return zero, report, err
	}

	stored, err := apply(payload)
	var schemaErr *shape.SchemaError
	if errors.As(err, &schemaErr) {
		log.Debug().Err(err).Str("shape", schema.Name).Msg("Backend result stored with schema problems")
		return stored, report, nil
	}
	if err != nil {
		log.Error().Err(err).Str("shape", schema.Name).Msg("Failed to store backend result")
	}
	return stored, report, err
}

// whileLoading raises the loading flag for the duration of fn.
func (cs *ConsoleServer) whileLoading(fn func()) {
	cs.busy.Lock()
	defer cs.busy.Unlock()

	cs.state.SetLoading(true)
	defer cs.state.SetLoading(false)

	fn()
}
