package server

import (
	"errors"
	"io"
	"net/http"

	"proxyconsole/pkg/log"
	"proxyconsole/pkg/router"
	"proxyconsole/pkg/shape"

	"github.com/labstack/echo/v4"
)

// ShapeResponse carries a decoded payload and its schema report.
type ShapeResponse struct {
	Shape  string       `json:"shape"`
	Value  any          `json:"value"`
	Report shape.Report `json:"report"`
}

// getState handles GET /api/state.
func (cs *ConsoleServer) getState(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, cs.state.Snapshot())
}

// getRoutes handles GET /api/routes.
func (cs *ConsoleServer) getRoutes(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, router.Routes())
}

// applyServiceStatus handles PUT /api/state/serviceStatus.
func (cs *ConsoleServer) applyServiceStatus(ctx echo.Context) error {
	return cs.applyPayload(ctx, shape.ServiceStatusSchema, func(body []byte) (any, error) {
		return cs.state.ApplyServiceStatus(body)
	})
}

// applyQuotaInfo handles PUT /api/state/quotaInfo.
func (cs *ConsoleServer) applyQuotaInfo(ctx echo.Context) error {
	return cs.applyPayload(ctx, shape.QuotaInfoSchema, func(body []byte) (any, error) {
		return cs.state.ApplyQuotaInfo(body)
	})
}

// applyTestResult handles POST /api/state/testResults.
func (cs *ConsoleServer) applyTestResult(ctx echo.Context) error {
	return cs.applyPayload(ctx, shape.TestResultSchema, func(body []byte) (any, error) {
		return cs.state.ApplyTestResult(body)
	})
}

// applyPayload stores a raw backend payload. Schema problems do not reject
// the payload; they are reported next to the stored value.
func (cs *ConsoleServer) applyPayload(ctx echo.Context, schema shape.Schema, apply func([]byte) (any, error)) error {
	body, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return errorJSON(ctx, http.StatusBadRequest, "Failed to read request body")
	}

	value, err := apply(body)
	return cs.respondShape(ctx, schema, body, value, err)
}

// decodeShape handles POST /api/shapes/:shape. Nothing is stored.
func (cs *ConsoleServer) decodeShape(ctx echo.Context) error {
	name := ctx.Param("shape")

	schema, ok := shape.Lookup(name)
	if !ok {
		return errorJSON(ctx, http.StatusNotFound, shape.ErrUnknownShape.Error()+": "+name)
	}

	body, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return errorJSON(ctx, http.StatusBadRequest, "Failed to read request body")
	}

	value, err := shape.Decode(name, body)
	return cs.respondShape(ctx, schema, body, value, err)
}

func (cs *ConsoleServer) respondShape(ctx echo.Context, schema shape.Schema, body []byte, value any, err error) error {
	var parseErr *shape.ParseError
	if errors.As(err, &parseErr) {
		log.Warn().Err(err).Str("shape", schema.Name).Msg("Rejected malformed payload")
		return errorJSON(ctx, http.StatusBadRequest, parseErr.Error())
	}

	var schemaErr *shape.SchemaError
	if err != nil && !errors.As(err, &schemaErr) {
		return errorJSON(ctx, http.StatusBadRequest, err.Error())
	}

	report, inspectErr := shape.Inspect(schema, body)
	if inspectErr != nil {
		return errorJSON(ctx, http.StatusBadRequest, inspectErr.Error())
	}

	if schemaErr != nil {
		log.Debug().Err(schemaErr).Str("shape", schema.Name).Msg("Payload accepted with schema problems")
	}

	return ctx.JSON(http.StatusOK, ShapeResponse{Shape: schema.Name, Value: value, Report: report})
}
