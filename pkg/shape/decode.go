// Package shape turns untyped backend payloads into the console's transfer
// shapes. A payload is either JSON text or an already decoded object; both
// forms decode to the same result. Absent keys stay nil and every decode
// reports which fields were absent and which carried the wrong type.
package shape

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"proxyconsole/pkg/models"
)

// normalize turns a payload into a keyed object. Text is parsed with
// numbers kept as json.Number so integer fields survive unchanged.
func normalize(schema Schema, src any) (map[string]any, error) {
	var text []byte

	switch v := src.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	case string:
		text = []byte(v)
	case []byte:
		text = v
	case json.RawMessage:
		text = v
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedSource, src)
	}

	dec := json.NewDecoder(bytes.NewReader(text))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, &ParseError{Shape: schema.Name, Err: err}
	}
	if obj == nil {
		return nil, &ParseError{Shape: schema.Name, Err: errors.New("payload is null")}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &ParseError{Shape: schema.Name, Err: errors.New("unexpected data after payload")}
	}

	return obj, nil
}

func decode(schema Schema, src any) (values, error) {
	obj, err := normalize(schema, src)
	if err != nil {
		return nil, err
	}

	vals, report := schema.check(obj)
	if !report.OK() {
		return vals, &SchemaError{Report: report}
	}
	return vals, nil
}

// Inspect checks a payload against a schema without building a shape.
func Inspect(schema Schema, src any) (Report, error) {
	obj, err := normalize(schema, src)
	if err != nil {
		return Report{Shape: schema.Name}, err
	}
	_, report := schema.check(obj)
	return report, nil
}

// DecodeServiceStatus builds a ServiceStatus from a payload.
// On *SchemaError the returned value holds every well-typed field.
func DecodeServiceStatus(src any) (*models.ServiceStatus, error) {
	vals, err := decode(ServiceStatusSchema, src)
	if vals == nil {
		return nil, err
	}

	return &models.ServiceStatus{
		IsRunning: vals.boolPtr("isRunning"),
		Message:   vals.stringPtr("message"),
		Address:   vals.stringPtr("address"),
		APIKey:    vals.stringPtr("apiKey"),
	}, err
}

// DecodeQuotaInfo builds a QuotaInfo from a payload.
// On *SchemaError the returned value holds every well-typed field.
func DecodeQuotaInfo(src any) (*models.QuotaInfo, error) {
	vals, err := decode(QuotaInfoSchema, src)
	if vals == nil {
		return nil, err
	}

	return &models.QuotaInfo{
		GeniusBot: vals.intPtr("geniusBot"),
		Credits:   vals.intPtr("credits"),
		Error:     vals.stringPtr("error"),
	}, err
}

// DecodeTestResult builds a TestResult from a payload.
// On *SchemaError the returned value holds every well-typed field.
func DecodeTestResult(src any) (*models.TestResult, error) {
	vals, err := decode(TestResultSchema, src)
	if vals == nil {
		return nil, err
	}

	return &models.TestResult{
		Endpoint:     vals.stringPtr("endpoint"),
		URL:          vals.stringPtr("url"),
		RequestData:  vals.stringPtr("requestData"),
		ResponseData: vals.stringPtr("responseData"),
		StatusCode:   vals.intPtr("statusCode"),
		Error:        vals.stringPtr("error"),
	}, err
}

var registry = map[string]struct {
	schema Schema
	decode func(any) (any, error)
}{
	ServiceStatusSchema.Name: {ServiceStatusSchema, func(src any) (any, error) {
		v, err := DecodeServiceStatus(src)
		if v == nil {
			return nil, err
		}
		return v, err
	}},
	QuotaInfoSchema.Name: {QuotaInfoSchema, func(src any) (any, error) {
		v, err := DecodeQuotaInfo(src)
		if v == nil {
			return nil, err
		}
		return v, err
	}},
	TestResultSchema.Name: {TestResultSchema, func(src any) (any, error) {
		v, err := DecodeTestResult(src)
		if v == nil {
			return nil, err
		}
		return v, err
	}},
}

// Encode renders a shape value as the JSON payload the decoders accept.
// Nil fields are left out, so they decode as absent.
func Encode(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

// Lookup returns the schema registered under name.
func Lookup(name string) (Schema, bool) {
	entry, ok := registry[name]
	return entry.schema, ok
}

// Decode builds the shape registered under name. The result is a pointer to
// the matching models type, or nil on parse failure.
func Decode(name string, src any) (any, error) {
	entry, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownShape, name)
	}
	return entry.decode(src)
}
