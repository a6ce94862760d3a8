package shape

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Kind is the JSON type a field is expected to carry.
type Kind int

const (
	KindBool Kind = iota
	KindString
	KindInt
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindInt:
		return "integer"
	default:
		return "unknown"
	}
}

// Field declares one key of a transfer shape. Names are case-sensitive.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
}

// Schema is the declared field set of a transfer shape.
type Schema struct {
	Name   string
	Fields []Field
}

// Shape schemas.
var (
	ServiceStatusSchema = Schema{
		Name: "serviceStatus",
		Fields: []Field{
			{Name: "isRunning", Kind: KindBool, Required: true},
			{Name: "message", Kind: KindString, Required: true},
			{Name: "address", Kind: KindString},
			{Name: "apiKey", Kind: KindString},
		},
	}

	QuotaInfoSchema = Schema{
		Name: "quotaInfo",
		Fields: []Field{
			{Name: "geniusBot", Kind: KindInt, Required: true},
			{Name: "credits", Kind: KindInt, Required: true},
			{Name: "error", Kind: KindString},
		},
	}

	TestResultSchema = Schema{
		Name: "testResult",
		Fields: []Field{
			{Name: "endpoint", Kind: KindString, Required: true},
			{Name: "url", Kind: KindString, Required: true},
			{Name: "requestData", Kind: KindString, Required: true},
			{Name: "responseData", Kind: KindString, Required: true},
			{Name: "statusCode", Kind: KindInt, Required: true},
			{Name: "error", Kind: KindString},
		},
	}
)

// Mismatch describes a key that is present with the wrong type.
type Mismatch struct {
	Field string `json:"field"`
	Want  string `json:"want"`
	Got   string `json:"got"`
}

// Report is the outcome of checking a payload against a schema.
type Report struct {
	Shape string `json:"shape"`
	// Absent lists required fields with no value.
	Absent []string `json:"absent,omitempty"`
	// Omitted lists optional fields with no value.
	Omitted []string `json:"omitted,omitempty"`
	// Mismatched lists fields present with the wrong type.
	Mismatched []Mismatch `json:"mismatched,omitempty"`
	// Unknown lists keys the schema does not declare. They are ignored.
	Unknown []string `json:"unknown,omitempty"`
}

// OK reports whether every required field is present and every field is well typed.
func (r Report) OK() bool {
	return len(r.Absent) == 0 && len(r.Mismatched) == 0
}

// values holds the converted, well-typed fields of a payload.
type values map[string]any

func (v values) boolPtr(name string) *bool {
	b, ok := v[name].(bool)
	if !ok {
		return nil
	}
	return &b
}

func (v values) stringPtr(name string) *string {
	s, ok := v[name].(string)
	if !ok {
		return nil
	}
	return &s
}

func (v values) intPtr(name string) *int {
	i, ok := v[name].(int)
	if !ok {
		return nil
	}
	return &i
}

// check converts the declared fields of obj. A null value counts as absent.
func (s Schema) check(obj map[string]any) (values, Report) {
	report := Report{Shape: s.Name}
	out := make(values, len(s.Fields))
	declared := make(map[string]struct{}, len(s.Fields))

	for _, field := range s.Fields {
		declared[field.Name] = struct{}{}

		raw, present := obj[field.Name]
		if !present || raw == nil {
			if field.Required {
				report.Absent = append(report.Absent, field.Name)
			} else {
				report.Omitted = append(report.Omitted, field.Name)
			}
			continue
		}

		converted, ok := convert(field.Kind, raw)
		if !ok {
			report.Mismatched = append(report.Mismatched, Mismatch{
				Field: field.Name,
				Want:  field.Kind.String(),
				Got:   typeName(raw),
			})
			continue
		}
		out[field.Name] = converted
	}

	for key := range obj {
		if _, ok := declared[key]; !ok {
			report.Unknown = append(report.Unknown, key)
		}
	}
	sort.Strings(report.Unknown)

	return out, report
}

func convert(kind Kind, raw any) (any, bool) {
	switch kind {
	case KindBool:
		b, ok := raw.(bool)
		return b, ok
	case KindString:
		str, ok := raw.(string)
		return str, ok
	case KindInt:
		return toInt(raw)
	default:
		return nil, false
	}
}

//nolint:cyclop // one case per numeric type
func toInt(raw any) (any, bool) {
	switch n := raw.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		if n > math.MaxInt64 {
			return nil, false
		}
		return int(n), true
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		f, err := n.Float64()
		if err != nil {
			return nil, false
		}
		return floatToInt(f)
	default:
		return nil, false
	}
}

func floatToInt(f float64) (any, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, false
	}
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return nil, false
	}
	return int(f), true
}

func typeName(raw any) string {
	switch raw.(type) {
	case bool:
		return "bool"
	case string:
		return "string"
	case json.Number, float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", raw)
	}
}
