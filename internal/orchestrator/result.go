package orchestrator

import (
	"encoding/json"
	"fmt"
)

const (
	ContentTypeJSON   = "application/json"
	ContentTypeText   = "text/plain; charset=utf-8"
	ContentTypeBinary = "application/octet-stream"
)

// Result is a persisted task return value.
type Result struct {
	ContentType string
	Data        []byte
}

// Text builds a plain text result.
func Text(s string) Result {
	return Result{ContentType: ContentTypeText, Data: []byte(s)}
}

// EncodeResult serializes a handler return value. Result values keep their
// content type, []byte is stored as-is and anything else is JSON encoded.
func EncodeResult(v any) (Result, error) {
	switch r := v.(type) {
	case Result:
		return r, nil
	case *Result:
		if r == nil {
			return Result{ContentType: ContentTypeJSON, Data: []byte("null")}, nil
		}
		return *r, nil
	case []byte:
		return Result{ContentType: ContentTypeBinary, Data: r}, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return Result{}, fmt.Errorf("encode result: %w", err)
	}
	return Result{ContentType: ContentTypeJSON, Data: data}, nil
}

// Decode unmarshals a JSON result into v.
func (r Result) Decode(v any) error {
	if r.ContentType != ContentTypeJSON {
		return fmt.Errorf("result content type %q is not JSON", r.ContentType)
	}
	return json.Unmarshal(r.Data, v)
}

// ResultKey is the storage key of a run's result.
func ResultKey(runID string) string {
	return "task_run:" + runID
}
