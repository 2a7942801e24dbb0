package apierr

import (
	"encoding/json"
	"fmt"
	"strings"
)

type fieldDetail struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// ParseBody extracts a message and per-field errors from an error response body.
// It understands {"detail": "..."}, {"detail": [{"loc": [...], "msg": "..."}]},
// {"error": "..."} and plain text.
func ParseBody(body []byte) (string, map[string]string) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "", nil
	}
	var env struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return trimmed, nil
	}
	if env.Error != "" {
		return env.Error, nil
	}
	if len(env.Detail) == 0 {
		return "", nil
	}
	var msg string
	if err := json.Unmarshal(env.Detail, &msg); err == nil {
		return msg, nil
	}
	var details []fieldDetail
	if err := json.Unmarshal(env.Detail, &details); err != nil {
		return "", nil
	}
	fields := make(map[string]string, len(details))
	for _, d := range details {
		name := fieldName(d.Loc)
		if _, dup := fields[name]; !dup {
			fields[name] = d.Msg
		}
	}
	return "", fields
}

// fieldName picks the last string element of a location path, skipping the
// "body"/"query" prefix.
func fieldName(loc []any) string {
	for i := len(loc) - 1; i >= 0; i-- {
		if s, ok := loc[i].(string); ok && s != "body" && s != "query" {
			return s
		}
	}
	if len(loc) > 0 {
		return fmt.Sprint(loc[len(loc)-1])
	}
	return "_"
}

// Decode builds the classified error for a non-2xx response.
func Decode(op string, status int, body []byte, hint Kind) *Error {
	msg, fields := ParseBody(body)
	e := FromStatus(op, status, msg, hint)
	if len(fields) > 0 {
		e.Fields = fields
		if e.Kind != KindValidation {
			e.Message = firstField(fields)
		}
	}
	return e
}

func firstField(fields map[string]string) string {
	best := ""
	for k := range fields {
		if best == "" || k < best {
			best = k
		}
	}
	return fields[best]
}
