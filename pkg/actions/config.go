// Package actions holds helpers shared by the step handler packages.
package actions

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrConfig marks a configuration error: retrying the step cannot help.
var ErrConfig = errors.New("invalid step configuration")

// ConfigError returns an error wrapping ErrConfig with the given message.
func ConfigError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// String returns the first non-empty string value among keys.
func String(config map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := config[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return fmt.Sprint(v)
		}
	}

	return ""
}

// Object accepts either a decoded object or a JSON string holding one. Anything else,
// including invalid JSON, yields an empty map.
func Object(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return t
	case string:
		var out map[string]any
		if err := json.Unmarshal([]byte(t), &out); err != nil || out == nil {
			return map[string]any{}
		}

		return out
	default:
		return map[string]any{}
	}
}

// StringMap is Object with every value stringified, the shape of HTTP headers.
func StringMap(v any) map[string]string {
	obj := Object(v)
	out := make(map[string]string, len(obj))

	for k, val := range obj {
		if s, ok := val.(string); ok {
			out[k] = s
		} else {
			out[k] = fmt.Sprint(val)
		}
	}

	return out
}

// ParseJSONMaybe decodes strings holding JSON and returns every other value unchanged.
func ParseJSONMaybe(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}

	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return s
	}

	return out
}

// PrettyJSON renders v indented with two spaces, the default body of notifications.
func PrettyJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}

	return string(b)
}
