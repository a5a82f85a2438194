package llm

import (
	"fmt"
	"math"
	"net/url"
	"time"
)

// Valid ranges for request parameters, shared by every provider.
const (
	MinTemperature = 0.0
	// MaxTemperature is 2.0 to accommodate providers like Gemini.
	MaxTemperature = 2.0
	MinTopP        = 0.0
	MaxTopP        = 1.0
	MinPenalty     = -2.0
	MaxPenalty     = 2.0

	// DefaultMaxTokens caps generated output when the caller sets nothing.
	// Answers are asked to be short, so this is generous.
	DefaultMaxTokens = 1024

	MinTimeout = 1 * time.Second
	MaxTimeout = 10 * time.Minute
)

// ExtractOptionalInt returns opts[key] when it is an int accepted by
// validator, and defaultVal otherwise.
func ExtractOptionalInt(opts map[string]any, key string, defaultVal int, validator func(int) bool) int {
	v, ok := opts[key]
	if !ok {
		return defaultVal
	}
	i, ok := SafeInt(v)
	if !ok || (validator != nil && !validator(i)) {
		return defaultVal
	}
	return i
}

// ExtractOptionalString returns opts[key] when it is a string accepted by
// validator, and defaultVal otherwise.
func ExtractOptionalString(opts map[string]any, key string, defaultVal string, validator func(string) bool) string {
	s, ok := opts[key].(string)
	if !ok || (validator != nil && !validator(s)) {
		return defaultVal
	}
	return s
}

// ExtractOptionalFloat64 returns opts[key] when it is numeric and accepted
// by validator, and defaultVal otherwise.
func ExtractOptionalFloat64(opts map[string]any, key string, defaultVal float64, validator func(float64) bool) float64 {
	v, ok := opts[key]
	if !ok {
		return defaultVal
	}

	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	default:
		return defaultVal
	}

	if validator != nil && !validator(f) {
		return defaultVal
	}
	return f
}

// IsPositiveInt checks if the integer value is positive.
func IsPositiveInt(val int) bool { return val > 0 }

// IsNonEmptyString checks if the string is non-empty.
func IsNonEmptyString(val string) bool { return val != "" }

// IsValidTemperature checks if the temperature is within [0.0, 2.0].
func IsValidTemperature(val float64) bool {
	return val >= MinTemperature && val <= MaxTemperature
}

// IsValidTopP checks if the top_p value is within [0.0, 1.0].
func IsValidTopP(val float64) bool {
	return val >= MinTopP && val <= MaxTopP
}

// ValidateBaseURL checks that baseURL is an absolute http(s) URL. An empty
// string is valid and selects the provider default.
func ValidateBaseURL(baseURL string) (string, error) {
	if baseURL == "" {
		return "", nil
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("URL scheme must be http or https, but got: %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("URL must include a host")
	}
	return parsed.String(), nil
}

// ValidateTimeout clamps timeout to [MinTimeout, MaxTimeout]. Zero or
// negative values return zero, meaning the default applies.
func ValidateTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 0
	}
	return min(max(timeout, MinTimeout), MaxTimeout)
}

// SafeFloat32 converts a numeric value to float32, failing when the value
// is outside the float32 range.
func SafeFloat32(value any) (float32, bool) {
	switch v := value.(type) {
	case float32:
		return v, true
	case float64:
		if v > math.MaxFloat32 || v < -math.MaxFloat32 {
			return 0, false
		}
		return float32(v), true
	case int:
		return float32(v), true
	default:
		return 0, false
	}
}

// SafeInt converts a numeric value to int. NaN and out-of-range floats fail.
func SafeInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		if int64(int(v)) != v {
			return 0, false
		}
		return int(v), true
	case float64:
		if math.IsNaN(v) || v > math.MaxInt || v < math.MinInt {
			return 0, false
		}
		return int(v), true
	default:
		return 0, false
	}
}

// ClampFloat64 clamps val to [lo, hi].
func ClampFloat64(val, lo, hi float64) float64 {
	return min(max(val, lo), hi)
}
