package masking

import "strings"

const maskToken = "****"

// SensitiveKeys are metadata keys whose string values are masked before an
// audit entry is stored.
var SensitiveKeys = []string{"promo_code", "discount_code", "payment_reference"}

// MaskSecret redacts a secret while keeping a minimal suffix for auditing.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-2:]
}

// MaskFields returns a copy of input with the string values of the given
// keys masked, at any nesting depth.
func MaskFields(input map[string]any, keys ...string) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	sensitive := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		sensitive[strings.ToLower(k)] = struct{}{}
	}

	out := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		_, mask := sensitive[strings.ToLower(trimmedKey)]
		out[trimmedKey] = maskValue(value, mask, keys)
	}
	return out
}

func maskValue(value any, mask bool, keys []string) any {
	switch cast := value.(type) {
	case string:
		if mask {
			return MaskSecret(cast)
		}
		return cast
	case map[string]any:
		return MaskFields(cast, keys...)
	case []any:
		out := make([]any, 0, len(cast))
		for _, item := range cast {
			out = append(out, maskValue(item, mask, keys))
		}
		return out
	default:
		return value
	}
}
