package config

import (
	"strings"
)

// secretKeys are the flat keys whose values are masked in listings.
var secretKeys = map[string]bool{
	"slack.bot_token":      true,
	"slack.signing_secret": true,
	"worker.api_key":       true,
}

// IsSecretKey reports whether key holds a credential.
func IsSecretKey(key string) bool {
	return secretKeys[key]
}

// Flatten converts a nested map into a flat map with dot-separated keys,
// so {"slack": {"bot_user_id": "U1"}} becomes {"slack.bot_user_id": "U1"}.
// Empty sections produce no keys.
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any)
	flattenInto(out, "", m)
	return out
}

func flattenInto(out map[string]any, prefix string, m map[string]any) {
	for k, v := range m {
		if prefix != "" {
			k = prefix + "." + k
		}
		if section, ok := v.(map[string]any); ok {
			flattenInto(out, k, section)
			continue
		}
		out[k] = v
	}
}

// Unflatten reverses Flatten.
func Unflatten(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range flat {
		path := strings.Split(k, ".")
		node := out
		for _, name := range path[:len(path)-1] {
			child, ok := node[name].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[name] = child
			}
			node = child
		}
		node[path[len(path)-1]] = v
	}
	return out
}

// MaskSecrets returns a copy of flat with credentials reduced to "***" and
// their last four characters. Empty values stay empty.
func MaskSecrets(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		if s, ok := v.(string); ok && secretKeys[k] {
			v = mask(s)
		}
		out[k] = v
	}
	return out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***" + s[max(len(s)-4, 0):]
}
