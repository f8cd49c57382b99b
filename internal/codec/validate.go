package codec

// ValidateImport reports whether raw, a value produced by decoding untrusted
// JSON into an interface{}, has the shape of an export envelope. It checks
// presence and primitive kind only; it never panics.
func ValidateImport(raw any) bool {
	env, ok := raw.(map[string]any)
	if !ok {
		return false
	}
	if !isNumber(env["schemaVersion"]) || !isString(env["exportedAt"]) || !isString(env["appVersion"]) {
		return false
	}
	nb, ok := env["notebook"].(map[string]any)
	if !ok {
		return false
	}
	for _, k := range []string{"id", "title", "createdAt", "updatedAt"} {
		if !isString(nb[k]) {
			return false
		}
	}
	for _, k := range []string{"sources", "chat", "outputs", "notes"} {
		if _, ok := nb[k].([]any); !ok {
			return false
		}
	}
	return true
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

func isNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int64, int32:
		return true
	}
	return false
}
