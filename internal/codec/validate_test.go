package codec

import (
	"encoding/json"
	"testing"
)

const wellFormed = `{
	"schemaVersion": 1,
	"exportedAt": "2024-03-01T00:00:00Z",
	"appVersion": "1.0.0",
	"notebook": {
		"id": "nb", "title": "T",
		"sources": [], "chat": [], "outputs": [], "notes": [],
		"createdAt": "2024-03-01T00:00:00Z", "updatedAt": "2024-03-01T00:00:00Z"
	}
}`

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func mutate(t *testing.T, fn func(env map[string]any)) any {
	t.Helper()
	env := decode(t, wellFormed).(map[string]any)
	fn(env)
	return env
}

func TestValidateImport_WellFormed(t *testing.T) {
	if !ValidateImport(decode(t, wellFormed)) {
		t.Error("well-formed envelope rejected")
	}
}

func TestValidateImport_Rejects(t *testing.T) {
	cases := map[string]any{
		"empty object": decode(t, `{}`),
		"missing schemaVersion": mutate(t, func(env map[string]any) {
			delete(env, "schemaVersion")
		}),
		"schemaVersion as text": mutate(t, func(env map[string]any) {
			env["schemaVersion"] = "1"
		}),
		"sources not a sequence": mutate(t, func(env map[string]any) {
			env["notebook"].(map[string]any)["sources"] = "nope"
		}),
		"notebook missing": mutate(t, func(env map[string]any) {
			delete(env, "notebook")
		}),
		"title not text": mutate(t, func(env map[string]any) {
			env["notebook"].(map[string]any)["title"] = 7.0
		}),
		"appVersion missing": mutate(t, func(env map[string]any) {
			delete(env, "appVersion")
		}),
		"array":  decode(t, `[]`),
		"null":   nil,
		"string": "hello",
	}
	for name, raw := range cases {
		if ValidateImport(raw) {
			t.Errorf("%s: expected rejection", name)
		}
	}
}

func TestEstimateSize(t *testing.T) {
	small := EstimateSize([]string{"a"})
	large := EstimateSize([]string{"a", "bbbbbbbbbb"})
	if small <= 0 || large <= small {
		t.Errorf("sizes not monotonic: %d, %d", small, large)
	}
	if EstimateSize([]string{"a"}) != small {
		t.Error("size not stable")
	}
	if EstimateSize(make(chan int)) != 0 {
		t.Error("unencodable value should be zero")
	}
}

func TestSizeBreakdown(t *testing.T) {
	b := SizeBreakdown(sampleNotebook())
	if b.Sources == 0 || b.Chat == 0 || b.Outputs == 0 || b.Notes == 0 {
		t.Errorf("breakdown has empty parts: %+v", b)
	}
	if b.Total < b.Sources+b.Chat+b.Outputs+b.Notes {
		t.Errorf("total %d smaller than parts: %+v", b.Total, b)
	}
}
