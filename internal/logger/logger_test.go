package logger

import "testing"

func TestRedactMasksSensitiveFields(t *testing.T) {
	fields := map[string]interface{}{
		"api_key":       "super-secret-api-key",
		"contract_key":  "0f8fad5b-d9cb-469f-a165-70867728950e",
		"user_id":       int64(7),
		"order_id":      42,
		"short_token":   "abc",
		"Authorization": "Bearer abcdef123456",
	}

	out := redact(fields)

	if out["api_key"] != "sup...key" {
		t.Errorf("expected truncated api_key, got %v", out["api_key"])
	}
	if out["contract_key"] != "0f8...50e" {
		t.Errorf("expected truncated contract_key, got %v", out["contract_key"])
	}
	if out["short_token"] != "[REDACTED]" {
		t.Errorf("expected short values fully replaced, got %v", out["short_token"])
	}
	if out["Authorization"] != "Bea...456" {
		t.Errorf("expected case-insensitive key match, got %v", out["Authorization"])
	}
	if out["user_id"] != int64(7) || out["order_id"] != 42 {
		t.Errorf("expected non-sensitive fields untouched: %v", out)
	}
}

func TestRedactNilFields(t *testing.T) {
	if out := redact(nil); out != nil {
		t.Errorf("expected nil passthrough, got %v", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	l := New(WARN)
	if l.level != WARN {
		t.Fatalf("expected WARN level")
	}
	if DEBUG.String() != "DEBUG" || ERROR.String() != "ERROR" {
		t.Errorf("unexpected level names")
	}
	if Level(99).String() != "UNKNOWN" {
		t.Errorf("expected UNKNOWN for out-of-range levels")
	}
}

func TestMergeCombinesMaps(t *testing.T) {
	out := merge(
		map[string]interface{}{"a": 1},
		map[string]interface{}{"b": 2, "a": 3},
	)
	if out["a"] != 3 || out["b"] != 2 {
		t.Errorf("expected later maps to win: %v", out)
	}
	if merge() != nil {
		t.Errorf("expected nil for no field maps")
	}
}
