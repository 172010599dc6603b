package utils

import "testing"

func TestDecodeJSONLenient_StrictPathSucceeds(t *testing.T) {
	var out map[string]interface{}
	if err := DecodeJSONLenient(`{"a": 1}`, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["a"].(float64) != 1 {
		t.Errorf("a = %v, want 1", out["a"])
	}
}

func TestDecodeJSONLenient_RepairsCodeFenceAndPreamble(t *testing.T) {
	raw := "Here is your JSON:\n```json\n{\"a\": 1, \"b\": 2,}\n```\nLet me know if you need anything else."
	var out map[string]interface{}
	if err := DecodeJSONLenient(raw, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["a"].(float64) != 1 || out["b"].(float64) != 2 {
		t.Errorf("got %v", out)
	}
}

func TestDecodeJSONLenient_RepairsTrailingComma(t *testing.T) {
	var out []interface{}
	if err := DecodeJSONLenient(`[1, 2, 3,]`, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 3 {
		t.Errorf("len = %d, want 3", len(out))
	}
}

func TestDecodeJSONLenient_StillFailsOnGarbage(t *testing.T) {
	var out map[string]interface{}
	if err := DecodeJSONLenient("not json at all, no braces", &out); err == nil {
		t.Errorf("expected error for ungarbleable input")
	}
}

func TestRepairJSON_DropsPreamble(t *testing.T) {
	got := RepairJSON(`blah blah {"x":1} trailing notes`)
	if got != `{"x":1}` {
		t.Errorf("got %q", got)
	}
}

func TestRepairJSON_BalancesQuotes(t *testing.T) {
	got := RepairJSON(`{"x": "unterminated`)
	if got[len(got)-1] != '"' {
		t.Errorf("expected a trailing closing quote, got %q", got)
	}
}

func TestRepairJSON_TrailingCommaInObject(t *testing.T) {
	got := RepairJSON(`{"a":1,"b":2,}`)
	if got != `{"a":1,"b":2}` {
		t.Errorf("got %q", got)
	}
}
