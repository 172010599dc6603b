package workflow

import (
	"testing"

	"github.com/docintel/backend/internal/models"
)

func TestNormalize_PromotesStringSectionsToObjects(t *testing.T) {
	data := models.JSONMap{
		"sections": []interface{}{"Overview", "Risk Factors"},
	}
	out, _ := Normalize(data, "wf", map[string]bool{})
	sections, ok := out["sections"].([]map[string]interface{})
	if !ok {
		t.Fatalf("expected sections to be []map[string]interface{}, got %T", out["sections"])
	}
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(sections))
	}
	if sections[0]["title"] != "Overview" {
		t.Errorf("sections[0][title] = %v, want Overview", sections[0]["title"])
	}
	if sections[0]["key"] != "overview" {
		t.Errorf("sections[0][key] = %v, want overview", sections[0]["key"])
	}
}

func TestNormalize_PadsToMinimumTwoSections(t *testing.T) {
	data := models.JSONMap{"sections": []interface{}{"Only One"}}
	out, _ := Normalize(data, "wf", map[string]bool{})
	sections := out["sections"].([]map[string]interface{})
	if len(sections) != 2 {
		t.Fatalf("expected padding to 2 sections, got %d", len(sections))
	}
	if sections[1]["key"] != "placeholder_section_2" {
		t.Errorf("sections[1][key] = %v, want placeholder_section_2", sections[1]["key"])
	}
}

func TestNormalize_RisksEnumCoercion(t *testing.T) {
	data := models.JSONMap{
		"risks": []interface{}{
			map[string]interface{}{"risk": "customer churn", "severity": "significant"},
		},
	}
	out, _ := Normalize(data, "wf", map[string]bool{})
	risks := out["risks"].([]map[string]interface{})
	if risks[0]["severity"] != "High" {
		t.Errorf("severity = %v, want High", risks[0]["severity"])
	}
	if risks[0]["description"] != "customer churn" {
		t.Errorf("description = %v, want customer churn", risks[0]["description"])
	}
}

func TestNormalize_OpportunitiesDefaultCategoryAndEnum(t *testing.T) {
	data := models.JSONMap{
		"opportunities": []interface{}{
			map[string]interface{}{"description": "new market entry"},
		},
	}
	out, _ := Normalize(data, "wf", map[string]bool{})
	opps := out["opportunities"].([]map[string]interface{})
	if opps[0]["category"] != "General" {
		t.Errorf("category = %v, want General", opps[0]["category"])
	}
	if opps[0]["impact"] != "Medium" {
		t.Errorf("impact = %v, want Medium (no enum value given)", opps[0]["impact"])
	}
}

func TestNormalize_NullFieldsAreOmitted(t *testing.T) {
	data := models.JSONMap{"summary": "text", "dropped": nil}
	out, _ := Normalize(data, "wf", map[string]bool{})
	if _, exists := out["dropped"]; exists {
		t.Errorf("expected nil-valued field to be omitted")
	}
	if out["summary"] != "text" {
		t.Errorf("expected non-nil field to survive")
	}
}

func TestNormalize_ConfidenceClamping(t *testing.T) {
	cases := []struct {
		name string
		in   interface{}
		want float64
	}{
		{"already in range", 0.75, 0.75},
		{"percentage value over 1", 85.0, 0.85},
		{"negative clamps to 0", -5.0, 0},
		{"over 100 after percent conversion clamps to 1", 250.0, 1},
		{"numeric string", "0.4", 0.4},
		{"unparseable defaults to 0.5", "not a number", 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := models.JSONMap{"confidence": tc.in}
			out, _ := Normalize(data, "wf", map[string]bool{})
			if got := out["confidence"]; got != tc.want {
				t.Errorf("confidence = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNormalize_ReferencesRebuiltFromCitedTokens(t *testing.T) {
	data := models.JSONMap{
		"sections": []interface{}{
			map[string]interface{}{
				"title":     "Findings",
				"content":   "Revenue grew [D1:p2] while costs rose [D2:p5].",
				"citations": []interface{}{"[D1:p2]"},
			},
		},
	}
	allowed := map[string]bool{"[D1:p2]": true, "[D2:p5]": true}
	out, invalid := Normalize(data, "wf", allowed)

	refs := out["references"].([]string)
	if len(refs) != 2 {
		t.Fatalf("expected 2 deduped references, got %v", refs)
	}
	if len(invalid) != 0 {
		t.Errorf("expected no invalid citations, got %v", invalid)
	}
}

func TestNormalize_FlagsCitationsNotInAllowedSet(t *testing.T) {
	data := models.JSONMap{
		"sections": []interface{}{
			map[string]interface{}{
				"title":   "Findings",
				"content": "Revenue grew [D9:p1].",
			},
		},
	}
	out, invalid := Normalize(data, "wf", map[string]bool{})
	refs := out["references"].([]string)
	if len(refs) != 1 || refs[0] != "[D9:p1]" {
		t.Errorf("references = %v", refs)
	}
	if len(invalid) != 1 || invalid[0] != "[D9:p1]" {
		t.Errorf("invalid = %v, want [[D9:p1]]", invalid)
	}
}

func TestCoerceEnum(t *testing.T) {
	valid := []string{"Low", "Medium", "High", "Critical"}
	cases := map[string]string{
		"":         "Medium",
		"low":      "Low",
		"moderate": "Medium",
		"major":    "High",
		"severe":   "Critical",
		"High":     "High",
		"unknown_value": "Medium",
	}
	for in, want := range cases {
		if got := coerceEnum(in, valid); got != want {
			t.Errorf("coerceEnum(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCoerceEnum_SevereFallsBackWhenCriticalNotValid(t *testing.T) {
	valid := []string{"Low", "Medium", "High"}
	if got := coerceEnum("critical", valid); got != "High" {
		t.Errorf("coerceEnum(critical) with no Critical in valid set = %q, want High", got)
	}
}

func TestSlugify(t *testing.T) {
	if got := slugify("Simple Title"); got != "simple_title" {
		t.Errorf("slugify(Simple Title) = %q, want simple_title", got)
	}
	if got := slugify("Risk & Reward"); got != "risk_and_reward" {
		t.Errorf("slugify(Risk & Reward) = %q, want risk_and_reward", got)
	}
}
