package expander

import (
	"testing"

	"github.com/docintel/backend/internal/models"
)

func TestDampenFactor(t *testing.T) {
	cases := map[string]float64{
		"linked_table":         0.85,
		"linked_narrative":     0.90,
		"parent_section":       0.75,
		"sibling_continuation": 0.75,
		"unknown_reason":       0.75,
	}
	for reason, want := range cases {
		if got := dampenFactor(reason); got != want {
			t.Errorf("dampenFactor(%q) = %v, want %v", reason, got, want)
		}
	}
}

func TestPlanFor_DataExtraction(t *testing.T) {
	p := PlanFor(models.QueryTypeDataExtraction)
	if !p.IncludeParent || !p.IncludeLinkedTables || !p.IncludeLinkedNarrative {
		t.Errorf("data_extraction plan missing expected expansions: %+v", p)
	}
	if p.MaxPerChunk != DefaultMaxExpansionPerChunk {
		t.Errorf("MaxPerChunk = %d, want %d", p.MaxPerChunk, DefaultMaxExpansionPerChunk)
	}
	if p.IncludeSiblings {
		t.Errorf("data_extraction should not include siblings")
	}
}

func TestPlanFor_Summarization(t *testing.T) {
	p := PlanFor(models.QueryTypeSummarization)
	if !p.IncludeParent {
		t.Errorf("summarization should include parent")
	}
	if p.IncludeSiblings || p.IncludeLinkedTables || p.IncludeLinkedNarrative {
		t.Errorf("summarization should only include parent, got %+v", p)
	}
}

func TestPlanFor_EntityLookup(t *testing.T) {
	p := PlanFor(models.QueryTypeEntityLookup)
	if !p.IncludeLinkedNarrative {
		t.Errorf("entity_lookup should include linked narrative")
	}
	if p.IncludeParent || p.IncludeSiblings || p.IncludeLinkedTables {
		t.Errorf("entity_lookup should only include linked narrative, got %+v", p)
	}
}

func TestPlanFor_GeneralQAAndComparison(t *testing.T) {
	for _, qt := range []models.QueryType{models.QueryTypeGeneralQA, models.QueryTypeComparison} {
		p := PlanFor(qt)
		if !p.IncludeParent || !p.IncludeSiblings || !p.IncludeLinkedTables || !p.IncludeLinkedNarrative {
			t.Errorf("%v plan should include every expansion direction, got %+v", qt, p)
		}
		if p.MaxPerChunk != DefaultMaxExpansionPerChunk {
			t.Errorf("%v MaxPerChunk = %d, want %d", qt, p.MaxPerChunk, DefaultMaxExpansionPerChunk)
		}
	}
}

func TestPlanFor_UnknownQueryTypeIsEmptyPlan(t *testing.T) {
	p := PlanFor(models.QueryType("something_else"))
	if p.IncludeParent || p.IncludeSiblings || p.IncludeLinkedTables || p.IncludeLinkedNarrative {
		t.Errorf("expected an empty plan for an unrecognized query type, got %+v", p)
	}
}
