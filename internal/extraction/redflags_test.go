package extraction

import (
	"testing"

	"github.com/docintel/backend/internal/models"
)

func f(v float64) *float64 { return &v }

func TestDetectRedFlags_DecliningMargins(t *testing.T) {
	s := FinancialSnapshot{
		GrossMarginByYear: map[string]float64{"2022": 0.45, "2023": 0.40},
	}
	flags := DetectRedFlags(s)
	if !hasRule(flags, "gross_margin_decline_3pp") {
		t.Errorf("expected gross_margin_decline_3pp flag, got %v", ruleNames(flags))
	}
}

func TestDetectRedFlags_NoDeclineBelowThreshold(t *testing.T) {
	s := FinancialSnapshot{
		GrossMarginByYear: map[string]float64{"2022": 0.45, "2023": 0.44},
	}
	flags := DetectRedFlags(s)
	if hasRule(flags, "gross_margin_decline_3pp") {
		t.Errorf("did not expect a margin decline flag for a 1pp decline")
	}
}

func TestDetectRedFlags_ExcludesProjectedYears(t *testing.T) {
	s := FinancialSnapshot{
		GrossMarginByYear: map[string]float64{"2022": 0.45, "2023": 0.40, "projected_2024": 0.10},
	}
	flags := DetectRedFlags(s)
	for _, fl := range flags {
		if fl.Rule == "gross_margin_decline_3pp" {
			if fl.Evidence["latest_year"] != "2023" {
				t.Errorf("expected latest_year to exclude projected years, got %v", fl.Evidence["latest_year"])
			}
		}
	}
}

func TestDetectRedFlags_HighLeverage(t *testing.T) {
	s := FinancialSnapshot{DebtToEquity: f(4.0)}
	flags := DetectRedFlags(s)
	if !hasRule(flags, "debt_to_equity_high") {
		t.Errorf("expected debt_to_equity_high flag")
	}

	s2 := FinancialSnapshot{DebtToEquity: f(6.0)}
	flags2 := DetectRedFlags(s2)
	sev := severityOf(flags2, "debt_to_equity_high")
	if sev != "High" {
		t.Errorf("expected High severity for 6.0x leverage, got %q", sev)
	}
}

func TestDetectRedFlags_NegativeCashFlow(t *testing.T) {
	s := FinancialSnapshot{
		FCFByYear: map[string]float64{"2021": -10, "2022": -5, "2023": 20},
	}
	flags := DetectRedFlags(s)
	if !hasRule(flags, "negative_fcf_consecutive") {
		t.Errorf("expected negative_fcf_consecutive flag for 2 of 3 negative years")
	}
}

func TestDetectRedFlags_DecliningRevenue(t *testing.T) {
	s := FinancialSnapshot{HistoricalCAGR: f(-0.10)}
	flags := DetectRedFlags(s)
	if !hasRule(flags, "negative_revenue_cagr") {
		t.Errorf("expected negative_revenue_cagr flag")
	}
}

func TestDetectRedFlags_Liquidity(t *testing.T) {
	s := FinancialSnapshot{CurrentRatio: f(0.9)}
	flags := DetectRedFlags(s)
	if severityOf(flags, "low_current_ratio") != "High" {
		t.Errorf("expected High severity below 1.0 current ratio")
	}
}

func TestDetectRedFlags_Profitability(t *testing.T) {
	t.Run("negative margin is high severity", func(t *testing.T) {
		s := FinancialSnapshot{EBITDAMargin: f(-0.05)}
		flags := DetectRedFlags(s)
		if !hasRule(flags, "negative_ebitda_margin") {
			t.Errorf("expected negative_ebitda_margin flag")
		}
	})
	t.Run("low positive margin is medium severity", func(t *testing.T) {
		s := FinancialSnapshot{EBITDAMargin: f(0.05)}
		flags := DetectRedFlags(s)
		if !hasRule(flags, "low_ebitda_margin") {
			t.Errorf("expected low_ebitda_margin flag")
		}
	})
	t.Run("healthy margin has no flag", func(t *testing.T) {
		s := FinancialSnapshot{EBITDAMargin: f(0.25)}
		flags := DetectRedFlags(s)
		if hasRule(flags, "negative_ebitda_margin") || hasRule(flags, "low_ebitda_margin") {
			t.Errorf("did not expect a profitability flag for a healthy margin")
		}
	})
}

func TestDetectRedFlags_CustomerConcentration(t *testing.T) {
	s := FinancialSnapshot{CustomerConcentrationPct: f(0.75)}
	flags := DetectRedFlags(s)
	if severityOf(flags, "customer_concentration_high") != "High" {
		t.Errorf("expected High severity above 70%% concentration")
	}
}

func TestDetectRedFlags_HighCapex(t *testing.T) {
	s := FinancialSnapshot{CapexPctRevenue: f(0.20)}
	flags := DetectRedFlags(s)
	if !hasRule(flags, "high_capex_intensity") {
		t.Errorf("expected high_capex_intensity flag")
	}
}

func TestDetectRedFlags_SortedByRuleName(t *testing.T) {
	s := FinancialSnapshot{
		DebtToEquity:  f(4.0),
		CurrentRatio:  f(0.5),
		EBITDAMargin:  f(-0.1),
	}
	flags := DetectRedFlags(s)
	for i := 1; i < len(flags); i++ {
		if flags[i-1].Rule > flags[i].Rule {
			t.Errorf("flags not sorted: %v before %v", flags[i-1].Rule, flags[i].Rule)
		}
	}
}

func TestDetectRedFlags_EmptySnapshotProducesNoFlags(t *testing.T) {
	flags := DetectRedFlags(FinancialSnapshot{})
	if len(flags) != 0 {
		t.Errorf("expected no flags for empty snapshot, got %d", len(flags))
	}
}

func hasRule(flags []models.RedFlag, rule string) bool {
	for _, fl := range flags {
		if fl.Rule == rule {
			return true
		}
	}
	return false
}

func ruleNames(flags []models.RedFlag) []string {
	out := make([]string, len(flags))
	for i, fl := range flags {
		out[i] = fl.Rule
	}
	return out
}

func severityOf(flags []models.RedFlag, rule string) string {
	for _, fl := range flags {
		if fl.Rule == rule {
			return fl.Severity
		}
	}
	return ""
}
