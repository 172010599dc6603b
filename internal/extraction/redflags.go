// Package extraction implements the Extraction Pipeline (spec §4.14):
// chunk → batch-summarize narratives → combined context assembly →
// structured extraction → deterministic red-flag detection. The extraction
// result is not normalized before the red-flag rules read it. Grounded on
// original_source's app/services/risk_detector.py (RiskDetector: thresholds
// and rule bodies).
package extraction

import (
	"fmt"
	"sort"

	"github.com/docintel/backend/internal/models"
)

// Thresholds mirror RiskDetector's class constants verbatim.
const (
	marginDeclineThreshold     = 0.03
	highDebtToEquity           = 3.0
	highDebtToEBITDA           = 5.0
	lowCurrentRatio            = 1.5
	highCustomerConcentration  = 0.50
	highCapexPct               = 0.15
	negativeCAGRThreshold      = -0.05
)

// FinancialSnapshot is the narrow typed view over an extraction result that
// the red-flag rules run against. Extracted leniently from the LLM's
// free-form JSON output via snapshotFromResult.
type FinancialSnapshot struct {
	GrossMarginByYear        map[string]float64
	FCFByYear                map[string]float64
	DebtToEquity             *float64
	NetDebtToEBITDA          *float64
	HistoricalCAGR           *float64
	CurrentRatio             *float64
	EBITDAMargin             *float64
	CustomerConcentrationPct *float64
	CapexPctRevenue          *float64
}

// DetectRedFlags runs every deterministic rule over the snapshot and
// returns the findings sorted by rule name for stable output ordering.
func DetectRedFlags(s FinancialSnapshot) []models.RedFlag {
	var flags []models.RedFlag
	flags = append(flags, checkDecliningMargins(s)...)
	flags = append(flags, checkHighLeverage(s)...)
	flags = append(flags, checkNegativeCashFlow(s)...)
	flags = append(flags, checkDecliningRevenue(s)...)
	flags = append(flags, checkLiquidity(s)...)
	flags = append(flags, checkProfitability(s)...)
	flags = append(flags, checkCustomerConcentration(s)...)
	flags = append(flags, checkHighCapex(s)...)

	sort.Slice(flags, func(i, j int) bool { return flags[i].Rule < flags[j].Rule })
	return flags
}

func checkDecliningMargins(s FinancialSnapshot) []models.RedFlag {
	if len(s.GrossMarginByYear) < 2 {
		return nil
	}
	years := historicalYears(s.GrossMarginByYear)
	if len(years) < 2 {
		return nil
	}
	latest, previous := years[len(years)-1], years[len(years)-2]
	latestMargin, previousMargin := s.GrossMarginByYear[latest], s.GrossMarginByYear[previous]
	decline := previousMargin - latestMargin
	if decline < marginDeclineThreshold {
		return nil
	}
	return []models.RedFlag{{
		Rule:     "gross_margin_decline_3pp",
		Severity: "High",
		Description: fmt.Sprintf(
			"Gross margin declined %.1f percentage points from %.1f%% (%s) to %.1f%% (%s). Indicates pricing pressure, rising costs, or unfavorable product mix.",
			decline*100, previousMargin*100, previous, latestMargin*100, latest),
		Evidence: models.JSONMap{
			"previous_year": previous, "previous_margin": previousMargin,
			"latest_year": latest, "latest_margin": latestMargin,
			"decline_pp": round1(decline * 100),
		},
	}}
}

func checkHighLeverage(s FinancialSnapshot) []models.RedFlag {
	var flags []models.RedFlag
	if s.DebtToEquity != nil && *s.DebtToEquity > highDebtToEquity {
		severity := "Medium"
		if *s.DebtToEquity > 5.0 {
			severity = "High"
		}
		flags = append(flags, models.RedFlag{
			Rule:     "debt_to_equity_high",
			Severity: severity,
			Description: fmt.Sprintf(
				"Debt-to-equity ratio of %.2fx exceeds healthy threshold (%.1fx). Indicates high financial leverage and potential solvency risk.",
				*s.DebtToEquity, highDebtToEquity),
			Evidence: models.JSONMap{"debt_to_equity": *s.DebtToEquity, "threshold": highDebtToEquity},
		})
	}
	if s.NetDebtToEBITDA != nil && *s.NetDebtToEBITDA > highDebtToEBITDA {
		severity := "Medium"
		if *s.NetDebtToEBITDA > 7.0 {
			severity = "High"
		}
		flags = append(flags, models.RedFlag{
			Rule:     "debt_to_ebitda_high",
			Severity: severity,
			Description: fmt.Sprintf(
				"Net debt-to-EBITDA ratio of %.2fx exceeds typical comfort level (%.1fx). May limit flexibility for add-on acquisitions.",
				*s.NetDebtToEBITDA, highDebtToEBITDA),
			Evidence: models.JSONMap{"net_debt_to_ebitda": *s.NetDebtToEBITDA, "threshold": highDebtToEBITDA},
		})
	}
	return flags
}

func checkNegativeCashFlow(s FinancialSnapshot) []models.RedFlag {
	if len(s.FCFByYear) < 2 {
		return nil
	}
	years := historicalYears(s.FCFByYear)
	if len(years) < 2 {
		return nil
	}
	var negativeYears []string
	for _, y := range years {
		if s.FCFByYear[y] < 0 {
			negativeYears = append(negativeYears, y)
		}
	}
	if len(negativeYears) < 2 {
		return nil
	}
	severity := "Medium"
	if len(negativeYears) >= 3 {
		severity = "High"
	}
	latestFCF := s.FCFByYear[years[len(years)-1]]
	return []models.RedFlag{{
		Rule:     "negative_fcf_consecutive",
		Severity: severity,
		Description: fmt.Sprintf(
			"Negative free cash flow in %d of last %d years. Latest FCF: %.0f. Indicates business consumes cash and may require additional capital injections.",
			len(negativeYears), len(years), latestFCF),
		Evidence: models.JSONMap{
			"negative_years": negativeYears, "total_years": len(years), "latest_fcf": latestFCF,
		},
	}}
}

func checkDecliningRevenue(s FinancialSnapshot) []models.RedFlag {
	if s.HistoricalCAGR == nil || *s.HistoricalCAGR >= negativeCAGRThreshold {
		return nil
	}
	return []models.RedFlag{{
		Rule:     "negative_revenue_cagr",
		Severity: "High",
		Description: fmt.Sprintf(
			"Historical revenue CAGR of %.1f%% indicates declining business. May signal market share loss, industry headwinds, or product obsolescence.",
			*s.HistoricalCAGR*100),
		Evidence: models.JSONMap{"historical_cagr": *s.HistoricalCAGR, "threshold": negativeCAGRThreshold},
	}}
}

func checkLiquidity(s FinancialSnapshot) []models.RedFlag {
	if s.CurrentRatio == nil || *s.CurrentRatio >= lowCurrentRatio {
		return nil
	}
	severity := "Medium"
	if *s.CurrentRatio < 1.0 {
		severity = "High"
	}
	return []models.RedFlag{{
		Rule:     "low_current_ratio",
		Severity: severity,
		Description: fmt.Sprintf(
			"Current ratio of %.2f is below healthy level (%.1f). May struggle to meet short-term obligations.",
			*s.CurrentRatio, lowCurrentRatio),
		Evidence: models.JSONMap{"current_ratio": *s.CurrentRatio, "threshold": lowCurrentRatio},
	}}
}

func checkProfitability(s FinancialSnapshot) []models.RedFlag {
	if s.EBITDAMargin == nil {
		return nil
	}
	margin := *s.EBITDAMargin
	if margin < 0 {
		return []models.RedFlag{{
			Rule:     "negative_ebitda_margin",
			Severity: "High",
			Description: fmt.Sprintf(
				"EBITDA margin of %.1f%% indicates unprofitable operations. Business is not generating cash from core operations.",
				margin*100),
			Evidence: models.JSONMap{"ebitda_margin": margin},
		}}
	}
	if margin < 0.10 {
		return []models.RedFlag{{
			Rule:     "low_ebitda_margin",
			Severity: "Medium",
			Description: fmt.Sprintf(
				"EBITDA margin of %.1f%% is below typical target (10%%+). Limited operating leverage and margin for error.",
				margin*100),
			Evidence: models.JSONMap{"ebitda_margin": margin, "threshold": 0.10},
		}}
	}
	return nil
}

func checkCustomerConcentration(s FinancialSnapshot) []models.RedFlag {
	if s.CustomerConcentrationPct == nil || *s.CustomerConcentrationPct <= highCustomerConcentration {
		return nil
	}
	concentration := *s.CustomerConcentrationPct
	severity := "Medium"
	if concentration > 0.70 {
		severity = "High"
	}
	return []models.RedFlag{{
		Rule:     "customer_concentration_high",
		Severity: severity,
		Description: fmt.Sprintf(
			"Top customers represent %.0f%% of revenue. Loss of a major customer could severely impact business viability.",
			concentration*100),
		Evidence: models.JSONMap{"concentration_pct": concentration, "threshold": highCustomerConcentration},
	}}
}

func checkHighCapex(s FinancialSnapshot) []models.RedFlag {
	if s.CapexPctRevenue == nil || *s.CapexPctRevenue <= highCapexPct {
		return nil
	}
	return []models.RedFlag{{
		Rule:     "high_capex_intensity",
		Severity: "Medium",
		Description: fmt.Sprintf(
			"CapEx represents %.1f%% of revenue, indicating capital-intensive business. May limit cash available for debt service and distributions.",
			*s.CapexPctRevenue*100),
		Evidence: models.JSONMap{"capex_pct_revenue": *s.CapexPctRevenue, "threshold": highCapexPct},
	}}
}

// historicalYears returns the map's keys sorted ascending, excluding any
// key prefixed "projected" (original_source excludes forward-looking years
// from trend detection).
func historicalYears(byYear map[string]float64) []string {
	var years []string
	for y := range byYear {
		if len(y) >= 9 && y[:9] == "projected" {
			continue
		}
		years = append(years, y)
	}
	sort.Strings(years)
	return years
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
