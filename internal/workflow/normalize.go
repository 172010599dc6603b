package workflow

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/docintel/backend/internal/models"
)

// citationRe matches the wire-exact citation token anywhere in generated
// text (spec §6: regex `\[D\d+:p\d+\]`).
var citationRe = regexp.MustCompile(`\[D\d+:p\d+\]`)

// Normalize applies the domain-agnostic output shaping spec §4.12
// describes — null omission, string-array→object promotion, severity/
// impact enum coercion, confidence clamping, minimum section-count
// padding, and rebuilt references — then validates every citation token
// appearing in the normalized text against the retrieved-context set,
// returning the tokens that don't belong. Grounded on original_source's
// normalize_workflow_output/normalize_sections/normalize_risk_items/
// normalize_opportunity_items (app/services/workflows/normalization.py).
func Normalize(data models.JSONMap, workflowName string, allowed map[string]bool) (models.JSONMap, []string) {
	out := make(models.JSONMap, len(data))
	for k, v := range data {
		if v == nil {
			continue
		}
		out[k] = v
	}

	if _, ok := out["sections"]; ok {
		out["sections"] = normalizeSections(out["sections"])
	} else {
		out["sections"] = []map[string]interface{}{}
	}
	if sections, ok := out["sections"].([]map[string]interface{}); ok && len(sections) < 2 {
		for len(sections) < 2 {
			n := len(sections) + 1
			sections = append(sections, map[string]interface{}{
				"key":        fmt.Sprintf("placeholder_section_%d", n),
				"title":      fmt.Sprintf("Section %d", n),
				"content":    "[Content not generated - insufficient sections produced]",
				"citations":  []string{},
			})
		}
		out["sections"] = sections
	}

	if risks, ok := out["risks"]; ok {
		out["risks"] = normalizeRiskOrOpportunity(risks, "severity", []string{"Low", "Medium", "High", "Critical"}, "risk")
	} else {
		out["risks"] = []map[string]interface{}{}
	}
	if opps, ok := out["opportunities"]; ok {
		out["opportunities"] = normalizeRiskOrOpportunity(opps, "impact", []string{"Low", "Medium", "High"}, "opportunity")
	} else {
		out["opportunities"] = []map[string]interface{}{}
	}

	clampConfidence(out)

	references := rebuildReferences(out)
	out["references"] = references

	var invalid []string
	seenInvalid := make(map[string]bool)
	for _, token := range references {
		if !allowed[token] {
			if !seenInvalid[token] {
				seenInvalid[token] = true
				invalid = append(invalid, token)
			}
		}
	}
	sort.Strings(invalid)

	return out, invalid
}

// normalizeSections promotes bare strings to section objects and fills in
// any missing key/title/content/citations fields.
func normalizeSections(raw interface{}) []map[string]interface{} {
	list, ok := asSlice(raw)
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(list))
	for idx, item := range list {
		switch v := item.(type) {
		case string:
			out = append(out, map[string]interface{}{
				"key":       slugify(v),
				"title":     v,
				"content":   "[Content not generated]",
				"citations": []string{},
			})
		case map[string]interface{}:
			sec := make(map[string]interface{}, len(v))
			for k, val := range v {
				sec[k] = val
			}
			title, hasTitle := sec["title"].(string)
			if _, hasKey := sec["key"]; !hasKey && hasTitle {
				sec["key"] = slugify(title)
			}
			if _, hasTitle := sec["title"]; !hasTitle {
				key, _ := sec["key"].(string)
				if key == "" {
					key = fmt.Sprintf("section_%d", idx+1)
				}
				sec["title"] = strings.Title(strings.ReplaceAll(key, "_", " "))
			}
			if content, ok := sec["content"].(string); !ok || content == "" {
				sec["content"] = "[Content not generated]"
			}
			sec["citations"] = normalizeCitationList(sec["citations"])
			out = append(out, sec)
		}
	}
	return out
}

// normalizeRiskOrOpportunity applies the shared risk/opportunity shaping:
// field-name fallback (risk|opportunity → description), a default
// category, enum coercion for the severity/impact field, and dropping any
// field outside the schema's four.
func normalizeRiskOrOpportunity(raw interface{}, enumField string, validValues []string, altDescField string) []map[string]interface{} {
	list, ok := asSlice(raw)
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		norm := map[string]interface{}{}

		if desc, ok := m["description"].(string); ok {
			norm["description"] = strings.TrimSpace(desc)
		} else if alt, ok := m[altDescField].(string); ok {
			norm["description"] = strings.TrimSpace(alt)
		} else {
			norm["description"] = fmt.Sprintf("[%s description not provided]", strings.Title(altDescField))
		}

		if cat, ok := m["category"].(string); ok && cat != "" {
			norm["category"] = strings.TrimSpace(cat)
		} else {
			norm["category"] = "General"
		}

		norm[enumField] = coerceEnum(m[enumField], validValues)

		if cits, ok := m["citations"]; ok {
			norm["citations"] = normalizeCitationList(cits)
		}

		out = append(out, norm)
	}
	return out
}

// coerceEnum maps a free-form severity/impact value onto the closed enum
// set, defaulting to "Medium" for anything unrecognized (spec §4.12
// "severity/impact coerced to the enum closed set").
func coerceEnum(raw interface{}, valid []string) string {
	s, _ := raw.(string)
	s = strings.TrimSpace(s)
	if s == "" {
		return "Medium"
	}
	titled := strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
	for _, v := range valid {
		if titled == v {
			return v
		}
	}
	lower := strings.ToLower(s)
	switch lower {
	case "low", "minor":
		return "Low"
	case "medium", "moderate":
		return "Medium"
	case "high", "major", "significant":
		return "High"
	case "critical", "severe":
		return firstOr(valid, "Critical", "High")
	default:
		return "Medium"
	}
}

func firstOr(valid []string, want, fallback string) string {
	for _, v := range valid {
		if v == want {
			return want
		}
	}
	return fallback
}

func normalizeCitationList(raw interface{}) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case string:
		if v == "" {
			return []string{}
		}
		return []string{v}
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, c := range v {
			if s, ok := c.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}

// clampConfidence walks top-level and section-level confidence fields,
// clamping to [0,1] and treating values >1 as a percentage (spec §4.12).
func clampConfidence(out models.JSONMap) {
	if v, ok := out["confidence"]; ok {
		out["confidence"] = clampConfidenceValue(v)
	}
	if sections, ok := out["sections"].([]map[string]interface{}); ok {
		for _, s := range sections {
			if v, ok := s["confidence"]; ok {
				s["confidence"] = clampConfidenceValue(v)
			}
		}
	}
}

func clampConfidenceValue(raw interface{}) float64 {
	var num float64
	switch v := raw.(type) {
	case float64:
		num = v
	case int:
		num = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0.5
		}
		num = parsed
	default:
		return 0.5
	}
	if num > 1 {
		num = num / 100.0
	}
	if num < 0 {
		num = 0
	}
	if num > 1 {
		num = 1
	}
	return num
}

// rebuildReferences scans every citation token present in the normalized
// section content/citations fields and the top-level answer text (if any),
// returning the deduped, sorted set (spec §4.12: "`references` is rebuilt
// as the deduped sorted set of citation tokens actually present in the
// text").
func rebuildReferences(out models.JSONMap) []string {
	set := make(map[string]bool)

	collect := func(s string) {
		for _, m := range citationRe.FindAllString(s, -1) {
			set[m] = true
		}
	}

	if sections, ok := out["sections"].([]map[string]interface{}); ok {
		for _, s := range sections {
			if content, ok := s["content"].(string); ok {
				collect(content)
			}
			if cits, ok := s["citations"].([]string); ok {
				for _, c := range cits {
					set[c] = true
				}
			}
		}
	}
	if answer, ok := out["answer"].(string); ok {
		collect(answer)
	}

	refs := make([]string, 0, len(set))
	for token := range set {
		refs = append(refs, token)
	}
	sort.Strings(refs)
	return refs
}

func slugify(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "&", "and")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}

func asSlice(raw interface{}) ([]interface{}, bool) {
	switch v := raw.(type) {
	case []interface{}:
		return v, true
	case []map[string]interface{}:
		out := make([]interface{}, len(v))
		for i, m := range v {
			out[i] = m
		}
		return out, true
	case []string:
		out := make([]interface{}, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}
