package eligibility

import (
	"fmt"
	"strings"
)

// MaxCriteriaRunes caps the criteria text sent to the model.
const MaxCriteriaRunes = 4000

const systemPrompt = `You extract structured eligibility criteria from clinical trial text.
Reply with a single JSON object and nothing else, using exactly these keys:
{
  "sex": "ALL" | "FEMALE" | "MALE",
  "min_age_years": number or null,
  "max_age_years": number or null,
  "accepts_healthy_volunteers": true | false | null,
  "inclusion": [string, ...],
  "exclusion": [string, ...],
  "flagged_terms": [{"term": string, "category": "biomarker" | "prior_treatment", "constraint": "required" | "excluded"}, ...],
  "inclusion_summary": string,
  "exclusion_summary": string
}
Rules:
- Use only information stated in the text. Anything not stated is null or an empty list. Never guess.
- "sex" is "ALL" unless the text restricts it.
- Ages are in years; convert months or weeks.
- "inclusion" and "exclusion" keep the order of the source items, one requirement per item.
- "flagged_terms" lists biomarkers and prior treatments only, copied verbatim from the text.`

func userPrompt(criteria string) string {
	return "Eligibility criteria text:\n" + criteria
}

func correctionPrompt(issues []string) string {
	var sb strings.Builder
	sb.WriteString("Your previous reply does not match the required schema:\n")
	for _, issue := range issues {
		fmt.Fprintf(&sb, "- %s\n", issue)
	}
	sb.WriteString("Reply again with the corrected JSON object only.")
	return sb.String()
}

// truncateRunes returns at most n runes of s.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// stripCodeFences removes a surrounding Markdown code fence, with or without a language tag.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	body := s[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
		body = body[nl+1:]
	}
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}
