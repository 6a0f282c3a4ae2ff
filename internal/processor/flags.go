package processor

import "regexp"

var (
	metricsPattern   = regexp.MustCompile(`(?i)([$€£]\s?\d|\d+(?:\.\d+)?\s?%|\bCAGR\b|\bbillion\b|\bmillion\b|\bmarket size\b)`)
	citationsPattern = regexp.MustCompile(`(?i)(\[\d+\]|\(Source:|\baccording to\b|\bstud(?:y|ies)\b|\bresearch\b|\bsurvey)`)
)

// HasMetrics reports whether text mentions currency amounts, percentages or market sizing.
func HasMetrics(text string) bool {
	return metricsPattern.MatchString(text)
}

// HasCitations reports whether text carries citation markers or references to studies.
func HasCitations(text string) bool {
	return citationsPattern.MatchString(text)
}
