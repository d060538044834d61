package conversation

import "regexp"

var escalationHints = []struct {
	pattern  *regexp.Regexp
	category string
}{
	{regexp.MustCompile(`(?i)refill|prescription|medication|rx|meds?\b`), "medication"},
	{regexp.MustCompile(`(?i)side effect|nausea|constipation|diarrhea|headache|dizzy|tired`), "side_effects"},
	{regexp.MustCompile(`(?i)reschedule|cancel|appointment|schedule|book`), "scheduling"},
	{regexp.MustCompile(`(?i)bill|charge|payment|invoice|receipt|superbill`), "billing"},
	{regexp.MustCompile(`(?i)lab|blood work|test result|a1c|thyroid`), "labs"},
	{regexp.MustCompile(`(?i)video|link|telehealth|zoom|login|portal|password`), "technical"},
	{regexp.MustCompile(`(?i)dose|dosage|how much|increase|decrease`), "medication"},
	{regexp.MustCompile(`(?i)bleeding|spotting|period|menstrual`), "side_effects"},
	{regexp.MustCompile(`(?i)not working|plateau|no change|gaining`), "clinical"},
}

// DetectLikelyEscalation guesses, before any model call, whether a message
// will need staff and which category it falls in. The first matching
// category wins.
func DetectLikelyEscalation(message string) (category string, likely bool) {
	for _, hint := range escalationHints {
		if hint.pattern.MatchString(message) {
			return hint.category, true
		}
	}
	return "", false
}
