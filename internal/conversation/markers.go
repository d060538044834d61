package conversation

import (
	"encoding/json"
	"regexp"
	"strings"
)

const (
	collectionMarker      = "[COLLECTION_STATE:"
	currentStateMarker    = "[CURRENT_COLLECTION_STATE:"
	legacyEscalationTag   = "[NEEDS_ESCALATION]"
	legacyEscalationCause = "staff assistance needed"
	defaultEscalationCase = "general inquiry"
)

var staffAttentionPattern = regexp.MustCompile(`\[NEEDS_STAFF_ATTENTION:\s*([^\]]+)\]`)

// CollectionStatus is the model's self-reported progress collecting a staff
// request.
type CollectionStatus string

const (
	CollectionGathering CollectionStatus = "gathering"
	CollectionReady     CollectionStatus = "ready"
	CollectionSubmitted CollectionStatus = "submitted"
)

// CollectionData holds the fields gathered so far. All are optional until
// the model reports the collection as submitted.
type CollectionData struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Program  string `json:"program,omitempty"`
	Category string `json:"category,omitempty"`
	Urgency  string `json:"urgency,omitempty"`
	Message  string `json:"message,omitempty"`
}

// CollectionState is the payload of a [COLLECTION_STATE: {...}] marker.
type CollectionState struct {
	Status  CollectionStatus `json:"status"`
	Data    CollectionData   `json:"data"`
	Missing []string         `json:"missing"`
}

// ReadyToPersist reports whether the state is submitted and carries every
// field a patient message needs. The model's status is trusted; only the
// presence of the fields is checked here.
func (s *CollectionState) ReadyToPersist() bool {
	if s == nil || s.Status != CollectionSubmitted {
		return false
	}
	d := s.Data
	for _, v := range []string{d.Name, d.Email, d.Program, d.Category, d.Message} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

// ParsedReply is a model reply with every control marker removed.
type ParsedReply struct {
	Text             string
	NeedsEscalation  bool
	EscalationReason string
	State            *CollectionState
}

// ParseReply extracts the first collection state from raw and strips every
// marker the patient must not see.
func ParseReply(raw string) ParsedReply {
	var out ParsedReply
	content := raw

	if idx := strings.Index(content, collectionMarker); idx != -1 {
		span := scanMarker(content, idx)
		if span.jsonStart != -1 {
			var state CollectionState
			if err := json.Unmarshal([]byte(content[span.jsonStart:span.jsonEnd]), &state); err == nil {
				out.State = &state
				out.NeedsEscalation = state.Status == CollectionGathering || state.Status == CollectionReady
				out.EscalationReason = escalationReason(state.Data.Category)
			}
		}
		content = content[:idx] + content[span.end:]
	}

	content = stripMarkers(content, collectionMarker)
	content = stripMarkers(content, currentStateMarker)

	hasLegacyTag := strings.Contains(content, legacyEscalationTag)
	content = strings.ReplaceAll(content, legacyEscalationTag, "")

	attention := staffAttentionPattern.FindStringSubmatch(content)
	content = staffAttentionPattern.ReplaceAllString(content, "")

	if out.State == nil {
		switch {
		case attention != nil:
			out.NeedsEscalation = true
			out.EscalationReason = strings.TrimSpace(attention[1])
		case hasLegacyTag:
			out.NeedsEscalation = true
			out.EscalationReason = legacyEscalationCause
		}
	}

	out.Text = strings.TrimSpace(content)
	return out
}

// FormatCurrentState renders state as the marker the model is told to resume
// from.
func FormatCurrentState(state *CollectionState) (string, error) {
	payload, err := json.Marshal(state)
	if err != nil {
		return "", err
	}
	return currentStateMarker + " " + string(payload) + "]", nil
}

func escalationReason(category string) string {
	if category == "" {
		return defaultEscalationCase
	}
	return strings.Replace(strings.ToLower(category), "_", " ", 1)
}

func stripMarkers(content, marker string) string {
	for {
		idx := strings.Index(content, marker)
		if idx == -1 {
			return content
		}
		span := scanMarker(content, idx)
		content = content[:idx] + content[span.end:]
	}
}

type markerSpan struct {
	// jsonStart/jsonEnd bound the balanced object, -1 when there is none.
	jsonStart, jsonEnd int
	// end is the offset just past the marker's closing bracket.
	end int
}

// scanMarker finds the JSON object following the marker at start by matching
// braces outside string literals, then the "]" that closes the marker. A
// marker with no object ends at its first "]"; an unterminated one runs to
// the end of content.
func scanMarker(content string, start int) markerSpan {
	span := markerSpan{jsonStart: -1, jsonEnd: -1, end: len(content)}
	depth := 0
	inString, escaped := false, false

	for i := start + 1; i < len(content); i++ {
		c := content[i]
		if span.jsonStart == -1 {
			switch c {
			case '{':
				span.jsonStart = i
				depth = 1
			case ']':
				span.end = i + 1
				return span
			}
			continue
		}
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				span.jsonEnd = i + 1
				if closing := strings.IndexByte(content[span.jsonEnd:], ']'); closing != -1 {
					span.end = span.jsonEnd + closing + 1
				} else {
					span.end = span.jsonEnd
				}
				return span
			}
		}
	}
	span.jsonStart = -1
	return span
}
