package conversation

import (
	"regexp"
	"strings"
)

// Mode selects the assistant persona.
type Mode string

const (
	ModeProspective Mode = "prospective"
	ModeEstablished Mode = "established"
)

// ParseMode returns the mode named by s, prospective when s is blank.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.TrimSpace(s)) {
	case "", ModeProspective:
		return ModeProspective, true
	case ModeEstablished:
		return ModeEstablished, true
	}
	return "", false
}

type quickResponse struct {
	pattern *regexp.Regexp
	reply   string
	// empty matches every mode
	mode Mode
}

var greetingPattern = regexp.MustCompile(`(?i)^(hi|hello|hey|good morning|good afternoon|good evening)[\s!?.]*$`)

// quickResponses are tried in order; emergencies sit above the topic
// patterns so "call 911" style messages never get the phone number reply.
var quickResponses = []quickResponse{
	{
		pattern: greetingPattern,
		mode:    ModeProspective,
		reply:   "Hello! Welcome to Lehigh Valley Wellness. I'm here to help you learn about our medical weight loss and menopause/HRT services. How can I assist you today?",
	},
	{
		pattern: greetingPattern,
		mode:    ModeEstablished,
		reply:   "Hello! Welcome back to Lehigh Valley Wellness. I'm here to help with scheduling, billing, refills, and general questions about your program. How can I assist you today?",
	},
	{
		pattern: regexp.MustCompile(`(?i)emergency|chest pain|can't breathe|suicidal|heart attack|stroke|severe pain|can't stop bleeding`),
		reply:   "⚠️ **If you are experiencing a medical emergency, please call 911 immediately or go to your nearest emergency department.** For mental health crises, call or text 988 (Suicide & Crisis Lifeline). This chat is not equipped to handle emergencies.",
	},
	{
		pattern: regexp.MustCompile(`(?i)phone|number|call`),
		reply:   "You can reach Lehigh Valley Wellness at **(484) 619-2876**. Our office hours are Monday through Friday, 9:00 AM to 5:00 PM. Would you like help with anything else?",
	},
	{
		pattern: regexp.MustCompile(`(?i)email|contact`),
		reply:   "You can email us at **info@lehighvalleywellness.com** or call **(484) 619-2876**. You can also submit a consultation request through our Contact page. How else can I help?",
	},
}

// QuickResponse returns the canned reply for message in mode, if any.
func QuickResponse(message string, mode Mode) (string, bool) {
	trimmed := strings.TrimSpace(message)
	for _, qr := range quickResponses {
		if qr.mode != "" && qr.mode != mode {
			continue
		}
		if qr.pattern.MatchString(trimmed) {
			return qr.reply, true
		}
	}
	return "", false
}
