// Package patients stores structured support requests from existing patients,
// whether submitted through the portal form or assembled by the chat assistant.
package patients

import (
	"time"

	"github.com/wolfman30/wellness-crm/internal/optional"
)

// Program is the care program the patient is enrolled in.
type Program string

const (
	ProgramWeightLoss   Program = "WEIGHT_LOSS"
	ProgramMenopauseHRT Program = "MENOPAUSE_HRT"
	ProgramCombined     Program = "COMBINED"
	ProgramOther        Program = "OTHER"
)

// Category routes a message to the right staff member.
type Category string

const (
	CategoryScheduling  Category = "SCHEDULING"
	CategoryBilling     Category = "BILLING"
	CategoryMedication  Category = "MEDICATION"
	CategorySideEffects Category = "SIDE_EFFECTS"
	CategoryLabs        Category = "LABS"
	CategoryTechnical   Category = "TECHNICAL"
	CategoryOther       Category = "OTHER"
)

// Urgency is the patient's own assessment of how soon they need a reply.
type Urgency string

const (
	UrgencyRoutine Urgency = "ROUTINE"
	UrgencySoon    Urgency = "SOON"
	UrgencyUrgent  Urgency = "URGENT"
)

// Status is the staff triage state.
type Status string

const (
	StatusNew        Status = "NEW"
	StatusInProgress Status = "IN_PROGRESS"
	StatusResolved   Status = "RESOLVED"
)

// ValidProgram reports whether p is a known program code.
func ValidProgram(p string) bool {
	switch Program(p) {
	case ProgramWeightLoss, ProgramMenopauseHRT, ProgramCombined, ProgramOther:
		return true
	}
	return false
}

// ValidCategory reports whether c is a known category code.
func ValidCategory(c string) bool {
	switch Category(c) {
	case CategoryScheduling, CategoryBilling, CategoryMedication, CategorySideEffects,
		CategoryLabs, CategoryTechnical, CategoryOther:
		return true
	}
	return false
}

// ParseUrgency returns the urgency for s, ROUTINE when s is blank or unknown.
func ParseUrgency(s string) Urgency {
	switch u := Urgency(s); u {
	case UrgencySoon, UrgencyUrgent:
		return u
	default:
		return UrgencyRoutine
	}
}

// PatientMessage is one support request. ConversationContext is written once
// at creation.
type PatientMessage struct {
	ID                  string    `json:"id"`
	PatientName         string    `json:"patientName"`
	Email               string    `json:"email"`
	Phone               *string   `json:"phone"`
	Program             Program   `json:"program"`
	Category            Category  `json:"category"`
	Message             string    `json:"message"`
	Urgency             Urgency   `json:"urgency"`
	ConversationContext *string   `json:"conversationContext"`
	Status              Status    `json:"status"`
	StaffNotes          *string   `json:"staffNotes"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

func (m *PatientMessage) clone() *PatientMessage {
	if m == nil {
		return nil
	}
	out := *m
	return &out
}

// CreateMessageRequest is the patient portal form.
type CreateMessageRequest struct {
	Name     string  `json:"name" validate:"required,min=1,max=200"`
	Email    string  `json:"email" validate:"required,email,max=320"`
	Phone    *string `json:"phone" validate:"omitempty,max=20"`
	Program  string  `json:"program" validate:"required,oneof=WEIGHT_LOSS MENOPAUSE_HRT COMBINED OTHER"`
	Category string  `json:"category" validate:"required,oneof=SCHEDULING BILLING MEDICATION SIDE_EFFECTS LABS TECHNICAL OTHER"`
	Message  string  `json:"message" validate:"required,min=1,max=2000"`
	Urgency  string  `json:"urgency" validate:"omitempty,oneof=ROUTINE SOON URGENT"`
}

// ChatEscalationRequest is the escalation form shown inside the chat widget.
type ChatEscalationRequest struct {
	PatientName         string  `json:"patientName" validate:"required,min=1,max=200"`
	Email               string  `json:"email" validate:"required,email,max=320"`
	Phone               *string `json:"phone" validate:"omitempty,max=20"`
	Program             string  `json:"program" validate:"required,oneof=WEIGHT_LOSS MENOPAUSE_HRT COMBINED OTHER"`
	Category            string  `json:"category" validate:"required,oneof=SCHEDULING BILLING MEDICATION SIDE_EFFECTS LABS TECHNICAL OTHER"`
	Message             string  `json:"message" validate:"required,min=1,max=2000"`
	Urgency             string  `json:"urgency" validate:"omitempty,oneof=ROUTINE SOON URGENT"`
	ConversationContext *string `json:"conversationContext" validate:"omitempty,max=10000"`
}

// UpdateMessageRequest is a staff patch. StaffNotes may be null to clear.
type UpdateMessageRequest struct {
	Status     *Status         `json:"status" validate:"omitempty,oneof=NEW IN_PROGRESS RESOLVED"`
	StaffNotes optional.String `json:"staffNotes"`
}

// SearchFilter narrows a message listing. Messages are always ordered by
// creation time; SortOrder is asc or desc (default).
type SearchFilter struct {
	Search    string
	Status    Status
	Program   Program
	Category  Category
	Urgency   Urgency
	SortOrder string
}

func (f SearchFilter) normalize() SearchFilter {
	if f.SortOrder != "asc" {
		f.SortOrder = "desc"
	}
	return f
}
