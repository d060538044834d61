package leads

import (
	"time"

	"github.com/wolfman30/wellness-crm/internal/optional"
)

// State is the prospect's state of residence.
type State string

const (
	StatePA    State = "PA"
	StateUT    State = "UT"
	StateOther State = "Other"
)

// Interest is the program a lead asked about or purchased.
type Interest string

const (
	InterestWeightLoss          Interest = "WEIGHT_LOSS"
	InterestWeightLossCore      Interest = "WEIGHT_LOSS_CORE"
	InterestWeightLossPlus      Interest = "WEIGHT_LOSS_PLUS"
	InterestWeightLossIntensive Interest = "WEIGHT_LOSS_INTENSIVE"
	InterestMenopauseHRT        Interest = "MENOPAUSE_HRT"
	InterestMensHealthED        Interest = "MENS_HEALTH_ED"
	InterestMensHealthHair      Interest = "MENS_HEALTH_HAIR"
	InterestMensHealthBundle    Interest = "MENS_HEALTH_BUNDLE"
	InterestPeptideTherapy      Interest = "PEPTIDE_THERAPY"
	InterestGeneral             Interest = "GENERAL"
	InterestOther               Interest = "OTHER"
)

// ContactMethod is how the lead prefers to be reached.
type ContactMethod string

const (
	ContactPhone ContactMethod = "PHONE"
	ContactEmail ContactMethod = "EMAIL"
	ContactText  ContactMethod = "TEXT"
)

// Status is the staff triage state. Any transition is allowed.
type Status string

const (
	StatusNew       Status = "NEW"
	StatusContacted Status = "CONTACTED"
	StatusScheduled Status = "SCHEDULED"
	StatusClosed    Status = "CLOSED"
)

// DepositStatus tracks the $50 booking deposit.
type DepositStatus string

const (
	DepositPending  DepositStatus = "PENDING"
	DepositPaid     DepositStatus = "PAID"
	DepositRefunded DepositStatus = "REFUNDED"
	DepositWaived   DepositStatus = "WAIVED"
)

// DefaultSource tags leads from the public contact form.
const DefaultSource = "website_contact_form"

// Lead is a prospective-patient inquiry or payment-triggered signup.
type Lead struct {
	ID                     string         `json:"id"`
	FullName               string         `json:"fullName"`
	Email                  string         `json:"email"`
	Phone                  string         `json:"phone"`
	State                  State          `json:"state"`
	Interest               Interest       `json:"interest"`
	PreferredContactMethod ContactMethod  `json:"preferredContactMethod"`
	PreferredContactTime   *string        `json:"preferredContactTime"`
	Message                *string        `json:"message"`
	Source                 string         `json:"source"`
	Status                 Status         `json:"status"`
	InternalNotes          *string        `json:"internalNotes"`
	RequestedDate          *string        `json:"requestedDate"`
	RequestedTime          *string        `json:"requestedTime"`
	SelectedProgram        *string        `json:"selectedProgram"`
	DepositStatus          *DepositStatus `json:"depositStatus"`
	StripePaymentIntentID  *string        `json:"stripePaymentIntentId"`
	CreatedAt              time.Time      `json:"createdAt"`
	UpdatedAt              time.Time      `json:"updatedAt"`
}

func (l *Lead) clone() *Lead {
	if l == nil {
		return nil
	}
	out := *l
	return &out
}

// CreateLeadRequest is the public contact form payload. Website is a
// honeypot that humans never see.
type CreateLeadRequest struct {
	FullName               string  `json:"fullName" validate:"required,min=1,max=200"`
	Email                  string  `json:"email" validate:"required,email,max=320"`
	Phone                  *string `json:"phone" validate:"omitempty,max=20"`
	State                  string  `json:"state" validate:"required,oneof=PA UT Other"`
	Interest               string  `json:"interest" validate:"required,oneof=WEIGHT_LOSS WEIGHT_LOSS_CORE WEIGHT_LOSS_PLUS WEIGHT_LOSS_INTENSIVE MENOPAUSE_HRT MENS_HEALTH_ED MENS_HEALTH_HAIR MENS_HEALTH_BUNDLE PEPTIDE_THERAPY GENERAL OTHER"`
	PreferredContactMethod string  `json:"preferredContactMethod" validate:"required,oneof=PHONE EMAIL TEXT"`
	PreferredContactTime   *string `json:"preferredContactTime" validate:"omitempty,max=200"`
	Message                *string `json:"message" validate:"omitempty,max=2000"`
	Source                 string  `json:"source" validate:"omitempty,max=100"`
	Website                string  `json:"website"`
}

// UpdateLeadRequest is a staff patch. InternalNotes may be sent as null to
// clear the notes.
type UpdateLeadRequest struct {
	Status        *Status         `json:"status" validate:"omitempty,oneof=NEW CONTACTED SCHEDULED CLOSED"`
	InternalNotes optional.String `json:"internalNotes"`
}

// SortField is one of the columns leads may be ordered by.
type SortField string

const (
	SortCreatedAt SortField = "createdAt"
	SortUpdatedAt SortField = "updatedAt"
	SortFullName  SortField = "fullName"
	SortEmail     SortField = "email"
)

var sortColumns = map[SortField]string{
	SortCreatedAt: "created_at",
	SortUpdatedAt: "updated_at",
	SortFullName:  "full_name",
	SortEmail:     "email",
}

// SearchFilter narrows and orders a lead listing. Zero values mean "no filter".
type SearchFilter struct {
	Search    string
	Status    Status
	Interest  Interest
	State     State
	SortBy    SortField
	SortOrder string
}

// Normalize applies the default ordering (createdAt desc) and drops unknown
// sort keys.
func (f SearchFilter) Normalize() SearchFilter {
	if _, ok := sortColumns[f.SortBy]; !ok {
		f.SortBy = SortCreatedAt
	}
	if f.SortOrder != "asc" {
		f.SortOrder = "desc"
	}
	return f
}
