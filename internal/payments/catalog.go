// Package payments sells memberships and booking deposits through Stripe
// Checkout and reconciles Stripe webhook deliveries into the lead store.
package payments

// Interval is the billing cadence of a product.
type Interval string

const (
	IntervalMonth   Interval = "month"
	IntervalYear    Interval = "year"
	IntervalOneTime Interval = "one_time"
)

// Category groups products for display.
type Category string

const (
	CategoryBooking       Category = "booking"
	CategoryWeightLoss    Category = "weight_loss"
	CategoryWomensHormone Category = "womens_hormone"
	CategoryMensHealth    Category = "mens_health"
	CategoryPeptide       Category = "peptide"
)

// BookingDepositCents is the fixed deposit charged for a booking checkout.
const BookingDepositCents = 5000

// Product is a catalogue entry. Prices are USD cents.
type Product struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	PriceInCents int64    `json:"priceInCents"`
	Interval     Interval `json:"interval"`
	Category     Category `json:"category"`
	Features     []string `json:"features,omitempty"`
}

// Recurring reports whether checkout should open a subscription.
func (p Product) Recurring() bool {
	return p.Interval != IntervalOneTime
}

// Products is the fixed catalogue.
var Products = []Product{
	{
		ID:           "booking_deposit",
		Name:         "Booking Deposit",
		Description:  "New patient appointment booking deposit. Applied to your visit total or credited toward your first month if you enroll in a membership.",
		PriceInCents: BookingDepositCents,
		Interval:     IntervalOneTime,
		Category:     CategoryBooking,
		Features: []string{
			"Reserves your appointment time",
			"Applied to visit total or first month membership",
			"Refundable with 24+ hours notice",
		},
	},
	{
		ID:           "weight_loss_core",
		Name:         "Weight Loss – Core",
		Description:  "Simple, structured weight loss plan with monthly oversight.",
		PriceInCents: 14900,
		Interval:     IntervalMonth,
		Category:     CategoryWeightLoss,
		Features: []string{
			"Monthly clinician follow-up (telehealth or in-person)",
			"Basic nutrition + habit framework",
			"Medication discussion and monitoring if prescribed",
			"Secure messaging for non-urgent questions",
		},
	},
	{
		ID:           "weight_loss_plus",
		Name:         "Weight Loss – Plus",
		Description:  "Enhanced guidance and closer tracking for weight loss.",
		PriceInCents: 24900,
		Interval:     IntervalMonth,
		Category:     CategoryWeightLoss,
		Features: []string{
			"Everything in Core, plus:",
			"Enhanced coaching structure (more frequent plan adjustments)",
			"Prioritized messaging support (non-urgent)",
		},
	},
	{
		ID:           "weight_loss_intensive",
		Name:         "Significant Weight Loss – Intensive",
		Description:  "Comprehensive program for major weight reduction.",
		PriceInCents: 34900,
		Interval:     IntervalMonth,
		Category:     CategoryWeightLoss,
		Features: []string{
			"Everything in Plus, plus:",
			"More frequent touchpoints (structured check-ins)",
			"Comprehensive plateau strategy and escalation pathways",
		},
	},
	{
		ID:           "womens_hormone",
		Name:         "Women's Hormone Balance",
		Description:  "Personalized hormone care for perimenopause, menopause, and beyond.",
		PriceInCents: 22900,
		Interval:     IntervalMonth,
		Category:     CategoryWomensHormone,
		Features: []string{
			"Comprehensive intake and symptom assessment",
			"Lab ordering/review when indicated",
			"Personalized treatment plan and monitoring",
			"Ongoing follow-ups and dose adjustments",
			"Secure messaging for non-urgent questions",
		},
	},
	{
		ID:           "mens_hair_loss",
		Name:         "Hair Loss Membership",
		Description:  "Medically guided hair restoration program.",
		PriceInCents: 5900,
		Interval:     IntervalMonth,
		Category:     CategoryMensHealth,
		Features: []string{
			"Medical intake + risk screening",
			"Treatment plan with prescription options",
			"Follow-up monitoring and adjustments",
			"Secure messaging for non-urgent questions",
		},
	},
	{
		ID:           "mens_ed",
		Name:         "ED Membership",
		Description:  "Safe, clinically appropriate ED treatment and follow-up.",
		PriceInCents: 5900,
		Interval:     IntervalMonth,
		Category:     CategoryMensHealth,
		Features: []string{
			"Medical intake + cardiovascular risk screening",
			"Treatment plan with prescription options",
			"Follow-up monitoring and adjustments",
			"Secure messaging for non-urgent questions",
		},
	},
	{
		ID:           "mens_bundle",
		Name:         "Men's Health Bundle",
		Description:  "Complete men's health program combining Hair Loss and ED care.",
		PriceInCents: 9900,
		Interval:     IntervalMonth,
		Category:     CategoryMensHealth,
		Features: []string{
			"Everything in Hair Loss + ED programs",
			"One coordinated plan with follow-up monitoring",
		},
	},
	{
		ID:           "peptide_therapy",
		Name:         "Peptide Therapy Membership",
		Description:  "Performance and recovery support with medically guided peptide therapy.",
		PriceInCents: 24900,
		Interval:     IntervalMonth,
		Category:     CategoryPeptide,
		Features: []string{
			"Intake + medical screening",
			"Evidence-informed protocol design",
			"Education on administration and monitoring",
			"Follow-ups and protocol adjustments",
			"Secure messaging for non-urgent questions",
		},
	},
}

// ProductByID looks up a catalogue entry.
func ProductByID(id string) (Product, bool) {
	for _, p := range Products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}
