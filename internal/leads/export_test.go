package leads

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportCSV(t *testing.T) {
	notes := "secret"
	msg := `Said "hi", then left`
	created := time.Date(2025, 3, 4, 5, 6, 7, 8_000_000, time.UTC)
	leads := []*Lead{{
		ID:                     "lead-1",
		FullName:               "Jane Doe",
		Email:                  "jane@example.com",
		Phone:                  "+16105550134",
		State:                  StatePA,
		Interest:               InterestWeightLoss,
		PreferredContactMethod: ContactEmail,
		Message:                &msg,
		Source:                 DefaultSource,
		Status:                 StatusNew,
		InternalNotes:          &notes,
		CreatedAt:              created,
		UpdatedAt:              created,
	}}

	out := ExportCSV(leads)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "ID,Full Name,Email,Phone,State,Interest,Preferred Contact Method,Preferred Contact Time,Status,Source,Message,Created At,Updated At", lines[0])
	assert.Equal(t,
		`"lead-1","Jane Doe","jane@example.com","+16105550134","PA","WEIGHT_LOSS","EMAIL","","NEW","website_contact_form","Said ""hi"", then left","2025-03-04T05:06:07.008Z","2025-03-04T05:06:07.008Z"`,
		lines[1])
	assert.NotContains(t, out, "secret")
	assert.NotContains(t, out, "Internal Notes")
}

func TestExportCSV_Empty(t *testing.T) {
	out := ExportCSV(nil)
	assert.True(t, strings.HasPrefix(out, "ID,Full Name,"))
	assert.NotContains(t, out, "\n")
}
