package leads

import (
	"strings"
	"time"
)

var exportHeader = []string{
	"ID", "Full Name", "Email", "Phone", "State", "Interest",
	"Preferred Contact Method", "Preferred Contact Time", "Status", "Source",
	"Message", "Created At", "Updated At",
}

// ExportCSV renders leads as CSV. Every data cell is quoted; internal notes
// are never included.
func ExportCSV(leads []*Lead) string {
	rows := make([]string, 0, len(leads)+1)
	rows = append(rows, strings.Join(exportHeader, ","))
	for _, lead := range leads {
		cells := []string{
			lead.ID,
			lead.FullName,
			lead.Email,
			lead.Phone,
			string(lead.State),
			string(lead.Interest),
			string(lead.PreferredContactMethod),
			deref(lead.PreferredContactTime),
			string(lead.Status),
			lead.Source,
			deref(lead.Message),
			exportTime(lead.CreatedAt),
			exportTime(lead.UpdatedAt),
		}
		for i, cell := range cells {
			cells[i] = `"` + strings.ReplaceAll(cell, `"`, `""`) + `"`
		}
		rows = append(rows, strings.Join(cells, ","))
	}
	return strings.Join(rows, "\n")
}

func exportTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
