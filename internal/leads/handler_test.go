package leads

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/wellness-crm/internal/notify"
	"github.com/wolfman30/wellness-crm/internal/ratelimit"
	"github.com/wolfman30/wellness-crm/pkg/logging"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (n *recordingNotifier) NotifyOwner(ctx context.Context, msg notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

type failingRepository struct{ InMemoryRepository }

func (*failingRepository) Create(context.Context, *Lead) (*Lead, error) {
	return nil, errors.New("connection refused")
}

func validLeadBody() map[string]any {
	return map[string]any{
		"fullName":               "  Jane <b>Doe</b> ",
		"email":                  "Jane.Doe@Example.COM",
		"phone":                  "(484) 619-2876",
		"state":                  "PA",
		"interest":               "WEIGHT_LOSS",
		"preferredContactMethod": "EMAIL",
		"message":                "<script>x</script>Interested in the program",
	}
}

func postLead(t *testing.T, h *Handler, body map[string]any, ip string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/leads", bytes.NewReader(raw))
	req.Header.Set("X-Forwarded-For", ip)
	rec := httptest.NewRecorder()
	h.CreateLead(rec, req)
	return rec
}

func TestCreateLead_Success(t *testing.T) {
	repo := NewInMemoryRepository()
	notifier := &recordingNotifier{}
	h := NewHandler(repo, nil, notifier, nil, logging.Discard())

	rec := postLead(t, h, validLeadBody(), "203.0.113.1")
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp CreateLeadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.NotNil(t, resp.Lead)
	assert.Equal(t, "Jane Doe", resp.Lead.FullName)
	assert.Equal(t, "jane.doe@example.com", resp.Lead.Email)
	assert.Equal(t, "+14846192876", resp.Lead.Phone)
	assert.Equal(t, StatusNew, resp.Lead.Status)
	assert.Equal(t, DefaultSource, resp.Lead.Source)
	require.NotNil(t, resp.Lead.Message)
	assert.Equal(t, "xInterested in the program", *resp.Lead.Message)

	stored, err := repo.Search(context.Background(), SearchFilter{})
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "New Lead: Jane Doe", notifier.sent[0].Title)
	assert.Contains(t, notifier.sent[0].Content, "Interest: WEIGHT_LOSS")
	assert.Contains(t, notifier.sent[0].Content, "Phone: +14846192876")
}

func TestCreateLead_HoneypotIsSilentlyAccepted(t *testing.T) {
	repo := NewInMemoryRepository()
	notifier := &recordingNotifier{}
	h := NewHandler(repo, nil, notifier, nil, logging.Discard())

	body := validLeadBody()
	body["website"] = "http://spam.example"
	rec := postLead(t, h, body, "203.0.113.1")

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"success":true,"lead":null}`, rec.Body.String())
	stored, _ := repo.Search(context.Background(), SearchFilter{})
	assert.Empty(t, stored)
	assert.Empty(t, notifier.sent)
}

func TestCreateLead_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(map[string]any)
		message string
	}{
		{"missing name", func(b map[string]any) { delete(b, "fullName") }, "fullName is required"},
		{"bad email", func(b map[string]any) { b["email"] = "not-an-email" }, "Valid email is required"},
		{"bad state", func(b map[string]any) { b["state"] = "NY" }, "state must be one of: PA UT Other"},
		{"long message", func(b map[string]any) { b["message"] = strings.Repeat("a", 2001) }, "message must be at most 2000 characters"},
		{"markup only name", func(b map[string]any) { b["fullName"] = "<b></b>" }, "Full name is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewInMemoryRepository()
			h := NewHandler(repo, nil, nil, nil, logging.Discard())
			body := validLeadBody()
			tt.mutate(body)

			rec := postLead(t, h, body, "203.0.113.1")
			require.Equal(t, http.StatusBadRequest, rec.Code)
			var resp map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.message, resp["error"])
			stored, _ := repo.Search(context.Background(), SearchFilter{})
			assert.Empty(t, stored)
		})
	}
}

func TestCreateLead_InvalidJSON(t *testing.T) {
	h := NewHandler(NewInMemoryRepository(), nil, nil, nil, logging.Discard())
	req := httptest.NewRequest(http.MethodPost, "/api/leads", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	h.CreateLead(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid request body")
}

func TestCreateLead_RateLimitedPerIPThenEmail(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(3, time.Minute, logging.Discard())
	h := NewHandler(NewInMemoryRepository(), limiter, nil, nil, logging.Discard())

	for i := 0; i < 3; i++ {
		body := validLeadBody()
		body["email"] = "person" + string(rune('a'+i)) + "@example.com"
		require.Equal(t, http.StatusCreated, postLead(t, h, body, "203.0.113.1").Code)
	}
	rec := postLead(t, h, validLeadBody(), "203.0.113.1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Too many submissions from your location")

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusCreated, postLead(t, h, validLeadBody(), "198.51.100.1"+string(rune('0'+i))).Code)
	}
	rec = postLead(t, h, validLeadBody(), "192.0.2.200")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Too many submissions with this email")
}

func TestCreateLead_DegradedStoreStillSucceeds(t *testing.T) {
	notifier := &recordingNotifier{}
	repo := NewDegradingRepository(&failingRepository{}, logging.Discard(), nil)
	h := NewHandler(repo, nil, notifier, nil, logging.Discard())

	rec := postLead(t, h, validLeadBody(), "203.0.113.1")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"success":true,"lead":null}`, rec.Body.String())
	assert.Empty(t, notifier.sent)
}

func TestCreateLead_NotificationFailureIgnored(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("smtp down")}
	h := NewHandler(NewInMemoryRepository(), nil, notifier, nil, logging.Discard())

	rec := postLead(t, h, validLeadBody(), "203.0.113.1")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, notifier.sent, 1)
}

func TestCreateLead_StoreErrorShowsOfficeFallback(t *testing.T) {
	h := NewHandler(&failingRepository{}, nil, nil, nil, logging.Discard())

	rec := postLead(t, h, validLeadBody(), "203.0.113.1")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "(484) 619-2876")
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestNewLeadNotification_NoPhone(t *testing.T) {
	n := NewLeadNotification(&Lead{
		FullName:               "Sam",
		Email:                  "sam@example.com",
		State:                  StateUT,
		Interest:               InterestGeneral,
		PreferredContactMethod: ContactText,
	})
	assert.Equal(t, "New Lead: Sam", n.Title)
	assert.Equal(t, "sam@example.com", n.ReplyTo)
	assert.Equal(t, "Interest: GENERAL\nEmail: sam@example.com\nPhone: Not provided\nState: UT\nPreferred Contact: TEXT", n.Content)
}
