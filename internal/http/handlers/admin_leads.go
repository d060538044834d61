package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/wellness-crm/internal/apperr"
	"github.com/wolfman30/wellness-crm/internal/leads"
	"github.com/wolfman30/wellness-crm/internal/validation"
	"github.com/wolfman30/wellness-crm/pkg/logging"
)

const msgLeadNotFound = "Lead not found"

// AdminLeadsHandler handles admin API endpoints for lead management.
type AdminLeadsHandler struct {
	repo      leads.Repository
	validator *validation.Validator
	logger    *logging.Logger
	now       func() time.Time
}

// NewAdminLeadsHandler creates a new admin leads handler.
func NewAdminLeadsHandler(repo leads.Repository, logger *logging.Logger) *AdminLeadsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminLeadsHandler{
		repo:      repo,
		validator: validation.New(),
		logger:    logger,
		now:       time.Now,
	}
}

// leadSearchQuery mirrors the query string accepted by list and export.
type leadSearchQuery struct {
	Search    string `validate:"max=200"`
	Status    string `validate:"omitempty,oneof=NEW CONTACTED SCHEDULED CLOSED"`
	Interest  string `validate:"omitempty,oneof=WEIGHT_LOSS WEIGHT_LOSS_CORE WEIGHT_LOSS_PLUS WEIGHT_LOSS_INTENSIVE MENOPAUSE_HRT MENS_HEALTH_ED MENS_HEALTH_HAIR MENS_HEALTH_BUNDLE PEPTIDE_THERAPY GENERAL OTHER"`
	State     string `validate:"omitempty,oneof=PA UT Other"`
	SortBy    string `validate:"omitempty,oneof=createdAt updatedAt fullName email"`
	SortOrder string `validate:"omitempty,oneof=asc desc"`
}

func (h *AdminLeadsHandler) parseFilter(r *http.Request) (leads.SearchFilter, error) {
	q := r.URL.Query()
	in := leadSearchQuery{
		Search:    q.Get("search"),
		Status:    q.Get("status"),
		Interest:  q.Get("interest"),
		State:     q.Get("state"),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	}
	if err := h.validator.Struct(in); err != nil {
		return leads.SearchFilter{}, apperr.Validation(err.Error())
	}
	return leads.SearchFilter{
		Search:    in.Search,
		Status:    leads.Status(in.Status),
		Interest:  leads.Interest(in.Interest),
		State:     leads.State(in.State),
		SortBy:    leads.SortField(in.SortBy),
		SortOrder: in.SortOrder,
	}.Normalize(), nil
}

// ListLeads returns leads matching the search query.
// GET /api/admin/leads
func (h *AdminLeadsHandler) ListLeads(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseFilter(r)
	if err != nil {
		apperr.Write(w, err, "")
		return
	}
	out, err := h.repo.Search(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to search leads", "error", err)
		apperr.Write(w, err, "Failed to load leads")
		return
	}
	if out == nil {
		out = []*leads.Lead{}
	}
	apperr.WriteJSON(w, http.StatusOK, out)
}

// GetLead returns a single lead.
// GET /api/admin/leads/{id}
func (h *AdminLeadsHandler) GetLead(w http.ResponseWriter, r *http.Request) {
	lead, err := h.repo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeLeadError(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, lead)
}

// UpdateLead patches status and internal notes.
// PATCH /api/admin/leads/{id}
func (h *AdminLeadsHandler) UpdateLead(w http.ResponseWriter, r *http.Request) {
	var patch leads.UpdateLeadRequest
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		apperr.Write(w, apperr.Validation("Invalid request body"), "")
		return
	}
	if err := h.validator.Struct(patch); err != nil {
		apperr.Write(w, apperr.Validation(err.Error()), "")
		return
	}
	if patch.InternalNotes.Set && patch.InternalNotes.Value != nil && len(*patch.InternalNotes.Value) > 5000 {
		apperr.Write(w, apperr.Validation("Internal notes must be at most 5000 characters"), "")
		return
	}
	h.update(w, r, chi.URLParam(r, "id"), patch)
}

// MarkContacted sets a lead's status to CONTACTED.
// POST /api/admin/leads/{id}/contacted
func (h *AdminLeadsHandler) MarkContacted(w http.ResponseWriter, r *http.Request) {
	status := leads.StatusContacted
	h.update(w, r, chi.URLParam(r, "id"), leads.UpdateLeadRequest{Status: &status})
}

func (h *AdminLeadsHandler) update(w http.ResponseWriter, r *http.Request, id string, patch leads.UpdateLeadRequest) {
	lead, err := h.repo.Update(r.Context(), id, patch)
	if err != nil {
		h.writeLeadError(w, err)
		return
	}
	if lead == nil {
		apperr.Write(w, apperr.NotFound(msgLeadNotFound), "")
		return
	}
	h.logger.Info("lead updated", "lead_id", lead.ID, "status", lead.Status)
	apperr.WriteJSON(w, http.StatusOK, lead)
}

// ExportResponse carries the CSV rendering of a lead search.
type ExportResponse struct {
	CSV        string `json:"csv"`
	Count      int    `json:"count"`
	ExportedAt string `json:"exportedAt"`
}

// ExportLeads renders the leads matching the search query as CSV. Admin only.
// GET /api/admin/leads/export
func (h *AdminLeadsHandler) ExportLeads(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseFilter(r)
	if err != nil {
		apperr.Write(w, err, "")
		return
	}
	out, err := h.repo.Search(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to search leads for export", "error", err)
		apperr.Write(w, err, "Failed to export leads")
		return
	}
	h.logger.Info("leads exported", "count", len(out))
	apperr.WriteJSON(w, http.StatusOK, ExportResponse{
		CSV:        leads.ExportCSV(out),
		Count:      len(out),
		ExportedAt: h.now().UTC().Format("2006-01-02T15:04:05.000Z"),
	})
}

func (h *AdminLeadsHandler) writeLeadError(w http.ResponseWriter, err error) {
	if errors.Is(err, leads.ErrLeadNotFound) {
		apperr.Write(w, apperr.NotFound(msgLeadNotFound), "")
		return
	}
	h.logger.Error("lead store error", "error", err)
	apperr.Write(w, err, "Lead store unavailable")
}
