package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/wellness-crm/internal/apperr"
	"github.com/wolfman30/wellness-crm/internal/patients"
	"github.com/wolfman30/wellness-crm/internal/validation"
	"github.com/wolfman30/wellness-crm/pkg/logging"
)

const msgPatientMessageNotFound = "Patient message not found"

// AdminPatientMessagesHandler serves the staff inbox of patient messages.
type AdminPatientMessagesHandler struct {
	repo      patients.Repository
	validator *validation.Validator
	logger    *logging.Logger
}

func NewAdminPatientMessagesHandler(repo patients.Repository, logger *logging.Logger) *AdminPatientMessagesHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminPatientMessagesHandler{
		repo:      repo,
		validator: validation.New(),
		logger:    logger,
	}
}

type messageSearchQuery struct {
	Search    string `validate:"max=200"`
	Status    string `validate:"omitempty,oneof=NEW IN_PROGRESS RESOLVED"`
	Program   string `validate:"omitempty,oneof=WEIGHT_LOSS MENOPAUSE_HRT COMBINED OTHER"`
	Category  string `validate:"omitempty,oneof=SCHEDULING BILLING MEDICATION SIDE_EFFECTS LABS TECHNICAL OTHER"`
	Urgency   string `validate:"omitempty,oneof=ROUTINE SOON URGENT"`
	SortOrder string `validate:"omitempty,oneof=asc desc"`
}

// ListMessages handles GET /api/admin/patient-messages.
func (h *AdminPatientMessagesHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in := messageSearchQuery{
		Search:    q.Get("search"),
		Status:    q.Get("status"),
		Program:   q.Get("program"),
		Category:  q.Get("category"),
		Urgency:   q.Get("urgency"),
		SortOrder: q.Get("sortOrder"),
	}
	if err := h.validator.Struct(in); err != nil {
		apperr.Write(w, apperr.Validation(err.Error()), "")
		return
	}

	out, err := h.repo.Search(r.Context(), patients.SearchFilter{
		Search:    in.Search,
		Status:    patients.Status(in.Status),
		Program:   patients.Program(in.Program),
		Category:  patients.Category(in.Category),
		Urgency:   patients.Urgency(in.Urgency),
		SortOrder: in.SortOrder,
	})
	if err != nil {
		h.logger.Error("failed to search patient messages", "error", err)
		apperr.Write(w, err, "Failed to load patient messages")
		return
	}
	if out == nil {
		out = []*patients.PatientMessage{}
	}
	apperr.WriteJSON(w, http.StatusOK, out)
}

// GetMessage handles GET /api/admin/patient-messages/{id}.
func (h *AdminPatientMessagesHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.repo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, msg)
}

// UpdateMessage handles PATCH /api/admin/patient-messages/{id}.
func (h *AdminPatientMessagesHandler) UpdateMessage(w http.ResponseWriter, r *http.Request) {
	var patch patients.UpdateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		apperr.Write(w, apperr.Validation("Invalid request body"), "")
		return
	}
	if err := h.validator.Struct(patch); err != nil {
		apperr.Write(w, apperr.Validation(err.Error()), "")
		return
	}

	msg, err := h.repo.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if msg == nil {
		apperr.Write(w, apperr.NotFound(msgPatientMessageNotFound), "")
		return
	}
	h.logger.Info("patient message updated", "message_id", msg.ID, "status", msg.Status)
	apperr.WriteJSON(w, http.StatusOK, msg)
}

func (h *AdminPatientMessagesHandler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, patients.ErrMessageNotFound) {
		apperr.Write(w, apperr.NotFound(msgPatientMessageNotFound), "")
		return
	}
	h.logger.Error("patient message store error", "error", err)
	apperr.Write(w, err, "Patient message store unavailable")
}
