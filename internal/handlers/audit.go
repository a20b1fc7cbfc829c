package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/bastionhq/bastion/internal/models"
	"github.com/bastionhq/bastion/internal/services"
	pkghttp "github.com/bastionhq/bastion/pkg/http"
)

// AuditHandler exposes read access to the audit trail
type AuditHandler struct {
	auditService *services.AuditService
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(auditService *services.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

// AuditRecordResponse represents one audit record in API responses
type AuditRecordResponse struct {
	ID          string          `json:"id"`
	ActorID     *string         `json:"actor_id,omitempty"`
	Action      string          `json:"action"`
	EntityType  string          `json:"entity_type"`
	EntityID    *string         `json:"entity_id,omitempty"`
	Before      models.Snapshot `json:"before,omitempty"`
	After       models.Snapshot `json:"after,omitempty"`
	DiffSummary *string         `json:"diff_summary,omitempty"`
	IPAddress   *string         `json:"ip_address,omitempty"`
	UserAgent   *string         `json:"user_agent,omitempty"`
	CreatedAt   string          `json:"created_at"`
}

func auditRecordToResponse(record *models.AuditRecord) *AuditRecordResponse {
	resp := &AuditRecordResponse{
		ID:          record.ID.String(),
		Action:      record.Action,
		EntityType:  record.EntityType,
		EntityID:    record.EntityID,
		Before:      record.Before,
		After:       record.After,
		DiffSummary: record.DiffSummary,
		IPAddress:   record.IPAddress,
		UserAgent:   record.UserAgent,
		CreatedAt:   record.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if record.ActorID != nil {
		actor := record.ActorID.String()
		resp.ActorID = &actor
	}
	return resp
}

func auditRecordsToResponse(records []*models.AuditRecord) []*AuditRecordResponse {
	responses := make([]*AuditRecordResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, auditRecordToResponse(record))
	}
	return responses
}

// List returns recent audit records, newest first. Supports filtering by
// entity (entity_type + entity_id) or actor (actor_id) query parameters.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	query := r.URL.Query()

	var records []*models.AuditRecord
	var err error

	switch {
	case query.Get("entity_type") != "" && query.Get("entity_id") != "":
		records, err = h.auditService.ListByEntity(r.Context(),
			query.Get("entity_type"), query.Get("entity_id"), limit, offset)
	case query.Get("actor_id") != "":
		actorID, parseErr := uuid.Parse(query.Get("actor_id"))
		if parseErr != nil {
			pkghttp.WriteBadRequest(w, "Invalid actor ID")
			return
		}
		records, err = h.auditService.ListByActor(r.Context(), actorID, limit, offset)
	default:
		records, err = h.auditService.List(r.Context(), limit, offset)
	}

	if err != nil {
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"records": auditRecordsToResponse(records)})
}

// Count returns the total size of the trail
func (h *AuditHandler) Count(w http.ResponseWriter, r *http.Request) {
	count, err := h.auditService.Count(r.Context())
	if err != nil {
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]int64{"count": count})
}
