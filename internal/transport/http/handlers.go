// Package http exposes the evidence lifecycle over a JSON API. Handlers
// decode and validate, call the service, and translate domain errors into the
// standard envelope; no business rules live here.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"provenance/internal/attestation"
	"provenance/internal/audit"
	"provenance/internal/evidence"
	"provenance/internal/lifecycle"
	"provenance/internal/verification"
	"provenance/pkg/domain"
	dErrors "provenance/pkg/domain-errors"
	"provenance/pkg/platform/httputil"
)

// Handler serves the evidence API.
type Handler struct {
	lifecycle   *lifecycle.Service
	attestation *attestation.Verifier
	auditTrail  audit.Store
	logger      *slog.Logger
}

// NewHandler constructs the API handler. attestation and auditTrail are
// optional; their routes return 404-style errors when absent.
func NewHandler(svc *lifecycle.Service, verifier *attestation.Verifier, trail audit.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		lifecycle:   svc,
		attestation: verifier,
		auditTrail:  trail,
		logger:      logger,
	}
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndPrepare[SubmitRequest](w, r, h.logger)
	if !ok {
		return
	}
	record, err := h.lifecycle.Submit(r.Context(), lifecycle.SubmitRequest{
		SubmitterID:    req.SubmitterID,
		EvidenceType:   req.EvidenceType,
		DataHash:       req.DataHash,
		Metadata:       req.Metadata,
		LinkedEvidence: req.Linked(),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, record)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.recordID(w, r)
	if !ok {
		return
	}
	record, err := h.lifecycle.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) Freeze(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.lifecycle.Freeze)
}

func (h *Handler) Mint(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.lifecycle.Mint)
}

func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	id, ok := h.recordID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SettleRequest](w, r, h.logger)
	if !ok {
		return
	}
	record, err := h.lifecycle.Settle(r.Context(), id, req.Confirmation)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) Dispute(w http.ResponseWriter, r *http.Request) {
	id, ok := h.recordID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[DisputeRequest](w, r, h.logger)
	if !ok {
		return
	}
	record, err := h.lifecycle.Dispute(r.Context(), id, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

// ClassifyResponse reports one verification pass.
type ClassifyResponse struct {
	Level      evidence.ComplianceLevel `json:"compliance_level"`
	TrustScore float64                  `json:"trust_score"`
	Chain      CheckResponse            `json:"chain"`
	Trust      CheckResponse            `json:"trust"`
	Identity   CheckResponse            `json:"identity"`
}

// CheckResponse is one verification source outcome on the wire.
type CheckResponse struct {
	Passed      bool `json:"passed"`
	Unavailable bool `json:"unavailable,omitempty"`
}

func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	id, ok := h.recordID(w, r)
	if !ok {
		return
	}
	result, err := h.lifecycle.Classify(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ClassifyResponse{
		Level:      result.Level,
		TrustScore: result.TrustScore,
		Chain:      toCheckResponse(result.Chain),
		Trust:      toCheckResponse(result.Trust),
		Identity:   toCheckResponse(result.Identity),
	})
}

func toCheckResponse(c verification.Check) CheckResponse {
	return CheckResponse{Passed: c.Passed, Unavailable: c.Err != nil}
}

// ComplianceResponse is the cached/persisted compliance level.
type ComplianceResponse struct {
	RecordID string                   `json:"record_id"`
	Level    evidence.ComplianceLevel `json:"compliance_level"`
}

func (h *Handler) Compliance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.recordID(w, r)
	if !ok {
		return
	}
	level, err := h.lifecycle.Compliance(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ComplianceResponse{RecordID: id.String(), Level: level})
}

func (h *Handler) RegisterAttestation(w http.ResponseWriter, r *http.Request) {
	if h.attestation == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "attestation is not enabled"))
		return
	}
	id, ok := h.recordID(w, r)
	if !ok {
		return
	}
	// Registration requires the record to exist.
	if _, err := h.lifecycle.Get(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[AttestationRequest](w, r, h.logger)
	if !ok {
		return
	}
	if err := h.attestation.Register(r.Context(), id, req.Token); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AuditTrailResponse lists a record's audit events oldest first.
type AuditTrailResponse struct {
	RecordID string        `json:"record_id"`
	Events   []audit.Event `json:"events"`
}

func (h *Handler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	if h.auditTrail == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "audit trail is not enabled"))
		return
	}
	id, ok := h.recordID(w, r)
	if !ok {
		return
	}
	if _, err := h.lifecycle.Get(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	events, err := h.auditTrail.ListByRecord(r.Context(), id)
	if err != nil {
		h.writeError(w, r, dErrors.Wrap(dErrors.CodeInternal, "audit trail", err))
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, AuditTrailResponse{RecordID: id.String(), Events: events})
}

// transition factors the id-only transitions (freeze, mint).
func (h *Handler) transition(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, id domain.EvidenceID) (*evidence.EvidenceRecord, error)) {
	id, ok := h.recordID(w, r)
	if !ok {
		return
	}
	record, err := op(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) recordID(w http.ResponseWriter, r *http.Request) (domain.EvidenceID, bool) {
	id, err := domain.ParseEvidenceID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return domain.EvidenceID{}, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	httputil.WriteError(w, err)
}
