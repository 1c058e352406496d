package http

import (
	"provenance/internal/evidence"
	"provenance/pkg/domain"
	dErrors "provenance/pkg/domain-errors"
)

// SubmitRequest is the POST /evidence body.
type SubmitRequest struct {
	SubmitterID    string            `json:"submitter_id"`
	EvidenceType   string            `json:"evidence_type"`
	DataHash       string            `json:"data_hash"`
	Metadata       evidence.Metadata `json:"metadata,omitempty"`
	LinkedEvidence []string          `json:"linked_evidence,omitempty"`

	linked []domain.EvidenceID
}

func (r *SubmitRequest) Validate() error {
	if r.SubmitterID == "" {
		return dErrors.New(dErrors.CodeValidation, "submitter_id is required")
	}
	if r.EvidenceType == "" {
		return dErrors.New(dErrors.CodeValidation, "evidence_type is required")
	}
	if r.DataHash == "" {
		return dErrors.New(dErrors.CodeValidation, "data_hash is required")
	}
	if _, err := evidence.ParseEvidenceType(r.EvidenceType); err != nil {
		return err
	}
	for _, field := range r.Metadata {
		if field.Key == "" {
			return dErrors.New(dErrors.CodeValidation, "metadata keys must be non-empty")
		}
	}
	r.linked = make([]domain.EvidenceID, 0, len(r.LinkedEvidence))
	for _, raw := range r.LinkedEvidence {
		id, err := domain.ParseEvidenceID(raw)
		if err != nil {
			return dErrors.Newf(dErrors.CodeValidation, "linked_evidence entry %q is not a valid id", raw)
		}
		r.linked = append(r.linked, id)
	}
	return nil
}

// Linked returns the parsed linked evidence ids. Valid after Validate.
func (r *SubmitRequest) Linked() []domain.EvidenceID {
	return r.linked
}

// SettleRequest is the POST /evidence/{id}/settle body.
type SettleRequest struct {
	Confirmation string `json:"confirmation"`
}

func (r *SettleRequest) Validate() error {
	if r.Confirmation == "" {
		return dErrors.New(dErrors.CodeValidation, "confirmation is required")
	}
	return nil
}

// DisputeRequest is the POST /evidence/{id}/dispute body.
type DisputeRequest struct {
	Reason string `json:"reason"`
}

func (r *DisputeRequest) Validate() error {
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	return nil
}

// AttestationRequest is the POST /evidence/{id}/attestation body.
type AttestationRequest struct {
	Token string `json:"token"`
}

func (r *AttestationRequest) Validate() error {
	if r.Token == "" {
		return dErrors.New(dErrors.CodeValidation, "token is required")
	}
	return nil
}
