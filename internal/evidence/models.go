// Package evidence defines the evidence record and its vocabulary. The record
// is created once on submission, owned by the ledger store, and mutated only
// through lifecycle-service transitions.
package evidence

import (
	"time"

	"provenance/pkg/domain"
	dErrors "provenance/pkg/domain-errors"
)

// State is the single lifecycle tag. The happy path is monotonic
// draft → frozen → minted → settled; disputed is reachable from any
// non-settled state and is terminal.
type State string

const (
	StateDraft    State = "draft"
	StateFrozen   State = "frozen"
	StateMinted   State = "minted"
	StateSettled  State = "settled"
	StateDisputed State = "disputed"
)

// Terminal reports whether no further transitions are permitted.
func (s State) Terminal() bool {
	return s == StateSettled || s == StateDisputed
}

// Disputable reports whether a dispute may force the record out of s.
func (s State) Disputable() bool {
	switch s {
	case StateDraft, StateFrozen, StateMinted:
		return true
	}
	return false
}

// EvidenceType classifies the underlying payload.
type EvidenceType string

const (
	TypeDocument EvidenceType = "document"
	TypePhoto    EvidenceType = "photo"
	TypeVideo    EvidenceType = "video"
	TypeAudio    EvidenceType = "audio"
	TypeDigital  EvidenceType = "digital"
	TypePhysical EvidenceType = "physical"
)

// ParseEvidenceType validates a submitted type string.
func ParseEvidenceType(raw string) (EvidenceType, error) {
	switch EvidenceType(raw) {
	case TypeDocument, TypePhoto, TypeVideo, TypeAudio, TypeDigital, TypePhysical:
		return EvidenceType(raw), nil
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "unknown evidence type %q", raw)
}

// ComplianceLevel is the aggregate authenticity classification computed by the
// verification pass. It is a derived value, deliberately separate from State.
type ComplianceLevel string

const (
	ComplianceNone    ComplianceLevel = "none"
	ComplianceMinimal ComplianceLevel = "minimal"
	CompliancePartial ComplianceLevel = "partial"
	ComplianceFull    ComplianceLevel = "full"
)

// MetadataField is one key/value pair of submission metadata.
type MetadataField struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Metadata preserves submission order, which a plain map would lose. Get is
// last-write-wins so appended fields (dispute reasons) shadow earlier ones
// without erasing history.
type Metadata []MetadataField

// Get returns the value of the last field with the given key.
func (m Metadata) Get(key string) (string, bool) {
	for i := len(m) - 1; i >= 0; i-- {
		if m[i].Key == key {
			return m[i].Value, true
		}
	}
	return "", false
}

// Append returns metadata extended with a new field.
func (m Metadata) Append(key, value string) Metadata {
	return append(m.Clone(), MetadataField{Key: key, Value: value})
}

// Clone returns an independent copy.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	copy(out, m)
	return out
}

// EvidenceRecord is the root entity. Field pointers distinguish "not yet set"
// from zero values; Version is the optimistic-concurrency token incremented on
// every state-affecting mutation.
type EvidenceRecord struct {
	ID              domain.EvidenceID  `json:"id"`
	SubmitterID     string             `json:"submitter_id"`
	EvidenceType    EvidenceType       `json:"evidence_type"`
	DataHash        string             `json:"data_hash"`
	Metadata        Metadata           `json:"metadata,omitempty"`
	LinkedEvidence  []domain.EvidenceID `json:"linked_evidence,omitempty"`
	State           State              `json:"state"`
	TrustScore      *float64           `json:"trust_score,omitempty"`
	ComplianceLevel *ComplianceLevel   `json:"compliance_level,omitempty"`
	FreezeAt        *time.Time         `json:"freeze_at,omitempty"`
	MintedAt        *time.Time         `json:"minted_at,omitempty"`
	SettledAt       *time.Time         `json:"settled_at,omitempty"`
	ChainReference  string             `json:"chain_reference,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	RetentionUntil  time.Time          `json:"retention_until"`
	Version         int64              `json:"version"`
}

// Clone returns a deep copy so store reads never alias store state.
func (r *EvidenceRecord) Clone() *EvidenceRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Metadata = r.Metadata.Clone()
	if r.LinkedEvidence != nil {
		out.LinkedEvidence = make([]domain.EvidenceID, len(r.LinkedEvidence))
		copy(out.LinkedEvidence, r.LinkedEvidence)
	}
	out.TrustScore = clonePtr(r.TrustScore)
	out.ComplianceLevel = clonePtr(r.ComplianceLevel)
	out.FreezeAt = clonePtr(r.FreezeAt)
	out.MintedAt = clonePtr(r.MintedAt)
	out.SettledAt = clonePtr(r.SettledAt)
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
