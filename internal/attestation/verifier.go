// Package attestation verifies identity attestations for evidence records. An
// attestation is an HMAC-signed JWT whose subject is the record id, registered
// by the submitting party. A missing or invalid attestation means "not
// attested" — it is a verification outcome, not an error.
package attestation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"provenance/pkg/domain"
	dErrors "provenance/pkg/domain-errors"
	"provenance/pkg/platform/sentinel"
)

// TokenStore persists attestation tokens keyed by record id.
type TokenStore interface {
	Save(ctx context.Context, id domain.EvidenceID, token string) error
	Find(ctx context.Context, id domain.EvidenceID) (string, error)
}

// Claims are the attestation token claims. Subject must be the record id.
type Claims struct {
	SubmitterID string `json:"submitter_id,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates stored attestations against the shared signing key.
type Verifier struct {
	signingKey []byte
	issuer     string
	store      TokenStore
	logger     *slog.Logger
}

// NewVerifier constructs a Verifier. issuer is enforced when non-empty.
func NewVerifier(signingKey string, issuer string, store TokenStore, logger *slog.Logger) *Verifier {
	return &Verifier{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		store:      store,
		logger:     logger,
	}
}

// Register validates and stores an attestation token for a record. The token
// must be well-formed, signed with the shared key, unexpired, and reference
// the record as its subject.
func (v *Verifier) Register(ctx context.Context, id domain.EvidenceID, token string) error {
	if token == "" {
		return dErrors.New(dErrors.CodeValidation, "attestation token is required")
	}
	if _, err := v.parse(token, id); err != nil {
		return err
	}
	if err := v.store.Save(ctx, id, token); err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "save attestation", err)
	}
	return nil
}

// VerifyAttestation reports whether the record carries a valid attestation.
// Store unavailability is the only error path; verification negatives return
// (false, nil) so the aggregator can distinguish "inauthentic" from
// "unverifiable right now".
func (v *Verifier) VerifyAttestation(ctx context.Context, id domain.EvidenceID) (bool, error) {
	token, err := v.store.Find(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(dErrors.CodeExternalService, "attestation store", err)
	}
	if _, err := v.parse(token, id); err != nil {
		if v.logger != nil {
			v.logger.DebugContext(ctx, "stored attestation failed validation",
				"record_id", id,
				"error", err,
			)
		}
		return false, nil
	}
	return true, nil
}

func (v *Verifier) parse(token string, id domain.EvidenceID) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeValidation, "attestation token has expired")
		}
		return nil, dErrors.New(dErrors.CodeValidation, "invalid attestation token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid attestation token")
	}
	if claims.Subject != id.String() {
		return nil, dErrors.New(dErrors.CodeValidation, "attestation subject does not match record id")
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, dErrors.New(dErrors.CodeValidation, "attestation issuer not recognized")
	}
	return claims, nil
}

// Issue signs an attestation token for a record. Primarily for tests and
// development tooling; production attestations come from the identity
// collaborator holding the key.
func Issue(signingKey, issuer string, id domain.EvidenceID, submitterID string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		SubmitterID: submitterID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.String(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString([]byte(signingKey))
}
