// Package lifecycle implements the evidence state machine. It is the only
// component that mutates records: every transition is a single
// compare-and-swap on the record's version, so concurrent callers on the same
// id linearize through the ledger store and losers get a typed guard error
// instead of silently overwriting.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"provenance/internal/audit"
	"provenance/internal/chain"
	"provenance/internal/evidence"
	"provenance/internal/ledger"
	"provenance/internal/lifecycle/metrics"
	"provenance/internal/policy"
	"provenance/internal/trust"
	"provenance/internal/verification"
	vcache "provenance/internal/verification/cache"
	"provenance/pkg/domain"
	dErrors "provenance/pkg/domain-errors"
	"provenance/pkg/platform/circuit"
	"provenance/pkg/platform/clock"
	"provenance/pkg/platform/retry"
	"provenance/pkg/platform/sentinel"
)

// Service drives records through draft → frozen → minted → settled, with
// disputed reachable from any non-settled state.
type Service struct {
	store    ledger.Store
	chain    chain.Client
	trust    *trust.Calculator
	verifier *verification.Aggregator
	cache    *vcache.Cache
	audit    audit.Publisher
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
	breaker  *circuit.Breaker
	retryCfg retry.Config
	newID    func() domain.EvidenceID

	freezeWindow    time.Duration
	retentionPeriod time.Duration
}

// Config wires a Service. Store, Chain, Trust, and Verifier are required; the
// rest defaults to production policy.
type Config struct {
	Store    ledger.Store
	Chain    chain.Client
	Trust    *trust.Calculator
	Verifier *verification.Aggregator

	// Optional collaborators.
	Cache   *vcache.Cache
	Audit   audit.Publisher
	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// FreezeWindow and RetentionPeriod override policy defaults when > 0.
	FreezeWindow    time.Duration
	RetentionPeriod time.Duration

	// NewID overrides the id generator; tests inject deterministic ids.
	NewID func() domain.EvidenceID
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("ledger store is required")
	}
	if cfg.Chain == nil {
		return nil, errors.New("chain collaborator is required")
	}
	if cfg.Trust == nil {
		return nil, errors.New("trust calculator is required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("verification aggregator is required")
	}
	s := &Service{
		store:           cfg.Store,
		chain:           cfg.Chain,
		trust:           cfg.Trust,
		verifier:        cfg.Verifier,
		cache:           cfg.Cache,
		audit:           cfg.Audit,
		clock:           cfg.Clock,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
		breaker:         circuit.New("chain"),
		retryCfg:        retry.DefaultConfig(dErrors.IsRetryable),
		newID:           cfg.NewID,
		freezeWindow:    cfg.FreezeWindow,
		retentionPeriod: cfg.RetentionPeriod,
	}
	if s.clock == nil {
		s.clock = clock.NewSystem()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.newID == nil {
		s.newID = domain.NewEvidenceID
	}
	if s.freezeWindow <= 0 {
		s.freezeWindow = policy.FreezeWindow
	}
	if s.retentionPeriod <= 0 {
		s.retentionPeriod = policy.RetentionPeriod
	}
	return s, nil
}

// SubmitRequest carries a validated submission into the state machine.
type SubmitRequest struct {
	SubmitterID    string
	EvidenceType   string
	DataHash       string
	Metadata       evidence.Metadata
	LinkedEvidence []domain.EvidenceID
}

// Submit creates a record in draft. The retention deadline is fixed here and
// never mutated afterwards.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*evidence.EvidenceRecord, error) {
	defer s.observe("submit", time.Now())

	evidenceType, err := evidence.ParseEvidenceType(req.EvidenceType)
	if err != nil {
		s.metrics.IncrementTransition("submit", string(dErrors.CodeValidation))
		return nil, err
	}
	if req.DataHash == "" {
		s.metrics.IncrementTransition("submit", string(dErrors.CodeValidation))
		return nil, dErrors.New(dErrors.CodeValidation, "data_hash is required")
	}
	if req.SubmitterID == "" {
		s.metrics.IncrementTransition("submit", string(dErrors.CodeValidation))
		return nil, dErrors.New(dErrors.CodeValidation, "submitter_id is required")
	}

	now := s.clock.Now()
	record := &evidence.EvidenceRecord{
		ID:             s.newID(),
		SubmitterID:    req.SubmitterID,
		EvidenceType:   evidenceType,
		DataHash:       req.DataHash,
		Metadata:       req.Metadata.Clone(),
		LinkedEvidence: req.LinkedEvidence,
		State:          evidence.StateDraft,
		CreatedAt:      now,
		RetentionUntil: now.Add(s.retentionPeriod),
	}
	if err := s.store.Create(ctx, record); err != nil {
		s.metrics.IncrementTransition("submit", string(dErrors.CodeInternal))
		return nil, dErrors.Wrap(dErrors.CodeInternal, "persist evidence record", err)
	}

	s.emit(ctx, audit.Event{
		RecordID:  record.ID.String(),
		Actor:     req.SubmitterID,
		Action:    audit.ActionSubmitted,
		ToState:   string(evidence.StateDraft),
		Timestamp: now,
	})
	s.metrics.IncrementTransition("submit", "ok")
	s.logger.InfoContext(ctx, "evidence submitted",
		"record_id", record.ID,
		"evidence_type", evidenceType,
		"retention_until", record.RetentionUntil,
	)
	return record, nil
}

// Get is a read-only fetch with no side effects.
func (s *Service) Get(ctx context.Context, id domain.EvidenceID) (*evidence.EvidenceRecord, error) {
	record, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.translateStoreErr(err, id)
	}
	return record, nil
}

// Freeze moves a draft record into frozen and stamps the freeze time, opening
// the mandatory waiting window before mint.
func (s *Service) Freeze(ctx context.Context, id domain.EvidenceID) (*evidence.EvidenceRecord, error) {
	defer s.observe("freeze", time.Now())

	record, err := s.store.Get(ctx, id)
	if err != nil {
		s.metrics.IncrementTransition("freeze", string(dErrors.CodeNotFound))
		return nil, s.translateStoreErr(err, id)
	}
	if record.State != evidence.StateDraft {
		s.metrics.IncrementTransition("freeze", string(dErrors.CodeInvalidTransition))
		return nil, dErrors.Newf(dErrors.CodeInvalidTransition,
			"freeze requires draft, record is %s", record.State)
	}

	now := s.clock.Now()
	updated, err := s.store.CompareAndSwap(ctx, id, record.Version, func(r *evidence.EvidenceRecord) error {
		if r.State != evidence.StateDraft {
			return sentinel.ErrInvalidState
		}
		r.State = evidence.StateFrozen
		r.FreezeAt = &now
		return nil
	})
	if err != nil {
		s.metrics.IncrementTransition("freeze", string(dErrors.CodeInvalidTransition))
		return nil, s.translateCASErr(err, id, "freeze")
	}

	s.emit(ctx, audit.Event{
		RecordID:  id.String(),
		Action:    audit.ActionFrozen,
		FromState: string(evidence.StateDraft),
		ToState:   string(evidence.StateFrozen),
		Timestamp: now,
	})
	s.metrics.IncrementTransition("freeze", "ok")
	s.logger.InfoContext(ctx, "evidence frozen", "record_id", id, "freeze_at", now)
	return updated, nil
}

// Mint anchors a frozen record on the external ledger once the freeze window
// has elapsed. The transition is reserved under the record's lock before the
// external call, and an existing anchor is always looked up first, so the
// anchor operation is at-most-once per record even across crashes and
// concurrent callers.
func (s *Service) Mint(ctx context.Context, id domain.EvidenceID) (*evidence.EvidenceRecord, error) {
	defer s.observe("mint", time.Now())

	record, err := s.store.Get(ctx, id)
	if err != nil {
		s.metrics.IncrementTransition("mint", string(dErrors.CodeNotFound))
		return nil, s.translateStoreErr(err, id)
	}
	if record.State != evidence.StateFrozen {
		s.metrics.IncrementTransition("mint", string(dErrors.CodeInvalidTransition))
		return nil, dErrors.Newf(dErrors.CodeInvalidTransition,
			"mint requires frozen, record is %s", record.State)
	}

	now := s.clock.Now()
	readyAt := record.FreezeAt.Add(s.freezeWindow)
	if now.Before(readyAt) {
		s.metrics.IncrementTransition("mint", string(dErrors.CodePrematureMint))
		return nil, dErrors.Newf(dErrors.CodePrematureMint,
			"freeze window has %s remaining", readyAt.Sub(now).Round(time.Second))
	}

	// Reserve the transition: a pure version bump while still frozen. This
	// linearizes concurrent minters before any external call is issued, and
	// because no field changes, an abandoned reservation (cancellation, crash)
	// leaves no partial mutation to roll back.
	reserved, err := s.store.CompareAndSwap(ctx, id, record.Version, func(r *evidence.EvidenceRecord) error {
		if r.State != evidence.StateFrozen {
			return sentinel.ErrInvalidState
		}
		return nil
	})
	if err != nil {
		s.metrics.IncrementTransition("mint", string(dErrors.CodeInvalidTransition))
		return nil, s.translateCASErr(err, id, "mint")
	}

	score := s.trust.Score(ctx, reserved)

	anchor, err := s.resolveAnchor(ctx, id, reserved.DataHash)
	if err != nil {
		s.metrics.IncrementTransition("mint", string(dErrors.CodeExternalService))
		return nil, err
	}

	mintedAt := s.clock.Now()
	updated, err := s.store.CompareAndSwap(ctx, id, reserved.Version, func(r *evidence.EvidenceRecord) error {
		if r.State != evidence.StateFrozen {
			return sentinel.ErrInvalidState
		}
		r.State = evidence.StateMinted
		r.ChainReference = anchor.Reference
		r.MintedAt = &mintedAt
		r.TrustScore = &score
		return nil
	})
	if err != nil {
		// The anchor exists on-chain but was not persisted locally; the next
		// mint attempt reconciles through GetAnchor instead of re-anchoring.
		s.metrics.IncrementTransition("mint", string(dErrors.CodeInvalidTransition))
		return nil, s.translateCASErr(err, id, "mint")
	}

	s.emit(ctx, audit.Event{
		RecordID:  id.String(),
		Action:    audit.ActionMinted,
		FromState: string(evidence.StateFrozen),
		ToState:   string(evidence.StateMinted),
		Timestamp: mintedAt,
	})
	s.metrics.IncrementTransition("mint", "ok")
	s.logger.InfoContext(ctx, "evidence minted",
		"record_id", id,
		"chain_reference", anchor.Reference,
		"trust_score", score,
	)
	return updated, nil
}

// resolveAnchor returns the record's anchor, reusing an existing one (crash
// recovery) before issuing a new anchor call through the breaker and bounded
// retry.
func (s *Service) resolveAnchor(ctx context.Context, id domain.EvidenceID, dataHash string) (chain.Anchor, error) {
	existing, err := s.chainCall(ctx, func(ctx context.Context) (chain.Anchor, error) {
		return s.chain.GetAnchor(ctx, id)
	})
	if err == nil {
		s.metrics.IncrementAnchorCall("reconciled")
		s.logger.InfoContext(ctx, "reusing existing anchor", "record_id", id, "chain_reference", existing.Reference)
		return existing, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		s.metrics.IncrementAnchorCall("error")
		return chain.Anchor{}, err
	}

	anchor, err := s.chainCall(ctx, func(ctx context.Context) (chain.Anchor, error) {
		return s.chain.Anchor(ctx, id, dataHash)
	})
	if err != nil {
		s.metrics.IncrementAnchorCall("error")
		return chain.Anchor{}, err
	}
	s.metrics.IncrementAnchorCall("ok")
	return anchor, nil
}

// chainCall applies the circuit breaker and transient-retry policy to one
// chain collaborator operation. sentinel.ErrNotFound passes through untouched:
// it is a fact, not a failure.
func (s *Service) chainCall(ctx context.Context, fn func(ctx context.Context) (chain.Anchor, error)) (chain.Anchor, error) {
	if s.breaker.IsOpen() {
		return chain.Anchor{}, dErrors.New(dErrors.CodeExternalService, "chain collaborator circuit open")
	}
	anchor, err := retry.DoVal(ctx, s.retryCfg, func(ctx context.Context) (chain.Anchor, error) {
		a, err := fn(ctx)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return chain.Anchor{}, err
			}
			return chain.Anchor{}, dErrors.Wrap(dErrors.CodeExternalService, "chain collaborator call", err)
		}
		return a, nil
	})
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		if _, change := s.breaker.RecordFailure(); change.Opened {
			s.logger.WarnContext(ctx, "chain collaborator circuit opened")
		}
		return chain.Anchor{}, err
	}
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "chain collaborator circuit closed")
	}
	return anchor, err
}

// Settle confirms on-chain finality for a minted record. The caller's
// confirmation must reference the stored anchor; a mismatch signals possible
// tampering or a stale caller and is never retried.
func (s *Service) Settle(ctx context.Context, id domain.EvidenceID, confirmation string) (*evidence.EvidenceRecord, error) {
	defer s.observe("settle", time.Now())

	record, err := s.store.Get(ctx, id)
	if err != nil {
		s.metrics.IncrementTransition("settle", string(dErrors.CodeNotFound))
		return nil, s.translateStoreErr(err, id)
	}
	if record.State != evidence.StateMinted {
		s.metrics.IncrementTransition("settle", string(dErrors.CodeInvalidTransition))
		return nil, dErrors.Newf(dErrors.CodeInvalidTransition,
			"settle requires minted, record is %s", record.State)
	}
	if confirmation != record.ChainReference {
		s.metrics.IncrementTransition("settle", string(dErrors.CodeMismatch))
		s.logger.ErrorContext(ctx, "settlement confirmation mismatch, possible integrity incident",
			"record_id", id,
			"stored_reference", record.ChainReference,
			"confirmation", confirmation,
		)
		return nil, dErrors.New(dErrors.CodeMismatch,
			"confirmation does not reference the stored anchor")
	}

	confirmed, err := s.confirmWithRetry(ctx, record.ChainReference)
	if err != nil {
		s.metrics.IncrementTransition("settle", string(dErrors.CodeExternalService))
		return nil, err
	}
	if !confirmed {
		s.metrics.IncrementTransition("settle", string(dErrors.CodeExternalService))
		return nil, dErrors.New(dErrors.CodeExternalService, "anchor not yet final, retry later")
	}

	now := s.clock.Now()
	updated, err := s.store.CompareAndSwap(ctx, id, record.Version, func(r *evidence.EvidenceRecord) error {
		if r.State != evidence.StateMinted {
			return sentinel.ErrInvalidState
		}
		r.State = evidence.StateSettled
		r.SettledAt = &now
		return nil
	})
	if err != nil {
		s.metrics.IncrementTransition("settle", string(dErrors.CodeInvalidTransition))
		return nil, s.translateCASErr(err, id, "settle")
	}

	s.emit(ctx, audit.Event{
		RecordID:  id.String(),
		Action:    audit.ActionSettled,
		FromState: string(evidence.StateMinted),
		ToState:   string(evidence.StateSettled),
		Timestamp: now,
	})
	s.metrics.IncrementTransition("settle", "ok")
	s.logger.InfoContext(ctx, "evidence settled", "record_id", id)
	return updated, nil
}

func (s *Service) confirmWithRetry(ctx context.Context, reference string) (bool, error) {
	if s.breaker.IsOpen() {
		return false, dErrors.New(dErrors.CodeExternalService, "chain collaborator circuit open")
	}
	confirmed, err := retry.DoVal(ctx, s.retryCfg, func(ctx context.Context) (bool, error) {
		ok, err := s.chain.Confirm(ctx, reference)
		if err != nil {
			return false, dErrors.Wrap(dErrors.CodeExternalService, "confirm anchor", err)
		}
		return ok, nil
	})
	if err != nil {
		s.breaker.RecordFailure()
		return false, err
	}
	s.breaker.RecordSuccess()
	return confirmed, nil
}

// Dispute forces a record out of the happy path. It succeeds from any
// non-terminal state and appends the reason to metadata so the dispute trail
// survives on the record itself.
func (s *Service) Dispute(ctx context.Context, id domain.EvidenceID, reason string) (*evidence.EvidenceRecord, error) {
	defer s.observe("dispute", time.Now())

	record, err := s.store.Get(ctx, id)
	if err != nil {
		s.metrics.IncrementTransition("dispute", string(dErrors.CodeNotFound))
		return nil, s.translateStoreErr(err, id)
	}
	if !record.State.Disputable() {
		s.metrics.IncrementTransition("dispute", string(dErrors.CodeInvalidTransition))
		return nil, dErrors.Newf(dErrors.CodeInvalidTransition,
			"dispute not permitted from %s", record.State)
	}

	fromState := record.State
	now := s.clock.Now()
	updated, err := s.store.CompareAndSwap(ctx, id, record.Version, func(r *evidence.EvidenceRecord) error {
		if !r.State.Disputable() {
			return sentinel.ErrInvalidState
		}
		r.State = evidence.StateDisputed
		r.Metadata = r.Metadata.Append("dispute_reason", reason)
		return nil
	})
	if err != nil {
		s.metrics.IncrementTransition("dispute", string(dErrors.CodeInvalidTransition))
		return nil, s.translateCASErr(err, id, "dispute")
	}

	s.emit(ctx, audit.Event{
		RecordID:  id.String(),
		Action:    audit.ActionDisputed,
		FromState: string(fromState),
		ToState:   string(evidence.StateDisputed),
		Reason:    reason,
		Timestamp: now,
	})
	s.metrics.IncrementTransition("dispute", "ok")
	s.logger.WarnContext(ctx, "evidence disputed", "record_id", id, "reason", reason)
	return updated, nil
}

// Classify runs a fresh verification pass and persists the resulting
// compliance level and trust score on the record. Lifecycle state is never
// changed here; classification is orthogonal to the happy path.
func (s *Service) Classify(ctx context.Context, id domain.EvidenceID) (*verification.Result, error) {
	defer s.observe("classify", time.Now())

	record, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.translateStoreErr(err, id)
	}

	result := s.verifier.Verify(ctx, record)

	// Persist the derived values. A concurrent transition may bump the
	// version; re-fetch and reapply rather than failing the whole pass.
	for attempt := 0; attempt < 3; attempt++ {
		_, err = s.store.CompareAndSwap(ctx, id, record.Version, func(r *evidence.EvidenceRecord) error {
			level := result.Level
			r.ComplianceLevel = &level
			score := result.TrustScore
			r.TrustScore = &score
			return nil
		})
		if err == nil || !errors.Is(err, sentinel.ErrConflict) {
			break
		}
		record, err = s.store.Get(ctx, id)
		if err != nil {
			return nil, s.translateStoreErr(err, id)
		}
	}
	if err != nil {
		s.logger.WarnContext(ctx, "classification not persisted", "record_id", id, "error", err)
	}

	if s.cache != nil {
		if err := s.cache.Save(ctx, id, result.Level); err != nil {
			s.logger.DebugContext(ctx, "classification cache write failed", "record_id", id, "error", err)
		}
	}
	s.emit(ctx, audit.Event{
		RecordID:  id.String(),
		Action:    audit.ActionClassified,
		Reason:    string(result.Level),
		Timestamp: result.EvaluatedAt,
	})
	return result, nil
}

// Compliance returns the record's current compliance level without forcing a
// fresh pass: cached value first, then the persisted one. Records never
// classified report ComplianceNone.
func (s *Service) Compliance(ctx context.Context, id domain.EvidenceID) (evidence.ComplianceLevel, error) {
	if s.cache != nil {
		if level, err := s.cache.Find(ctx, id); err == nil {
			return level, nil
		}
	}
	record, err := s.store.Get(ctx, id)
	if err != nil {
		return "", s.translateStoreErr(err, id)
	}
	if record.ComplianceLevel == nil {
		return evidence.ComplianceNone, nil
	}
	return *record.ComplianceLevel, nil
}

func (s *Service) translateStoreErr(err error, id domain.EvidenceID) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Newf(dErrors.CodeNotFound, "evidence record %s not found", id)
	}
	return dErrors.Wrap(dErrors.CodeInternal, "ledger store", err)
}

// translateCASErr maps store sentinels from a failed swap onto guard errors.
// Both a stale version and a state check inside the mutator mean the caller
// lost a race; they must re-fetch and decide whether to retry.
func (s *Service) translateCASErr(err error, id domain.EvidenceID, operation string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Newf(dErrors.CodeNotFound, "evidence record %s not found", id)
	case errors.Is(err, sentinel.ErrConflict), errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Newf(dErrors.CodeInvalidTransition,
			"%s lost a concurrent update, re-fetch and retry", operation)
	default:
		return dErrors.Wrap(dErrors.CodeInternal, "ledger store", err)
	}
}

// emit publishes an audit event best-effort; audit failures are logged, never
// surfaced, so a sink outage cannot block transitions.
func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed",
			"record_id", event.RecordID,
			"action", event.Action,
			"error", err,
		)
	}
}

func (s *Service) observe(operation string, start time.Time) {
	s.metrics.ObserveOperation(operation, time.Since(start))
}
