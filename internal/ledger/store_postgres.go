package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"provenance/internal/evidence"
	"provenance/pkg/domain"
	"provenance/pkg/platform/sentinel"
)

// PostgresStore persists evidence records in PostgreSQL. CompareAndSwap runs
// as a transaction holding a row lock, with a version-guarded UPDATE as the
// final authority, so concurrent writers on the same id linearize and stale
// writers fail with ErrConflict.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed ledger store. The schema in
// schema.sql must already be applied.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `id, submitter_id, evidence_type, data_hash, metadata, linked_evidence,
	state, trust_score, compliance_level, freeze_at, minted_at, settled_at,
	chain_reference, created_at, retention_until, version`

func (s *PostgresStore) Create(ctx context.Context, record *evidence.EvidenceRecord) error {
	record.Version = 1
	metadata, linked, err := encodeJSONFields(record)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO evidence_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		record.ID.String(), record.SubmitterID, string(record.EvidenceType), record.DataHash,
		metadata, linked, string(record.State),
		nullFloat(record.TrustScore), nullCompliance(record.ComplianceLevel),
		nullTime(record.FreezeAt), nullTime(record.MintedAt), nullTime(record.SettledAt),
		record.ChainReference, record.CreatedAt, record.RetentionUntil, record.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create evidence record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id domain.EvidenceID) (*evidence.EvidenceRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM evidence_records WHERE id = $1`, id.String())
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get evidence record: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) CompareAndSwap(ctx context.Context, id domain.EvidenceID, expectedVersion int64, mutate Mutator) (*evidence.EvidenceRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin cas: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM evidence_records WHERE id = $1 FOR UPDATE`, id.String())
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock evidence record: %w", err)
	}
	if record.Version != expectedVersion {
		return nil, sentinel.ErrConflict
	}

	if err := mutate(record); err != nil {
		return nil, err
	}
	record.Version = expectedVersion + 1

	metadata, linked, err := encodeJSONFields(record)
	if err != nil {
		return nil, err
	}
	result, err := tx.ExecContext(ctx, `
		UPDATE evidence_records SET
			metadata = $2, linked_evidence = $3, state = $4, trust_score = $5,
			compliance_level = $6, freeze_at = $7, minted_at = $8, settled_at = $9,
			chain_reference = $10, version = $11
		WHERE id = $1 AND version = $12
	`,
		id.String(), metadata, linked, string(record.State),
		nullFloat(record.TrustScore), nullCompliance(record.ComplianceLevel),
		nullTime(record.FreezeAt), nullTime(record.MintedAt), nullTime(record.SettledAt),
		record.ChainReference, record.Version, expectedVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("cas update: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("cas rows affected: %w", err)
	}
	if affected == 0 {
		return nil, sentinel.ErrConflict
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit cas: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) Scan(ctx context.Context, match Predicate) ([]*evidence.EvidenceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM evidence_records`)
	if err != nil {
		return nil, fmt.Errorf("scan evidence records: %w", err)
	}
	defer rows.Close()

	var out []*evidence.EvidenceRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan evidence row: %w", err)
		}
		if match == nil || match(record) {
			out = append(out, record)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evidence rows: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*evidence.EvidenceRecord, error) {
	var (
		record       evidence.EvidenceRecord
		rawID        string
		evidenceType string
		state        string
		metadata     []byte
		linked       []byte
		trustScore   sql.NullFloat64
		compliance   sql.NullString
		freezeAt     sql.NullTime
		mintedAt     sql.NullTime
		settledAt    sql.NullTime
	)
	err := row.Scan(
		&rawID, &record.SubmitterID, &evidenceType, &record.DataHash, &metadata, &linked,
		&state, &trustScore, &compliance, &freezeAt, &mintedAt, &settledAt,
		&record.ChainReference, &record.CreatedAt, &record.RetentionUntil, &record.Version,
	)
	if err != nil {
		return nil, err
	}

	id, err := domain.ParseEvidenceID(rawID)
	if err != nil {
		return nil, fmt.Errorf("stored id invalid: %w", err)
	}
	record.ID = id
	record.EvidenceType = evidence.EvidenceType(evidenceType)
	record.State = evidence.State(state)
	if err := json.Unmarshal(metadata, &record.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if err := json.Unmarshal(linked, &record.LinkedEvidence); err != nil {
		return nil, fmt.Errorf("decode linked evidence: %w", err)
	}
	if trustScore.Valid {
		record.TrustScore = &trustScore.Float64
	}
	if compliance.Valid {
		level := evidence.ComplianceLevel(compliance.String)
		record.ComplianceLevel = &level
	}
	record.FreezeAt = timePtr(freezeAt)
	record.MintedAt = timePtr(mintedAt)
	record.SettledAt = timePtr(settledAt)
	return &record, nil
}

func encodeJSONFields(record *evidence.EvidenceRecord) (metadata, linked []byte, err error) {
	meta := record.Metadata
	if meta == nil {
		meta = evidence.Metadata{}
	}
	metadata, err = json.Marshal(meta)
	if err != nil {
		return nil, nil, fmt.Errorf("encode metadata: %w", err)
	}
	ids := record.LinkedEvidence
	if ids == nil {
		ids = []domain.EvidenceID{}
	}
	linked, err = json.Marshal(ids)
	if err != nil {
		return nil, nil, fmt.Errorf("encode linked evidence: %w", err)
	}
	return metadata, linked, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullCompliance(v *evidence.ComplianceLevel) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*v), Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

// isUniqueViolation matches the PostgreSQL unique_violation SQLSTATE.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
