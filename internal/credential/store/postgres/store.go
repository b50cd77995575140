package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"quorum/internal/credential"
	id "quorum/pkg/domain"
	"quorum/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// Store persists credentials in PostgreSQL with optimistic versioning.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, cred *credential.Credential) error {
	query := `
		INSERT INTO credentials
			(id, identity_id, public_key, fingerprint, sign_count, attested,
			 invalidated, invalidated_at, created_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		cred.ID.String(),
		cred.IdentityID.String(),
		[]byte(cred.PublicKey),
		cred.Fingerprint,
		int64(cred.SignCount),
		cred.Attested,
		cred.Invalidated,
		cred.InvalidatedAt,
		cred.CreatedAt,
		cred.Version,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, credentialID id.CredentialID) (*credential.Credential, error) {
	query := `
		SELECT id, identity_id, public_key, fingerprint, sign_count, attested,
		       invalidated, invalidated_at, created_at, version
		FROM credentials
		WHERE id = $1
	`
	var (
		rawID        string
		rawIdentity  string
		cred         credential.Credential
		signCount    int64
	)
	err := s.db.QueryRowContext(ctx, query, credentialID.String()).Scan(
		&rawID,
		&rawIdentity,
		(*[]byte)(&cred.PublicKey),
		&cred.Fingerprint,
		&signCount,
		&cred.Attested,
		&cred.Invalidated,
		&cred.InvalidatedAt,
		&cred.CreatedAt,
		&cred.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get credential: %w", err)
	}

	parsedID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse credential id: %w", err)
	}
	parsedIdentity, err := uuid.Parse(rawIdentity)
	if err != nil {
		return nil, fmt.Errorf("parse identity id: %w", err)
	}
	cred.ID = id.CredentialID(parsedID)
	cred.IdentityID = id.IdentityID(parsedIdentity)
	cred.SignCount = uint32(signCount)
	return &cred, nil
}

func (s *Store) Update(ctx context.Context, cred *credential.Credential) error {
	query := `
		UPDATE credentials
		SET sign_count = $1, invalidated = $2, invalidated_at = $3, version = version + 1
		WHERE id = $4 AND version = $5
	`
	result, err := s.db.ExecContext(ctx, query,
		int64(cred.SignCount),
		cred.Invalidated,
		cred.InvalidatedAt,
		cred.ID.String(),
		cred.Version,
	)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update credential rows affected: %w", err)
	}
	if affected == 0 {
		// Either the row is gone or the version token is stale; both are
		// surfaced as a conflict so the service retries from a fresh read.
		return sentinel.ErrConflict
	}
	cred.Version++
	return nil
}

// Schema returns the DDL for the credentials table.
func Schema() string {
	return `
		CREATE TABLE IF NOT EXISTS credentials (
			id             UUID PRIMARY KEY,
			identity_id    UUID NOT NULL,
			public_key     BYTEA NOT NULL,
			fingerprint    TEXT NOT NULL UNIQUE,
			sign_count     BIGINT NOT NULL,
			attested       BOOLEAN NOT NULL,
			invalidated    BOOLEAN NOT NULL DEFAULT FALSE,
			invalidated_at TIMESTAMPTZ,
			created_at     TIMESTAMPTZ NOT NULL,
			version        BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_credentials_identity ON credentials (identity_id);
	`
}
