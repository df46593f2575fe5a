package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"voting-gateway/models"
)

const uniqueViolation = "23505"

const votersSchema = `
CREATE TABLE IF NOT EXISTS voters (
	id               TEXT PRIMARY KEY,
	aadhaar_no       TEXT NOT NULL UNIQUE,
	name             TEXT NOT NULL,
	mobile_no        TEXT NOT NULL,
	dob              DATE NOT NULL,
	email            TEXT,
	metamask_address TEXT NOT NULL,
	is_registered    BOOLEAN NOT NULL DEFAULT FALSE,
	fingerprint_hash TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const voterColumns = `id, aadhaar_no, name, mobile_no, to_char(dob, 'YYYY-MM-DD'),
	COALESCE(email, ''), metamask_address, is_registered,
	COALESCE(fingerprint_hash, ''), created_at, updated_at`

// PostgresStore talks to the voters table directly. The unique constraint
// on aadhaar_no serialises concurrent first registrations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if _, err := pool.Exec(ctx, votersSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure voters table: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) FindByNationalID(ctx context.Context, nationalID string) (*models.VoterRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+voterColumns+` FROM voters WHERE aadhaar_no = $1`, nationalID)

	rec, err := scanVoter(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find voter: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Insert(ctx context.Context, record *models.VoterRecord) (*models.VoterRecord, error) {
	id := record.ID
	if id == "" {
		id = uuid.NewString()
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO voters (id, aadhaar_no, name, mobile_no, dob, email, metamask_address, is_registered, fingerprint_hash)
		VALUES ($1, $2, $3, $4, $5::date, NULLIF($6, ''), $7, $8, NULLIF($9, ''))
		RETURNING `+voterColumns,
		id, record.NationalID, record.FullName, record.MobileNumber, record.DateOfBirth,
		record.Email, record.WalletAddress, record.Registered, record.FingerprintHash,
	)

	rec, err := scanVoter(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return rec, nil
}

func (s *PostgresStore) Update(ctx context.Context, record *models.VoterRecord) (*models.VoterRecord, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE voters SET
			name = $2,
			mobile_no = $3,
			dob = $4::date,
			email = NULLIF($5, ''),
			metamask_address = $6,
			is_registered = $7,
			fingerprint_hash = COALESCE(NULLIF($8, ''), fingerprint_hash),
			updated_at = now()
		WHERE aadhaar_no = $1
		RETURNING `+voterColumns,
		record.NationalID, record.FullName, record.MobileNumber, record.DateOfBirth,
		record.Email, record.WalletAddress, record.Registered, record.FingerprintHash,
	)

	rec, err := scanVoter(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return rec, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanVoter(row pgx.Row) (*models.VoterRecord, error) {
	var rec models.VoterRecord
	err := row.Scan(
		&rec.ID, &rec.NationalID, &rec.FullName, &rec.MobileNumber, &rec.DateOfBirth,
		&rec.Email, &rec.WalletAddress, &rec.Registered, &rec.FingerprintHash,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func mapWriteError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return models.ErrConflict
	}
	return fmt.Errorf("failed to write voter: %w", err)
}
