// Package postgres provides the Postgres-backed persistence gateway.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/surfacehub/contractor-aggregator/internal/contractor"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// dbPool is the pgxpool surface the store needs; pgxmock stands in for tests.
type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// ContractorStore persists canonical contractors in Postgres.
//
// Expected schema:
//
//	CREATE TABLE contractors (
//	    id UUID PRIMARY KEY,
//	    identity_key TEXT NOT NULL UNIQUE,
//	    business_name TEXT NOT NULL,
//	    name_key TEXT NOT NULL DEFAULT '',
//	    phone TEXT NOT NULL DEFAULT '',
//	    street TEXT NOT NULL DEFAULT '',
//	    city TEXT NOT NULL DEFAULT '',
//	    state TEXT NOT NULL DEFAULT '',
//	    zip TEXT NOT NULL DEFAULT '',
//	    raw_address TEXT NOT NULL DEFAULT '',
//	    website TEXT NOT NULL DEFAULT '',
//	    license_number TEXT NOT NULL DEFAULT '',
//	    specialties TEXT[] NOT NULL DEFAULT '{}',
//	    certifications TEXT[] NOT NULL DEFAULT '{}',
//	    categories TEXT[] NOT NULL DEFAULT '{}',
//	    verified BOOLEAN NOT NULL DEFAULT FALSE,
//	    provenance JSONB NOT NULL DEFAULT '[]',
//	    created_at TIMESTAMPTZ NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL
//	);
type ContractorStore struct {
	pool dbPool
}

// NewContractorStore connects a pool from cfg.
func NewContractorStore(ctx context.Context, cfg Config) (*ContractorStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ContractorStore{pool: pool}, nil
}

// NewContractorStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewContractorStoreWithPool(pool dbPool) (*ContractorStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ContractorStore{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *ContractorStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const contractorColumns = `id, identity_key, business_name, name_key, phone, street, city, state, zip,
raw_address, website, license_number, specialties, certifications, categories, verified, provenance,
created_at, updated_at`

// upsertSQL keeps stored non-empty scalars (first-writer-wins), unions tag
// arrays, ORs verified, and keeps the longer provenance history, so replaying
// an upsert can never lose fields. The unique index on identity_key is what
// serializes two sources racing to create the same new business.
const upsertSQL = `
INSERT INTO contractors (` + contractorColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
ON CONFLICT (identity_key) DO UPDATE SET
	business_name = CASE WHEN contractors.business_name = '' THEN EXCLUDED.business_name ELSE contractors.business_name END,
	name_key = CASE WHEN contractors.name_key = '' THEN EXCLUDED.name_key ELSE contractors.name_key END,
	phone = CASE WHEN contractors.phone = '' THEN EXCLUDED.phone ELSE contractors.phone END,
	street = CASE WHEN contractors.street = '' THEN EXCLUDED.street ELSE contractors.street END,
	city = CASE WHEN contractors.city = '' THEN EXCLUDED.city ELSE contractors.city END,
	state = CASE WHEN contractors.state = '' THEN EXCLUDED.state ELSE contractors.state END,
	zip = CASE WHEN contractors.zip = '' THEN EXCLUDED.zip ELSE contractors.zip END,
	raw_address = CASE WHEN contractors.raw_address = '' THEN EXCLUDED.raw_address ELSE contractors.raw_address END,
	website = CASE WHEN contractors.website = '' THEN EXCLUDED.website ELSE contractors.website END,
	license_number = CASE WHEN contractors.license_number = '' THEN EXCLUDED.license_number ELSE contractors.license_number END,
	specialties = ARRAY(SELECT DISTINCT tag FROM unnest(contractors.specialties || EXCLUDED.specialties) AS tag ORDER BY tag),
	certifications = ARRAY(SELECT DISTINCT tag FROM unnest(contractors.certifications || EXCLUDED.certifications) AS tag ORDER BY tag),
	categories = ARRAY(SELECT DISTINCT tag FROM unnest(contractors.categories || EXCLUDED.categories) AS tag ORDER BY tag),
	verified = contractors.verified OR EXCLUDED.verified,
	provenance = CASE
		WHEN jsonb_array_length(EXCLUDED.provenance) >= jsonb_array_length(contractors.provenance)
		THEN EXCLUDED.provenance ELSE contractors.provenance END,
	updated_at = EXCLUDED.updated_at
RETURNING id`

// Upsert idempotently writes c keyed by identity key and returns the stored
// id. Failures wrap ErrStorageUnavailable so callers can apply the batch's
// drop-and-count policy.
func (s *ContractorStore) Upsert(ctx context.Context, c *contractor.CanonicalContractor) (string, error) {
	provenance, err := json.Marshal(c.Provenance)
	if err != nil {
		return "", fmt.Errorf("marshal provenance: %w", err)
	}
	var id string
	err = s.pool.QueryRow(ctx, upsertSQL,
		c.ID,
		c.IdentityKey,
		c.BusinessName,
		c.NameKey,
		c.Phone,
		c.Street,
		c.City,
		c.State,
		c.Zip,
		c.RawAddress,
		c.Website,
		c.LicenseNumber,
		c.Specialties,
		c.Certifications,
		c.Categories,
		c.Verified,
		provenance,
		c.CreatedAt,
		c.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("%w: upsert contractor: %v", contractor.ErrStorageUnavailable, err)
	}
	return id, nil
}

// GetByIdentityKey returns the record for key, or nil when absent.
func (s *ContractorStore) GetByIdentityKey(ctx context.Context, key string) (*contractor.CanonicalContractor, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+contractorColumns+` FROM contractors WHERE identity_key = $1`, key)
	c, err := scanContractor(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: get by identity key: %v", contractor.ErrStorageUnavailable, err)
	}
	return c, nil
}

// ListByCityState returns fuzzy-match candidates sharing a city and state.
func (s *ContractorStore) ListByCityState(ctx context.Context, city, state string) ([]contractor.CanonicalContractor, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+contractorColumns+` FROM contractors WHERE lower(city) = lower($1) AND upper(state) = upper($2)`,
		city, state)
	if err != nil {
		return nil, fmt.Errorf("%w: list by city+state: %v", contractor.ErrStorageUnavailable, err)
	}
	defer rows.Close()
	return collectContractors(rows)
}

// List serves the read-only query interface with optional filters.
func (s *ContractorStore) List(ctx context.Context, filter contractor.ListFilter) ([]contractor.CanonicalContractor, error) {
	query := `SELECT ` + contractorColumns + ` FROM contractors WHERE TRUE`
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.City != "" {
		query += ` AND lower(city) = lower(` + arg(filter.City) + `)`
	}
	if filter.State != "" {
		query += ` AND upper(state) = upper(` + arg(filter.State) + `)`
	}
	if filter.Verified != nil {
		query += ` AND verified = ` + arg(*filter.Verified)
	}
	if filter.Category != "" {
		query += ` AND ` + arg(filter.Category) + ` = ANY(categories)`
	}
	if filter.Specialty != "" {
		query += ` AND ` + arg(filter.Specialty) + ` = ANY(specialties)`
	}
	query += ` ORDER BY business_name`
	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list contractors: %v", contractor.ErrStorageUnavailable, err)
	}
	defer rows.Close()
	return collectContractors(rows)
}

func collectContractors(rows pgx.Rows) ([]contractor.CanonicalContractor, error) {
	var out []contractor.CanonicalContractor
	for rows.Next() {
		c, err := scanContractor(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan contractor: %v", contractor.ErrStorageUnavailable, err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate contractors: %v", contractor.ErrStorageUnavailable, err)
	}
	return out, nil
}

func scanContractor(row pgx.Row) (*contractor.CanonicalContractor, error) {
	var (
		c          contractor.CanonicalContractor
		provenance []byte
	)
	err := row.Scan(
		&c.ID,
		&c.IdentityKey,
		&c.BusinessName,
		&c.NameKey,
		&c.Phone,
		&c.Street,
		&c.City,
		&c.State,
		&c.Zip,
		&c.RawAddress,
		&c.Website,
		&c.LicenseNumber,
		&c.Specialties,
		&c.Certifications,
		&c.Categories,
		&c.Verified,
		&provenance,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(provenance) > 0 {
		if err := json.Unmarshal(provenance, &c.Provenance); err != nil {
			return nil, fmt.Errorf("unmarshal provenance: %w", err)
		}
	}
	return &c, nil
}
