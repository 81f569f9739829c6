package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/flashbots/nada-quickstart/cluster"
	"github.com/flashbots/nada-quickstart/protocol"
	"github.com/lib/pq"
)

// PostgresStore implements cluster.Store with PostgreSQL persistence.
type PostgresStore struct {
	db *sql.DB
}

var _ cluster.Store = (*PostgresStore)(nil)

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS programs (
		program_id VARCHAR(256) PRIMARY KEY,
		owner VARCHAR(64) NOT NULL,
		name VARCHAR(128) NOT NULL,
		artifact BYTEA NOT NULL,
		digest VARCHAR(64) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE TABLE IF NOT EXISTS value_sets (
		store_id UUID PRIMARY KEY,
		owner VARCHAR(64) NOT NULL,
		party_id VARCHAR(64) NOT NULL,
		scope VARCHAR(64) NOT NULL,
		encoded_values JSONB NOT NULL,
		retrieve_users TEXT[] NOT NULL,
		update_users TEXT[] NOT NULL,
		delete_users TEXT[] NOT NULL,
		compute_grants JSONB NOT NULL,
		expires_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE TABLE IF NOT EXISTS computations (
		compute_id UUID PRIMARY KEY,
		owner VARCHAR(64) NOT NULL,
		program_id VARCHAR(256) NOT NULL,
		bindings JSONB NOT NULL,
		status VARCHAR(16) NOT NULL,
		outputs JSONB,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS quote_nonces (
		nonce UUID PRIMARY KEY,
		consumed_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_value_sets_expires ON value_sets(expires_at);
	CREATE INDEX IF NOT EXISTS idx_computations_status ON computations(status);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", cluster.ErrNotFound, what, id)
	}
	return err
}

// SaveProgram stores or replaces a program.
func (s *PostgresStore) SaveProgram(ctx context.Context, rec *cluster.ProgramRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
	INSERT INTO programs (program_id, owner, name, artifact, digest, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (program_id) DO UPDATE SET
		artifact = EXCLUDED.artifact,
		digest = EXCLUDED.digest,
		created_at = EXCLUDED.created_at
	`
	_, err := s.db.ExecContext(ctx, query, rec.ProgramID, rec.Owner, rec.Name, rec.Artifact, rec.Digest, rec.CreatedAt)
	return err
}

// LoadProgram retrieves a program by id.
func (s *PostgresStore) LoadProgram(ctx context.Context, programID string) (*cluster.ProgramRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rec := &cluster.ProgramRecord{ProgramID: programID}
	err := s.db.QueryRowContext(ctx, `
		SELECT owner, name, artifact, digest, created_at FROM programs WHERE program_id = $1
	`, programID).Scan(&rec.Owner, &rec.Name, &rec.Artifact, &rec.Digest, &rec.CreatedAt)
	if err != nil {
		return nil, notFound(err, "program", programID)
	}
	return rec, nil
}

// SaveValues stores a value set with its permissions.
func (s *PostgresStore) SaveValues(ctx context.Context, rec *cluster.ValuesRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	values, err := json.Marshal(rec.Values)
	if err != nil {
		return err
	}
	grants, err := json.Marshal(rec.Permissions.Compute)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO value_sets
		(store_id, owner, party_id, scope, encoded_values, retrieve_users, update_users, delete_users, compute_grants, expires_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (store_id) DO UPDATE SET
		encoded_values = EXCLUDED.encoded_values,
		retrieve_users = EXCLUDED.retrieve_users,
		update_users = EXCLUDED.update_users,
		delete_users = EXCLUDED.delete_users,
		compute_grants = EXCLUDED.compute_grants,
		expires_at = EXCLUDED.expires_at
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.StoreID,
		rec.Owner,
		rec.PartyID,
		rec.Scope,
		values,
		pq.Array(rec.Permissions.Retrieve),
		pq.Array(rec.Permissions.Update),
		pq.Array(rec.Permissions.Delete),
		grants,
		rec.ExpiresAt,
	)
	return err
}

// LoadValues retrieves a value set by store id.
func (s *PostgresStore) LoadValues(ctx context.Context, storeID string) (*cluster.ValuesRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		values []byte
		grants []byte
	)
	rec := &cluster.ValuesRecord{StoreID: storeID, Permissions: &protocol.Permissions{}}
	err := s.db.QueryRowContext(ctx, `
		SELECT owner, party_id, scope, encoded_values, retrieve_users, update_users, delete_users, compute_grants, expires_at
		FROM value_sets WHERE store_id = $1
	`, storeID).Scan(
		&rec.Owner,
		&rec.PartyID,
		&rec.Scope,
		&values,
		pq.Array(&rec.Permissions.Retrieve),
		pq.Array(&rec.Permissions.Update),
		pq.Array(&rec.Permissions.Delete),
		&grants,
		&rec.ExpiresAt,
	)
	if err != nil {
		return nil, notFound(err, "values", storeID)
	}

	rec.Permissions.Owner = rec.Owner
	if err := json.Unmarshal(values, &rec.Values); err != nil {
		return nil, fmt.Errorf("decoding values: %w", err)
	}
	if err := json.Unmarshal(grants, &rec.Permissions.Compute); err != nil {
		return nil, fmt.Errorf("decoding compute grants: %w", err)
	}
	return rec, nil
}

// DeleteValues removes a value set.
func (s *PostgresStore) DeleteValues(ctx context.Context, storeID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := s.db.ExecContext(ctx, "DELETE FROM value_sets WHERE store_id = $1", storeID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: values %s", cluster.ErrNotFound, storeID)
	}
	return nil
}

// SaveComputation stores or updates a computation.
func (s *PostgresStore) SaveComputation(ctx context.Context, rec *cluster.ComputeRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	bindings, err := json.Marshal(rec.Bindings)
	if err != nil {
		return err
	}
	var outputs []byte
	if rec.Outputs != nil {
		if outputs, err = json.Marshal(rec.Outputs); err != nil {
			return err
		}
	}

	query := `
	INSERT INTO computations (compute_id, owner, program_id, bindings, status, outputs, error, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	ON CONFLICT (compute_id) DO UPDATE SET
		status = EXCLUDED.status,
		outputs = EXCLUDED.outputs,
		error = EXCLUDED.error,
		updated_at = NOW()
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.ComputeID,
		rec.Owner,
		rec.ProgramID,
		bindings,
		string(rec.Status),
		outputs,
		rec.Error,
		rec.CreatedAt,
	)
	return err
}

// LoadComputation retrieves a computation by id.
func (s *PostgresStore) LoadComputation(ctx context.Context, computeID string) (*cluster.ComputeRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		bindings []byte
		outputs  []byte
		status   string
	)
	rec := &cluster.ComputeRecord{ComputeID: computeID}
	err := s.db.QueryRowContext(ctx, `
		SELECT owner, program_id, bindings, status, outputs, error, created_at
		FROM computations WHERE compute_id = $1
	`, computeID).Scan(&rec.Owner, &rec.ProgramID, &bindings, &status, &outputs, &rec.Error, &rec.CreatedAt)
	if err != nil {
		return nil, notFound(err, "computation", computeID)
	}

	rec.Status = protocol.ComputeStatus(status)
	if err := json.Unmarshal(bindings, &rec.Bindings); err != nil {
		return nil, fmt.Errorf("decoding bindings: %w", err)
	}
	if len(outputs) > 0 {
		if err := json.Unmarshal(outputs, &rec.Outputs); err != nil {
			return nil, fmt.Errorf("decoding outputs: %w", err)
		}
	}
	return rec, nil
}

// ConsumeNonce marks a quote nonce as spent.
func (s *PostgresStore) ConsumeNonce(ctx context.Context, nonce string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := s.db.ExecContext(ctx, "INSERT INTO quote_nonces (nonce) VALUES ($1) ON CONFLICT DO NOTHING", nonce)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", cluster.ErrReceiptReused, nonce)
	}
	return nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
