// Package evidence provides an HMAC-signed audit trail for redaction
// runs. Every processed document produces a Record that is signed
// (HMAC-SHA256) and persisted in SQLite. Records carry content hashes
// and per-type finding counts, never the matched text itself, so the
// audit trail cannot become a secondary PII store.
package evidence

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	redactotel "github.com/smart-redact/redactd/internal/otel"
)

var tracer = redactotel.Tracer("github.com/smart-redact/redactd/internal/evidence")

// Validation verdicts recorded on a run.
const (
	ValidationPassed  = "passed"
	ValidationFailed  = "failed"
	ValidationSkipped = "skipped"
)

// Record is the full audit record for one redaction run.
type Record struct {
	ID            string         `json:"id"`
	Timestamp     time.Time      `json:"timestamp"`
	Source        string         `json:"source"`
	Output        string         `json:"output,omitempty"`
	Medium        string         `json:"medium"`
	State         string         `json:"state"`
	InputHash     string         `json:"input_hash"`
	OutputHash    string         `json:"output_hash,omitempty"`
	EntityCounts  map[string]int `json:"entity_counts,omitempty"`
	FindingsTotal int            `json:"findings_total"`
	Methods       map[string]bool `json:"methods,omitempty"`
	Validation    string         `json:"validation"`
	LeakCount     int            `json:"leak_count,omitempty"`
	DurationMS    int64          `json:"duration_ms"`
	Error         string         `json:"error,omitempty"`
	Signature     string         `json:"signature"`
}

// Store persists HMAC-signed run records in SQLite.
type Store struct {
	db     *sql.DB
	signer *Signer
}

// NewStore creates a run store with HMAC signing.
func NewStore(dbPath string, signingKey string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening evidence database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		timestamp TIMESTAMP NOT NULL,
		medium TEXT NOT NULL,
		state TEXT NOT NULL,
		validation TEXT NOT NULL,
		record_json TEXT NOT NULL,
		signature TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON runs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_medium ON runs(medium);
	CREATE INDEX IF NOT EXISTS idx_runs_validation ON runs(validation);
	`

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return nil, fmt.Errorf("creating evidence schema: %w", err)
	}

	signer, err := NewSigner(signingKey)
	if err != nil {
		return nil, fmt.Errorf("creating signer: %w", err)
	}

	return &Store{db: db, signer: signer}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// NewRecordID returns a fresh run record identifier.
func NewRecordID() string {
	return "run_" + uuid.New().String()[:8]
}

// Append signs the record and persists it. The signature covers the
// record JSON with the Signature field empty.
func (s *Store) Append(ctx context.Context, rec *Record) error {
	ctx, span := tracer.Start(ctx, "evidence.append",
		trace.WithAttributes(
			attribute.String("run.id", rec.ID),
			attribute.String("run.medium", rec.Medium),
		))
	defer span.End()

	if rec.ID == "" {
		rec.ID = NewRecordID()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	rec.Signature = ""
	unsigned, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	signature, err := s.signer.Sign(unsigned)
	if err != nil {
		return fmt.Errorf("signing record: %w", err)
	}
	rec.Signature = signature

	signed, _ := json.Marshal(rec)

	query := `INSERT INTO runs (id, timestamp, medium, state, validation, record_json, signature)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.Timestamp, rec.Medium, rec.State, rec.Validation, string(signed), signature,
	)
	if err != nil {
		return fmt.Errorf("storing record: %w", err)
	}
	return nil
}

// Get retrieves a run record by ID.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	ctx, span := tracer.Start(ctx, "evidence.get",
		trace.WithAttributes(attribute.String("run.id", id)))
	defer span.End()

	var recordJSON string
	err := s.db.QueryRowContext(ctx, `SELECT record_json FROM runs WHERE id = ?`, id).Scan(&recordJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling run record: %w", err)
	}
	return &rec, nil
}

// List returns run records matching the filters, newest first.
func (s *Store) List(ctx context.Context, medium, validation string, from, to time.Time, limit int) ([]Record, error) {
	ctx, span := tracer.Start(ctx, "evidence.list",
		trace.WithAttributes(attribute.String("run.medium", medium)))
	defer span.End()

	query := `SELECT record_json FROM runs WHERE 1=1`
	args := []interface{}{}

	if medium != "" {
		query += ` AND medium = ?`
		args = append(args, medium)
	}
	if validation != "" {
		query += ` AND validation = ?`
		args = append(args, validation)
	}
	if !from.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, from)
	}
	if !to.IsZero() {
		query += ` AND timestamp <= ?`
		args = append(args, to)
	}
	query += ` ORDER BY timestamp DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var results []Record
	for rows.Next() {
		var recordJSON string
		if err := rows.Scan(&recordJSON); err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
			continue
		}
		results = append(results, rec)
	}

	span.SetAttributes(attribute.Int("run.count", len(results)))
	return results, nil
}

// Summary aggregates per-entity-type finding counts over the half-open
// time range [from, to). Callers should pass to as the start of the
// next period to avoid double-counting at boundaries.
func (s *Store) Summary(ctx context.Context, from, to time.Time) (map[string]int, error) {
	ctx, span := tracer.Start(ctx, "evidence.summary")
	defer span.End()

	query := `SELECT record_json FROM runs WHERE 1=1`
	args := []interface{}{}
	if !from.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, from)
	}
	if !to.IsZero() {
		query += ` AND timestamp < ?`
		args = append(args, to)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs for summary: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int)
	for rows.Next() {
		var recordJSON string
		if err := rows.Scan(&recordJSON); err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
			continue
		}
		for entity, n := range rec.EntityCounts {
			totals[entity] += n
		}
	}

	span.SetAttributes(attribute.Int("entity_type_count", len(totals)))
	return totals, nil
}

// Count returns the total number of stored run records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting runs: %w", err)
	}
	return n, nil
}

// DeleteOlderThan removes run records with timestamps before cutoff and
// returns how many went. Used by the retention sweep.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "evidence.delete_older_than")
	defer span.End()

	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting expired runs: %w", err)
	}
	n, _ := res.RowsAffected()
	span.SetAttributes(attribute.Int64("deleted", n))
	return n, nil
}

// Verify checks the HMAC signature integrity of a run record.
func (s *Store) Verify(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "evidence.verify",
		trace.WithAttributes(attribute.String("run.id", id)))
	defer span.End()

	rec, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}

	signature := rec.Signature
	rec.Signature = ""
	unsigned, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("marshaling for verification: %w", err)
	}
	return s.signer.Verify(unsigned, signature), nil
}

// HashFile returns the sha256 digest of a file's content in the
// "sha256:<hex>" form used by run records.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}
