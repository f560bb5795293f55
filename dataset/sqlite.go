package dataset

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	civicscreen "github.com/anatolykoptev/go-civicscreen"
	"github.com/google/uuid"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// SQLite stores records in an insert-only table. Safe for concurrent use;
// sql.DB handles connection pooling and serialization.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the dataset database at path and applies the schema.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reports (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		report_id TEXT NOT NULL,
		received_at DATETIME NOT NULL,
		status TEXT NOT NULL,
		reason TEXT,
		category TEXT,
		priority TEXT,
		report_json TEXT NOT NULL,
		verdict_json TEXT NOT NULL,
		image_metadata_json TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_reports_report_id ON reports(report_id);
	CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append inserts rec. Records without an ID get a UUID.
func (s *SQLite) Append(ctx context.Context, rec civicscreen.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}

	reportJSON, err := json.Marshal(rec.Report)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", rec.Report.ReportID, err)
	}
	verdictJSON, err := json.Marshal(rec.Verdict)
	if err != nil {
		return fmt.Errorf("encode verdict %s: %w", rec.Report.ReportID, err)
	}
	var metaJSON sql.NullString
	if rec.ImageMetadata != nil {
		b, err := json.Marshal(rec.ImageMetadata)
		if err != nil {
			return fmt.Errorf("encode image metadata %s: %w", rec.Report.ReportID, err)
		}
		metaJSON = sql.NullString{String: string(b), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports (id, report_id, received_at, status, reason, category, priority,
			report_json, verdict_json, image_metadata_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Report.ReportID, rec.ReceivedAt, string(rec.Verdict.Status),
		nullString(rec.Verdict.Reason), nullString(rec.Verdict.Category), nullString(string(rec.Verdict.Priority)),
		string(reportJSON), string(verdictJSON), metaJSON,
	)
	if err != nil {
		return fmt.Errorf("insert record %s: %w", rec.Report.ReportID, err)
	}
	return nil
}

// Count returns the number of stored records.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reports").Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// CountByStatus returns record counts keyed by verdict status.
func (s *SQLite) CountByStatus(ctx context.Context) (map[civicscreen.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM reports GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	out := make(map[civicscreen.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		out[civicscreen.Status(status)] = n
	}
	return out, rows.Err()
}

// Records returns the stored records for reportID in insertion order.
func (s *SQLite) Records(ctx context.Context, reportID string) ([]civicscreen.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, received_at, report_json, verdict_json, image_metadata_json
		FROM reports WHERE report_id = ? ORDER BY seq`, reportID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []civicscreen.Record
	for rows.Next() {
		var (
			rec                     civicscreen.Record
			reportJSON, verdictJSON string
			metaJSON                sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.ReceivedAt, &reportJSON, &verdictJSON, &metaJSON); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if err := json.Unmarshal([]byte(reportJSON), &rec.Report); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		if err := json.Unmarshal([]byte(verdictJSON), &rec.Verdict); err != nil {
			return nil, fmt.Errorf("decode verdict: %w", err)
		}
		if metaJSON.Valid {
			rec.ImageMetadata = &civicscreen.ImageMetadata{}
			if err := json.Unmarshal([]byte(metaJSON.String), rec.ImageMetadata); err != nil {
				return nil, fmt.Errorf("decode image metadata: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
