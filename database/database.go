package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/apex/log"
	_ "github.com/lib/pq"

	"github.com/secnex/crm-gateway/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS attachment_uploads (
	id         BIGSERIAL PRIMARY KEY,
	case_id    TEXT        NOT NULL,
	subject    TEXT        NOT NULL,
	filename   TEXT        NOT NULL,
	digest     TEXT        NOT NULL,
	status     TEXT        NOT NULL,
	error      TEXT        NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
)`

func Connect(dbURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create attachment_uploads: %w", err)
	}
	return nil
}

// Ledger appends attachment batch outcomes, one row per file, so partially
// uploaded batches can be reconciled against the CRM.
type Ledger struct {
	db *sql.DB
}

func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// RecordAttachments writes all records of one batch in a single transaction.
func (l *Ledger) RecordAttachments(ctx context.Context, records []models.AttachmentRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range records {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO attachment_uploads (case_id, subject, filename, digest, status, error, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, r.CaseID, r.Subject, r.Filename, r.Digest, r.Status, r.Error, r.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to record %s: %w", r.Filename, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"case":  records[0].CaseID,
		"files": len(records),
	}).Debug("attachment batch recorded")
	return nil
}
