package postgres

import (
	"context"
	"database/sql"

	domain "github.com/stackguard/template-validator/internal/domain/exceptions"
)

// ExceptionRepository is the PostgreSQL flavour of the exception store,
// selected by database.driver in the config. Same table shape as the
// MySQL repository.
type ExceptionRepository struct {
	db *sql.DB
}

func NewExceptionRepository(db *sql.DB) *ExceptionRepository {
	return &ExceptionRepository{db: db}
}

func (r *ExceptionRepository) Put(ctx context.Context, records []domain.Record) error {
	const q = `
INSERT INTO template_exceptions
(account_id, sort_key, filename, rule_id, request_reason, requested_by, approved, approved_by)
VALUES ($1,$2,$3,$4,$5,$6,'','')
ON CONFLICT (account_id, sort_key) DO UPDATE SET
 filename = EXCLUDED.filename, rule_id = EXCLUDED.rule_id,
 request_reason = EXCLUDED.request_reason, requested_by = EXCLUDED.requested_by,
 approved = '', approved_by = '';`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if _, err := tx.ExecContext(ctx, q,
			rec.AccountID, rec.SortKey(), rec.Filename, rec.RuleID,
			rec.RequestReason, rec.RequestedBy,
		); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (r *ExceptionRepository) Approve(ctx context.Context, accountID, filename, ruleID, approvedBy string) error {
	const q = `
UPDATE template_exceptions SET approved=$1, approved_by=$2
WHERE account_id=$3 AND sort_key=$4;`

	res, err := r.db.ExecContext(ctx, q, domain.ApprovedMarker, approvedBy, accountID, domain.SortKey(filename, ruleID))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ExceptionRepository) Delete(ctx context.Context, accountID, filename, ruleID string) error {
	const q = `DELETE FROM template_exceptions WHERE account_id=$1 AND sort_key=$2;`
	_, err := r.db.ExecContext(ctx, q, accountID, domain.SortKey(filename, ruleID))
	return err
}

func (r *ExceptionRepository) ListByAccount(ctx context.Context, accountID string) ([]domain.Record, error) {
	const q = `
SELECT account_id, filename, rule_id, request_reason, requested_by, approved, approved_by
FROM template_exceptions
WHERE account_id=$1;`

	rows, err := r.db.QueryContext(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		var rec domain.Record
		if err := rows.Scan(
			&rec.AccountID, &rec.Filename, &rec.RuleID,
			&rec.RequestReason, &rec.RequestedBy, &rec.Approved, &rec.ApprovedBy,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
