package mysql

import (
	"context"
	"database/sql"

	domain "github.com/stackguard/template-validator/internal/domain/exceptions"
)

// ExceptionRepository persists exception requests keyed by
// (account_id, sort_key) where sort_key is filename#ruleId.
//
// Expected schema:
//
//	CREATE TABLE template_exceptions (
//	    account_id     VARCHAR(32)  NOT NULL,
//	    sort_key       VARCHAR(512) NOT NULL,
//	    filename       VARCHAR(255) NOT NULL,
//	    rule_id        VARCHAR(64)  NOT NULL,
//	    request_reason TEXT         NOT NULL,
//	    requested_by   VARCHAR(255) NOT NULL,
//	    approved       VARCHAR(8)   NOT NULL DEFAULT '',
//	    approved_by    VARCHAR(255) NOT NULL DEFAULT '',
//	    PRIMARY KEY (account_id, sort_key)
//	);
type ExceptionRepository struct {
	db *sql.DB
}

func NewExceptionRepository(db *sql.DB) *ExceptionRepository {
	return &ExceptionRepository{db: db}
}

// Put upserts each record as an unapproved request. A re-request for an
// existing key replaces the whole row, dropping any earlier approval.
func (r *ExceptionRepository) Put(ctx context.Context, records []domain.Record) error {
	const q = `
INSERT INTO template_exceptions
(account_id, sort_key, filename, rule_id, request_reason, requested_by, approved, approved_by)
VALUES (?,?,?,?,?,?,'','')
ON DUPLICATE KEY UPDATE
 filename=VALUES(filename), rule_id=VALUES(rule_id),
 request_reason=VALUES(request_reason), requested_by=VALUES(requested_by),
 approved='', approved_by='';
`
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

// Approve conditionally updates an existing request. The existence check
// below needs matched-rows semantics (clientFoundRows in the DSN):
// with the driver default an identical re-approval changes nothing,
// RowsAffected reports 0 and an existing record would look absent.
func (r *ExceptionRepository) Approve(ctx context.Context, accountID, filename, ruleID, approvedBy string) error {
	const q = `
UPDATE template_exceptions SET approved=?, approved_by=?
WHERE account_id=? AND sort_key=?;
`
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

// Delete removes a request by composite key. An absent key is not an
// error.
func (r *ExceptionRepository) Delete(ctx context.Context, accountID, filename, ruleID string) error {
	const q = `DELETE FROM template_exceptions WHERE account_id=? AND sort_key=?;`
	_, err := r.db.ExecContext(ctx, q, accountID, domain.SortKey(filename, ruleID))
	return err
}

// ListByAccount returns every record in the account's partition.
func (r *ExceptionRepository) ListByAccount(ctx context.Context, accountID string) ([]domain.Record, error) {
	const q = `
SELECT account_id, filename, rule_id, request_reason, requested_by, approved, approved_by
FROM template_exceptions
WHERE account_id=?;
`
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
