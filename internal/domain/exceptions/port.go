package exceptions

import (
	"context"
	"errors"
)

// ErrNotFound indicates a conditional update matched no record, e.g. an
// approval attempted before the request was submitted.
var ErrNotFound = errors.New("no matching exception request found")

// Repository port (interface for the exception store)
type Repository interface {
	// Put upserts the records as unapproved requests. Re-requesting an
	// existing key overwrites it, clearing any prior approval.
	Put(ctx context.Context, records []Record) error

	// Approve marks an existing request approved. Returns ErrNotFound
	// when no record exists for the composite key.
	Approve(ctx context.Context, accountID, filename, ruleID, approvedBy string) error

	// Delete removes a request by composite key. Deleting an absent key
	// is a success.
	Delete(ctx context.Context, accountID, filename, ruleID string) error

	// ListByAccount returns every record in the account's partition,
	// approved or not.
	ListByAccount(ctx context.Context, accountID string) ([]Record, error)
}
