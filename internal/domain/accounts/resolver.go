package accounts

import (
	"context"
	"log"
	"sync"
)

// Mapping relates an AWS account number to its Conformity account id.
type Mapping struct {
	ID           string
	AWSAccountID string
}

// Source port (interface for the Conformity accounts endpoint)
type Source interface {
	FetchAccounts(ctx context.Context) ([]Mapping, error)
}

// Resolver answers AWS-account-to-Conformity-account lookups from a
// process-wide cache, refreshing from the source on first use and once
// more when a lookup misses against possibly stale data. A single mutex
// guards both lookups and refreshes; the cache slice is replaced
// wholesale, never patched.
type Resolver struct {
	mu     sync.Mutex
	source Source
	cache  []Mapping
}

func NewResolver(source Source) *Resolver {
	return &Resolver{source: source}
}

// Resolve returns the Conformity account id for the AWS account, or ""
// when the account is not monitored. A fetch failure is fatal to the
// caller's request.
func (r *Resolver) Resolve(ctx context.Context, awsAccountID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.cache) == 0 {
		if err := r.refreshLocked(ctx); err != nil {
			return "", err
		}
	}

	if id := r.searchLocked(awsAccountID); id != "" {
		return id, nil
	}

	// The cached list may predate the account. Refresh once and rescan.
	log.Printf("AWS account %s not in cached accounts list, refreshing", awsAccountID)
	if err := r.refreshLocked(ctx); err != nil {
		return "", err
	}
	return r.searchLocked(awsAccountID), nil
}

func (r *Resolver) searchLocked(awsAccountID string) string {
	for _, entry := range r.cache {
		if entry.AWSAccountID == awsAccountID {
			log.Printf("found Conformity account %s for AWS account %s", entry.ID, awsAccountID)
			return entry.ID
		}
	}
	return ""
}

func (r *Resolver) refreshLocked(ctx context.Context) error {
	list, err := r.source.FetchAccounts(ctx)
	if err != nil {
		return err
	}
	r.cache = list
	log.Printf("accounts cache refreshed, %d entries", len(list))
	return nil
}
