package exceptions

import (
	"context"
	"errors"
	"fmt"
	"log"

	domain "github.com/stackguard/template-validator/internal/domain/exceptions"
)

// ErrMalformed indicates a request entry is missing a required field. The
// whole batch is rejected before anything is written.
var ErrMalformed = errors.New("Malformed request payload, missing elements")

// Service implements the exception approval workflow use-cases.
type Service struct {
	Repo domain.Repository
}

func NewService(repo domain.Repository) *Service {
	return &Service{Repo: repo}
}

// SubmitRequest is one requested suppression of a rule for a file.
type SubmitRequest struct {
	AccountID     string `json:"awsAccountId"`
	Filename      string `json:"filename"`
	RuleID        string `json:"ruleId"`
	RequestReason string `json:"requestReason"`
	RequestedBy   string `json:"requestedBy"`
}

// ApproveRequest approves a previously submitted request.
type ApproveRequest struct {
	AccountID  string `json:"awsAccountId"`
	Filename   string `json:"filename"`
	RuleID     string `json:"ruleId"`
	ApprovedBy string `json:"approvedBy"`
}

// DeleteRequest removes a request, approved or not.
type DeleteRequest struct {
	AccountID string `json:"awsAccountId"`
	Filename  string `json:"filename"`
	RuleID    string `json:"ruleId"`
}

// Submit upserts all entries as unapproved requests. One malformed entry
// rejects the batch.
func (s *Service) Submit(ctx context.Context, reqs []SubmitRequest) error {
	records := make([]domain.Record, 0, len(reqs))
	for _, req := range reqs {
		if err := requireFields(
			field{"awsAccountId", req.AccountID},
			field{"filename", req.Filename},
			field{"ruleId", req.RuleID},
			field{"requestReason", req.RequestReason},
			field{"requestedBy", req.RequestedBy},
		); err != nil {
			return err
		}
		records = append(records, domain.Record{
			AccountID:     req.AccountID,
			Filename:      req.Filename,
			RuleID:        req.RuleID,
			RequestReason: req.RequestReason,
			RequestedBy:   req.RequestedBy,
		})
	}

	if err := s.Repo.Put(ctx, records); err != nil {
		return err
	}
	log.Printf("successfully added %d exception requests", len(records))
	return nil
}

// Approve marks an existing request approved. domain.ErrNotFound is the
// expected outcome for a premature approval.
func (s *Service) Approve(ctx context.Context, req ApproveRequest) error {
	if err := requireFields(
		field{"awsAccountId", req.AccountID},
		field{"filename", req.Filename},
		field{"ruleId", req.RuleID},
		field{"approvedBy", req.ApprovedBy},
	); err != nil {
		return err
	}

	if err := s.Repo.Approve(ctx, req.AccountID, req.Filename, req.RuleID, req.ApprovedBy); err != nil {
		return err
	}
	log.Printf("successfully approved request for %s sortKey: %s", req.AccountID, domain.SortKey(req.Filename, req.RuleID))
	return nil
}

// Delete removes a request by key. Deleting an absent key succeeds.
func (s *Service) Delete(ctx context.Context, req DeleteRequest) error {
	if err := requireFields(
		field{"awsAccountId", req.AccountID},
		field{"filename", req.Filename},
		field{"ruleId", req.RuleID},
	); err != nil {
		return err
	}

	if err := s.Repo.Delete(ctx, req.AccountID, req.Filename, req.RuleID); err != nil {
		return err
	}
	log.Printf("successfully removed exception for %s sortKey: %s", req.AccountID, domain.SortKey(req.Filename, req.RuleID))
	return nil
}

type field struct {
	name  string
	value string
}

func requireFields(fields ...field) error {
	for _, f := range fields {
		if f.value == "" {
			return fmt.Errorf("%w: %q", ErrMalformed, f.name)
		}
	}
	return nil
}
