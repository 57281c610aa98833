package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/stackguard/template-validator/internal/application"
	"github.com/stackguard/template-validator/internal/domain/checks"
	"github.com/stackguard/template-validator/internal/domain/exceptions"
	"github.com/stackguard/template-validator/internal/domain/report"
)

// AccountResolver maps an AWS account number to a Conformity account id,
// "" meaning the account is not monitored.
type AccountResolver interface {
	Resolve(ctx context.Context, awsAccountID string) (string, error)
}

// Service implements the validate use-case: resolve the account, load the
// approved exceptions, scan every template and fold the checks into one
// severity-bucketed report.
type Service struct {
	Scanner    checks.Scanner
	Resolver   AccountResolver
	Exceptions exceptions.Repository
	Artifacts  report.ArchiveStore
	Clock      application.Clock
}

// Template is one submitted (filename, template body) pair.
type Template struct {
	Filename string
	Template string
}

// Command for one validation request. AccountProvided distinguishes an
// absent accountId from an empty one; both end up unmonitored but only
// absence gets the "not provided" finding.
type Command struct {
	AccountID       string
	AccountProvided bool
	Templates       []Template
}

// Result is the validate response body. Results carries the ordered
// bucket list pre-serialized, the way CI report collectors ingest it.
type Result struct {
	Failures report.FailureCounts `json:"failures"`
	Results  string               `json:"results"`
}

// Validate runs the whole request synchronously: templates are scanned
// one at a time in submission order, mutating one report builder so the
// bucket emission order reflects first-seen severities.
func (s *Service) Validate(ctx context.Context, cmd Command) (*Result, error) {
	rep := report.NewBuilder()

	ccAccount, err := s.extractAccount(ctx, cmd, rep)
	if err != nil {
		return nil, fmt.Errorf("resolving account: %w", err)
	}

	excs := exceptions.Set{}
	if cmd.AccountProvided {
		records, err := s.Exceptions.ListByAccount(ctx, cmd.AccountID)
		if err != nil {
			// A broken exception store must not fail validation, it
			// only means nothing gets suppressed this time.
			log.Printf("could not load approved exceptions for %s: %v", cmd.AccountID, err)
		} else {
			excs = exceptions.BuildSet(records)
		}
	}

	for _, tpl := range cmd.Templates {
		if err := s.scanTemplate(ctx, tpl, ccAccount, excs, rep); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", tpl.Filename, err)
		}
	}

	buckets, counts := rep.Finalize()
	raw, err := json.Marshal(buckets)
	if err != nil {
		return nil, err
	}

	res := &Result{Failures: counts, Results: string(raw)}
	s.archive(ctx, cmd, res)
	return res, nil
}

// extractAccount resolves the caller's account, recording a VERY_HIGH
// failure when the account is absent or unmonitored. Resolver failures
// abort the request.
func (s *Service) extractAccount(ctx context.Context, cmd Command, rep *report.Builder) (string, error) {
	if !cmd.AccountProvided {
		rep.Add(report.Finding{
			ID:        report.SyntheticCheckID,
			RuleTitle: "AWS account number validation",
			RiskLevel: checks.RiskVeryHigh,
			Message:   "AWS account number not provided as accountID in POST body to validate API",
			Status:    "failed",
		})
		return "", nil
	}

	id, err := s.Resolver.Resolve(ctx, cmd.AccountID)
	if err != nil {
		return "", err
	}
	if id == "" {
		rep.Add(report.Finding{
			ID:        report.SyntheticCheckID,
			RuleTitle: "AWS account number validation",
			RiskLevel: checks.RiskVeryHigh,
			Message:   fmt.Sprintf("AWS account %s is NOT being monitored by Cloud Conformity", cmd.AccountID),
			Status:    "failed",
		})
	}
	return id, nil
}

func (s *Service) scanTemplate(ctx context.Context, tpl Template, ccAccount string, excs exceptions.Set, rep *report.Builder) error {
	if ccAccount == "" {
		log.Printf("no valid, monitored AWS account id provided - using default Conformity rules")
	}

	res, err := s.Scanner.Scan(ctx, checks.ScanRequest{
		Filename: tpl.Filename,
		Template: tpl.Template,
		Account:  ccAccount,
	})
	if err != nil {
		return err
	}

	if res.StatusCode != http.StatusOK {
		rep.Add(report.Finding{
			ID:        report.SyntheticCheckID,
			RuleTitle: "CloudConformity Response Error",
			RiskLevel: checks.RiskVeryHigh,
			Message:   fmt.Sprintf("CloudConformity replied with %d error: %s", res.StatusCode, res.ErrorDetail),
			Filename:  tpl.Filename,
			Status:    "failed",
		})
	}

	// An unparseable body contributes nothing for this template, not
	// even the all-clear entry below.
	if !res.Parsed {
		return nil
	}

	for _, c := range res.Checks {
		status := c.Status
		if excs.Contains(tpl.Filename, c.RuleID) {
			log.Printf("rule %s passed as there is an approved exception", c.Message)
			status = string(checks.StatusSkipped)
		}
		rep.Add(report.Finding{
			ID:        c.ID,
			RuleTitle: c.RuleTitle,
			RiskLevel: c.RiskLevel,
			Message:   c.RuleID + ": " + c.Message,
			Filename:  tpl.Filename,
			Status:    status,
		})
	}

	// The emptiness check is against the cumulative report, so only the
	// first all-clean template of a fully clean request earns this entry.
	if rep.Empty() {
		log.Printf("no issues added to the list - file %s has PASSED", tpl.Filename)
		rep.Add(report.Finding{
			ID:        report.SyntheticCheckID,
			RuleTitle: "Template Scanning",
			RiskLevel: checks.RiskPassed,
			Message:   "template scan found ZERO issues",
			Filename:  tpl.Filename,
			Status:    "passed",
		})
	}
	return nil
}

// archive uploads the rendered report when an archive store is wired.
// Best effort only; the response never depends on it.
func (s *Service) archive(ctx context.Context, cmd Command, res *Result) {
	if s.Artifacts == nil {
		return
	}
	account := cmd.AccountID
	if account == "" {
		account = "unmonitored"
	}
	key := fmt.Sprintf("%s/%s-%s.json", account, s.Clock.Now().UTC().Format("20060102T150405"), uuid.New().String())

	body, err := json.Marshal(res)
	if err != nil {
		log.Printf("could not marshal report for archiving: %v", err)
		return
	}
	url, err := s.Artifacts.Put(ctx, key, body)
	if err != nil {
		log.Printf("could not archive validation report: %v", err)
		return
	}
	log.Printf("validation report archived at %s", url)
}
