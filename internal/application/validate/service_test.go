package validate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackguard/template-validator/internal/domain/checks"
	"github.com/stackguard/template-validator/internal/domain/exceptions"
	"github.com/stackguard/template-validator/internal/domain/report"
)

type fakeScanner struct {
	result *checks.ScanResult
	err    error
	calls  []checks.ScanRequest
}

func (f *fakeScanner) Scan(ctx context.Context, req checks.ScanRequest) (*checks.ScanResult, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.result
	return &cp, nil
}

type fakeResolver struct {
	id  string
	err error
}

func (f *fakeResolver) Resolve(ctx context.Context, awsAccountID string) (string, error) {
	return f.id, f.err
}

type fakeExceptionRepo struct {
	records []exceptions.Record
	listErr error
}

func (f *fakeExceptionRepo) Put(ctx context.Context, records []exceptions.Record) error { return nil }
func (f *fakeExceptionRepo) Approve(ctx context.Context, accountID, filename, ruleID, approvedBy string) error {
	return nil
}
func (f *fakeExceptionRepo) Delete(ctx context.Context, accountID, filename, ruleID string) error {
	return nil
}
func (f *fakeExceptionRepo) ListByAccount(ctx context.Context, accountID string) ([]exceptions.Record, error) {
	return f.records, f.listErr
}

type fakeArchive struct {
	key  string
	body []byte
}

func (f *fakeArchive) Put(ctx context.Context, key string, body []byte) (string, error) {
	f.key = key
	f.body = body
	return "https://artifacts.local/" + key, nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// fixtureChecks builds the mixed scan outcome used across tests:
// 11 VERY_HIGH, 2 HIGH, 2 MEDIUM and 6 LOW failures plus 3 passing checks.
func fixtureChecks() []checks.Check {
	var out []checks.Check
	add := func(n int, level checks.RiskLevel, status string) {
		for i := 0; i < n; i++ {
			out = append(out, checks.Check{
				ID:        fmt.Sprintf("ccc:acct:%s-%03d", level, i),
				RuleID:    fmt.Sprintf("%s-%03d", level, i),
				RuleTitle: "Some rule title",
				RiskLevel: level,
				Message:   "a resource violates the rule",
				Status:    status,
			})
		}
	}
	add(11, checks.RiskVeryHigh, "FAILURE")
	add(2, checks.RiskHigh, "FAILURE")
	add(2, checks.RiskMedium, "FAILURE")
	add(6, checks.RiskLow, "FAILURE")
	add(3, checks.RiskLow, "SUCCESS")
	return out
}

func newService(sc *fakeScanner, repo *fakeExceptionRepo) *Service {
	return &Service{
		Scanner:    sc,
		Resolver:   &fakeResolver{id: "Eas6c59rr"},
		Exceptions: repo,
	}
}

func oneTemplate() Command {
	return Command{
		AccountID:       "010120201234",
		AccountProvided: true,
		Templates:       []Template{{Filename: "stack.yaml", Template: "Resources: {}"}},
	}
}

func TestValidate_CountsBySeverity(t *testing.T) {
	sc := &fakeScanner{result: &checks.ScanResult{StatusCode: 200, Checks: fixtureChecks(), Parsed: true}}
	svc := newService(sc, &fakeExceptionRepo{})

	res, err := svc.Validate(context.Background(), oneTemplate())
	require.NoError(t, err)

	assert.Equal(t, report.FailureCounts{VeryHigh: 11, High: 2, Medium: 2, Low: 6}, res.Failures)

	var buckets []report.Bucket
	require.NoError(t, json.Unmarshal([]byte(res.Results), &buckets))
	require.Len(t, buckets, 4)
	for _, b := range buckets {
		assert.Equal(t, report.BucketID, b.ID)
		assert.Equal(t, report.BucketDescription, b.Description)
	}
	// Severities were first seen highest-first, so they come back reversed.
	assert.Equal(t, checks.RiskLow, buckets[0].Name)
	assert.Equal(t, checks.RiskVeryHigh, buckets[3].Name)
	// The passing checks still appear in the LOW bucket.
	assert.Len(t, buckets[0].Elements, 9)
}

func TestValidate_MessageAndKeywordShape(t *testing.T) {
	sc := &fakeScanner{result: &checks.ScanResult{
		StatusCode: 200,
		Checks: []checks.Check{{
			ID: "ccc:1", RuleID: "S3-014", RuleTitle: "Bucket encryption",
			RiskLevel: checks.RiskHigh, Message: "bucket is unencrypted", Status: "FAILURE",
		}},
		Parsed: true,
	}}
	svc := newService(sc, &fakeExceptionRepo{})

	res, err := svc.Validate(context.Background(), oneTemplate())
	require.NoError(t, err)

	var buckets []report.Bucket
	require.NoError(t, json.Unmarshal([]byte(res.Results), &buckets))
	require.Len(t, buckets, 1)
	step := buckets[0].Elements[0].Steps[0]
	assert.Equal(t, "S3-014: bucket is unencrypted", step.Name)
	assert.Equal(t, "stack.yaml: ", step.Keyword)
	assert.Equal(t, checks.StatusFailed, step.Result.Status)
}

func TestValidate_TwoTemplatesAccumulate(t *testing.T) {
	sc := &fakeScanner{result: &checks.ScanResult{StatusCode: 200, Checks: fixtureChecks(), Parsed: true}}
	svc := newService(sc, &fakeExceptionRepo{})

	cmd := oneTemplate()
	cmd.Templates = append(cmd.Templates, Template{Filename: "network.yaml", Template: "Resources: {}"})

	res, err := svc.Validate(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, report.FailureCounts{VeryHigh: 22, High: 4, Medium: 4, Low: 12}, res.Failures)
	assert.Len(t, sc.calls, 2)
}

func TestValidate_AccountNotProvided(t *testing.T) {
	sc := &fakeScanner{result: &checks.ScanResult{StatusCode: 200, Checks: fixtureChecks(), Parsed: true}}
	svc := newService(sc, &fakeExceptionRepo{})

	res, err := svc.Validate(context.Background(), Command{
		Templates: []Template{{Filename: "stack.yaml", Template: "Resources: {}"}},
	})
	require.NoError(t, err)

	// The missing account adds one more VERY_HIGH failure on top of the scan.
	assert.Equal(t, 12, res.Failures.VeryHigh)
	assert.Contains(t, res.Results, "AWS account number not provided as accountID in POST body to validate API")
	// Without an account the scanner runs against the default ruleset.
	assert.Equal(t, "", sc.calls[0].Account)
}

func TestValidate_UnmonitoredAccount(t *testing.T) {
	sc := &fakeScanner{result: &checks.ScanResult{StatusCode: 200, Checks: fixtureChecks(), Parsed: true}}
	svc := newService(sc, &fakeExceptionRepo{})
	svc.Resolver = &fakeResolver{id: ""}

	res, err := svc.Validate(context.Background(), oneTemplate())
	require.NoError(t, err)
	assert.Equal(t, 12, res.Failures.VeryHigh)
	assert.Contains(t, res.Results, "AWS account 010120201234 is NOT being monitored by Cloud Conformity")
}

func TestValidate_ResolverFailureIsFatal(t *testing.T) {
	sc := &fakeScanner{result: &checks.ScanResult{StatusCode: 200, Parsed: true}}
	svc := newService(sc, &fakeExceptionRepo{})
	svc.Resolver = &fakeResolver{err: errors.New("accounts endpoint down")}

	_, err := svc.Validate(context.Background(), oneTemplate())
	assert.Error(t, err)
	assert.Empty(t, sc.calls)
}

func TestValidate_ApprovedExceptionSuppresses(t *testing.T) {
	sc := &fakeScanner{result: &checks.ScanResult{
		StatusCode: 200,
		Checks: []checks.Check{
			{ID: "ccc:1", RuleID: "S3-014", RuleTitle: "Bucket encryption", RiskLevel: checks.RiskHigh, Message: "unencrypted", Status: "FAILURE"},
			{ID: "ccc:2", RuleID: "S3-001", RuleTitle: "Bucket ACL", RiskLevel: checks.RiskHigh, Message: "public acl", Status: "FAILURE"},
		},
		Parsed: true,
	}}
	repo := &fakeExceptionRepo{records: []exceptions.Record{
		{AccountID: "010120201234", Filename: "stack.yaml", RuleID: "S3-014", Approved: exceptions.ApprovedMarker},
		{AccountID: "010120201234", Filename: "stack.yaml", RuleID: "S3-001", Approved: "false"},
	}}
	svc := newService(sc, repo)

	res, err := svc.Validate(context.Background(), oneTemplate())
	require.NoError(t, err)

	// The approved exception drops the failure from the counts but keeps
	// the check visible as skipped; the unapproved request changes nothing.
	assert.Equal(t, 1, res.Failures.High)

	var buckets []report.Bucket
	require.NoError(t, json.Unmarshal([]byte(res.Results), &buckets))
	require.Len(t, buckets, 1)
	require.Len(t, buckets[0].Elements, 2)
	assert.Equal(t, checks.StatusSkipped, buckets[0].Elements[0].Steps[0].Result.Status)
	assert.Equal(t, checks.StatusFailed, buckets[0].Elements[1].Steps[0].Result.Status)
}

func TestValidate_ExceptionStoreFailureIsNonFatal(t *testing.T) {
	sc := &fakeScanner{result: &checks.ScanResult{StatusCode: 200, Checks: fixtureChecks(), Parsed: true}}
	svc := newService(sc, &fakeExceptionRepo{listErr: errors.New("store unavailable")})

	res, err := svc.Validate(context.Background(), oneTemplate())
	require.NoError(t, err)
	// Nothing suppressed, everything still counted.
	assert.Equal(t, 11, res.Failures.VeryHigh)
}

func TestValidate_ScannerErrorStatus(t *testing.T) {
	sc := &fakeScanner{result: &checks.ScanResult{
		StatusCode:  424,
		Parsed:      false,
		ErrorDetail: "profile could not be applied",
	}}
	svc := newService(sc, &fakeExceptionRepo{})

	res, err := svc.Validate(context.Background(), oneTemplate())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failures.VeryHigh)
	assert.Contains(t, res.Results, "CloudConformity replied with 424 error: profile could not be applied")
}

func TestValidate_ScanTransportFailureIsFatal(t *testing.T) {
	sc := &fakeScanner{err: errors.New("connection refused")}
	svc := newService(sc, &fakeExceptionRepo{})

	_, err := svc.Validate(context.Background(), oneTemplate())
	assert.Error(t, err)
}

func TestValidate_UnparseableBodyContributesNothing(t *testing.T) {
	sc := &fakeScanner{result: &checks.ScanResult{StatusCode: 200, Parsed: false}}
	svc := newService(sc, &fakeExceptionRepo{})

	res, err := svc.Validate(context.Background(), oneTemplate())
	require.NoError(t, err)

	// No checks, no all-clear entry either.
	assert.Equal(t, report.FailureCounts{}, res.Failures)
	assert.Equal(t, "[]", res.Results)
}

func TestValidate_CleanTemplateGetsPassedEntry(t *testing.T) {
	sc := &fakeScanner{result: &checks.ScanResult{StatusCode: 200, Checks: nil, Parsed: true}}
	svc := newService(sc, &fakeExceptionRepo{})

	res, err := svc.Validate(context.Background(), oneTemplate())
	require.NoError(t, err)

	var buckets []report.Bucket
	require.NoError(t, json.Unmarshal([]byte(res.Results), &buckets))
	require.Len(t, buckets, 1)
	assert.Equal(t, checks.RiskPassed, buckets[0].Name)
	require.Len(t, buckets[0].Elements, 1)
	assert.Equal(t, "template scan found ZERO issues", buckets[0].Elements[0].Steps[0].Name)
	assert.Equal(t, report.FailureCounts{}, res.Failures)
}

// The all-clear check runs against the cumulative report, so only the
// first clean template of a fully clean request earns a PASSED entry.
func TestValidate_PassedEntryIsCumulative(t *testing.T) {
	sc := &fakeScanner{result: &checks.ScanResult{StatusCode: 200, Checks: nil, Parsed: true}}
	svc := newService(sc, &fakeExceptionRepo{})

	cmd := oneTemplate()
	cmd.Templates = append(cmd.Templates, Template{Filename: "network.yaml", Template: "Resources: {}"})

	res, err := svc.Validate(context.Background(), cmd)
	require.NoError(t, err)

	var buckets []report.Bucket
	require.NoError(t, json.Unmarshal([]byte(res.Results), &buckets))
	require.Len(t, buckets, 1)
	assert.Len(t, buckets[0].Elements, 1)
	assert.Equal(t, "stack.yaml: ", buckets[0].Elements[0].Steps[0].Keyword)
}

func TestValidate_ArchivesReport(t *testing.T) {
	sc := &fakeScanner{result: &checks.ScanResult{StatusCode: 200, Checks: nil, Parsed: true}}
	store := &fakeArchive{}
	svc := newService(sc, &fakeExceptionRepo{})
	svc.Artifacts = store
	svc.Clock = fixedClock{t: time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)}

	res, err := svc.Validate(context.Background(), oneTemplate())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(store.key, "010120201234/20250314T093000-"), store.key)
	assert.True(t, strings.HasSuffix(store.key, ".json"), store.key)

	var archived Result
	require.NoError(t, json.Unmarshal(store.body, &archived))
	assert.Equal(t, res.Results, archived.Results)
}
