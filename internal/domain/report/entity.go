package report

import "github.com/stackguard/template-validator/internal/domain/checks"

// Static metadata stamped on every severity bucket, plus the identifier
// used for findings the validator makes up itself (account validation,
// scanner errors, the all-clear entry).
const (
	BucketID          = "cloud-conformity-rules"
	BucketDescription = "Results from scanning templates through Cloud Conformity"
	SyntheticCheckID  = "cloud-conformity-tests"
)

// StepResult holds the final status of one rendered check.
type StepResult struct {
	Status checks.Status `json:"status"`
}

// Step is the single step of a rendered check. Name carries the message,
// Keyword the originating filename.
type Step struct {
	Result  StepResult `json:"result"`
	Name    string     `json:"name"`
	Keyword string     `json:"keyword"`
}

// Element is one rendered check inside a severity bucket, shaped so CI
// report parsers (Cucumber JSON) accept it.
type Element struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Steps []Step `json:"steps"`
}

// Bucket groups all rendered checks of one risk level.
type Bucket struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Name        checks.RiskLevel `json:"name"`
	Elements    []Element       `json:"elements"`
}

// FailureCounts always carries all four failing severities, zero-valued
// when no checks of that level occurred.
type FailureCounts struct {
	VeryHigh int `json:"VERY_HIGH"`
	High     int `json:"HIGH"`
	Medium   int `json:"MEDIUM"`
	Low      int `json:"LOW"`
}
