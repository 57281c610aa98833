package report

import (
	"log"

	"github.com/stackguard/template-validator/internal/domain/checks"
)

// Finding is one result to be folded into the report. Status is the
// upstream status string; it is normalized on Add.
type Finding struct {
	ID        string
	RuleTitle string
	RiskLevel checks.RiskLevel
	Message   string
	Filename  string
	Status    string
}

// Builder accumulates severity buckets across every template of one
// validation request. It is request-scoped and not safe for concurrent
// use; templates are folded in sequentially, and the order severities are
// first seen in decides the final emission order.
type Builder struct {
	buckets map[checks.RiskLevel]*Bucket
	order   []checks.RiskLevel
}

func NewBuilder() *Builder {
	return &Builder{buckets: make(map[checks.RiskLevel]*Bucket)}
}

// Add renders the finding into the bucket for its risk level, creating
// the bucket on first use. Findings at an unknown risk level are dropped.
func (b *Builder) Add(f Finding) {
	if !f.RiskLevel.Retained() {
		log.Printf("check %s ignored: risk level is %s", f.ID, f.RiskLevel)
		return
	}

	bucket, ok := b.buckets[f.RiskLevel]
	if !ok {
		bucket = &Bucket{
			ID:          BucketID,
			Description: BucketDescription,
			Name:        f.RiskLevel,
		}
		b.buckets[f.RiskLevel] = bucket
		b.order = append(b.order, f.RiskLevel)
	}

	bucket.Elements = append(bucket.Elements, Element{
		ID:   f.ID,
		Name: f.RuleTitle,
		Steps: []Step{{
			Result:  StepResult{Status: checks.ConvertStatus(f.Status)},
			Name:    f.Message,
			Keyword: f.Filename + ": ",
		}},
	})
}

// Empty reports whether no bucket has been created yet, across every
// template folded in so far.
func (b *Builder) Empty() bool {
	return len(b.order) == 0
}

// Finalize returns the buckets ordered from the most recently first-seen
// severity down, plus the failed-check counts for the four failing
// severities. Passed and skipped elements never count as failures.
func (b *Builder) Finalize() ([]*Bucket, FailureCounts) {
	results := make([]*Bucket, 0, len(b.order))
	var counts FailureCounts

	for i := len(b.order) - 1; i >= 0; i-- {
		results = append(results, b.buckets[b.order[i]])
	}

	for _, level := range checks.FailingLevels() {
		bucket, ok := b.buckets[level]
		if !ok {
			continue
		}
		failed := 0
		for _, el := range bucket.Elements {
			if el.Steps[0].Result.Status == checks.StatusFailed {
				failed++
			}
		}
		switch level {
		case checks.RiskVeryHigh:
			counts.VeryHigh = failed
		case checks.RiskHigh:
			counts.High = failed
		case checks.RiskMedium:
			counts.Medium = failed
		case checks.RiskLow:
			counts.Low = failed
		}
	}

	return results, counts
}
