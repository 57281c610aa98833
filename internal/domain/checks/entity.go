package checks

// RiskLevel enum as reported by the Conformity template scanner
type RiskLevel string

const (
	RiskVeryHigh RiskLevel = "VERY_HIGH"
	RiskHigh     RiskLevel = "HIGH"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskLow      RiskLevel = "LOW"
	RiskPassed   RiskLevel = "PASSED"
	RiskExempted RiskLevel = "EXEMPTED"
)

// FailingLevels lists the severities that count towards failure totals,
// ordered highest first.
func FailingLevels() []RiskLevel {
	return []RiskLevel{RiskVeryHigh, RiskHigh, RiskMedium, RiskLow}
}

// Retained reports whether a risk level is kept in the report. Anything
// outside this set is discarded at the boundary.
func (l RiskLevel) Retained() bool {
	switch l {
	case RiskVeryHigh, RiskHigh, RiskMedium, RiskLow, RiskPassed, RiskExempted:
		return true
	default:
		return false
	}
}

// Status enum
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// ConvertStatus maps the scanner's upstream status onto report statuses.
// SUCCESS becomes passed and FAILURE becomes failed; anything else is
// passed through unchanged.
func ConvertStatus(status string) Status {
	switch status {
	case "SUCCESS":
		return StatusPassed
	case "FAILURE":
		return StatusFailed
	default:
		return Status(status)
	}
}

// Check is one evaluated rule from a template scan, already lifted out of
// the scanner's nested JSON:API payload.
type Check struct {
	ID        string
	RuleID    string
	RuleTitle string
	RiskLevel RiskLevel
	Message   string
	Status    string
}
