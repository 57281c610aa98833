package exceptions

// ApprovedMarker is the exact value the approved field must hold for a
// record to suppress findings. Anything else, including an absent value,
// leaves the record pending.
const ApprovedMarker = "true"

// Record is one exception request for a (account, filename, ruleId)
// triple. A second request for the same triple overwrites the first.
type Record struct {
	AccountID     string `json:"awsAccountId"`
	Filename      string `json:"filename"`
	RuleID        string `json:"ruleId"`
	RequestReason string `json:"requestReason,omitempty"`
	RequestedBy   string `json:"requestedBy,omitempty"`
	Approved      string `json:"approved,omitempty"`
	ApprovedBy    string `json:"approvedBy,omitempty"`
}

// SortKey is the record's store key within its account partition.
func (r Record) SortKey() string {
	return SortKey(r.Filename, r.RuleID)
}

func SortKey(filename, ruleID string) string {
	return filename + "#" + ruleID
}

// Set maps filename#ruleId to the approved record suppressing it. Built
// fresh per validation request and never mutated afterwards.
type Set map[string]Record

// Contains reports whether the given file/rule pair has an approved
// exception.
func (s Set) Contains(filename, ruleID string) bool {
	_, ok := s[SortKey(filename, ruleID)]
	return ok
}

// BuildSet filters records down to the approved ones, keyed by sort key.
// Records whose approved field is anything but the exact marker are
// dropped without complaint.
func BuildSet(records []Record) Set {
	set := make(Set)
	for _, r := range records {
		if r.Approved == ApprovedMarker {
			set[r.SortKey()] = r
		}
	}
	return set
}
