package checks

import "context"

// ScanRequest carries one template to the external scanner.
type ScanRequest struct {
	Filename string
	Template string
	// Account is the Conformity account id. Empty means the scanner
	// applies its default ruleset.
	Account string
}

// ScanResult is the boundary-validated outcome of one scan call.
type ScanResult struct {
	StatusCode int
	// Checks holds the checks lifted from the response body. Checks that
	// fail boundary validation are dropped by the client, not surfaced.
	Checks []Check
	// Parsed is true when the body carried a well-formed data array. An
	// unparseable body contributes no checks and no passed entry.
	Parsed bool
	// ErrorDetail is the first error detail when StatusCode != 200.
	ErrorDetail string
}

// Scanner port (interface for the external template scanner)
type Scanner interface {
	Scan(ctx context.Context, req ScanRequest) (*ScanResult, error)
}
