package conformity

// Wire shapes for the Conformity JSON:API payloads. Only the fields the
// validator reads are declared; everything else passes by.

type scanPayload struct {
	Data scanData `json:"data"`
}

type scanData struct {
	Attributes scanAttributes `json:"attributes"`
}

type scanAttributes struct {
	Type     string `json:"type"`
	Contents string `json:"contents"`
	Account  string `json:"account,omitempty"`
}

type checkEnvelope struct {
	ID         string `json:"id"`
	Attributes struct {
		Status    string `json:"status"`
		RiskLevel string `json:"risk-level"`
		Message   string `json:"message"`
		RuleTitle string `json:"rule-title"`
	} `json:"attributes"`
	Relationships struct {
		Rule struct {
			Data struct {
				ID string `json:"id"`
			} `json:"data"`
		} `json:"rule"`
	} `json:"relationships"`
}

type errorEnvelope struct {
	Errors []struct {
		Detail string `json:"detail"`
	} `json:"errors"`
}

type accountEnvelope struct {
	ID         string `json:"id"`
	Attributes struct {
		AWSAccountID string `json:"awsaccount-id"`
	} `json:"attributes"`
}

type accountsResponse struct {
	Data []accountEnvelope `json:"data"`
}
