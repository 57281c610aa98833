package conformity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/stackguard/template-validator/internal/domain/accounts"
	"github.com/stackguard/template-validator/internal/domain/checks"
	"github.com/stackguard/template-validator/internal/infra/secrets"
)

const templateType = "cloudformation-template"

// Client talks to the Conformity accounts and template-scanner endpoints.
// The API key is pulled from the secrets provider on first use and cached
// for the process lifetime.
type Client struct {
	baseURL string
	http    *http.Client
	secrets secrets.Provider

	// OnUpstreamError is called once per non-200 upstream reply, so the
	// caller can feed its metrics. Optional.
	OnUpstreamError func()

	mu     sync.Mutex
	apiKey string
}

// New builds a client for the given API base URL, e.g.
// https://ap-southeast-2-api.cloudconformity.com/v1.
func New(baseURL string, provider secrets.Provider) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		secrets: provider,
	}
}

func (c *Client) noteUpstreamError() {
	if c.OnUpstreamError != nil {
		c.OnUpstreamError()
	}
}

func (c *Client) authorization(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.apiKey == "" {
		log.Printf("API key empty, getting new value")
		key, err := c.secrets.APIKey(ctx)
		if err != nil {
			return "", fmt.Errorf("fetching Conformity API key: %w", err)
		}
		c.apiKey = key
	}
	return "ApiKey " + c.apiKey, nil
}

func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	auth, err := c.authorization(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/vnd.api+json")
	req.Header.Set("Authorization", auth)
	return req, nil
}

// FetchAccounts implements accounts.Source. Any non-200 reply is an
// error; the caller's request cannot proceed without the account list.
func (c *Client) FetchAccounts(ctx context.Context) ([]accounts.Mapping, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.baseURL+"/accounts", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling accounts endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.noteUpstreamError()
		return nil, fmt.Errorf("accounts endpoint replied with status %d", resp.StatusCode)
	}

	var parsed accountsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding accounts response: %w", err)
	}

	list := make([]accounts.Mapping, 0, len(parsed.Data))
	for _, entry := range parsed.Data {
		list = append(list, accounts.Mapping{
			ID:           entry.ID,
			AWSAccountID: entry.Attributes.AWSAccountID,
		})
	}
	return list, nil
}

// Scan implements checks.Scanner. Transport failures are errors; a non-200
// reply is returned as a result carrying the first error detail, so the
// caller can record it and move on.
func (c *Client) Scan(ctx context.Context, scan checks.ScanRequest) (*checks.ScanResult, error) {
	attrs := scanAttributes{Type: templateType, Contents: scan.Template, Account: scan.Account}
	payload, err := json.Marshal(scanPayload{Data: scanData{Attributes: attrs}})
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+"/template-scanner/scan", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling template scanner: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading scanner response: %w", err)
	}

	result := &checks.ScanResult{StatusCode: resp.StatusCode}
	if resp.StatusCode != http.StatusOK {
		c.noteUpstreamError()
		var errs errorEnvelope
		if err := json.Unmarshal(body, &errs); err == nil && len(errs.Errors) > 0 {
			result.ErrorDetail = errs.Errors[0].Detail
		}
		log.Printf("scanner error for %s: status=%d detail=%q", scan.Filename, resp.StatusCode, result.ErrorDetail)
	}

	result.Checks, result.Parsed = parseChecks(body, scan.Filename)
	return result, nil
}

// parseChecks lifts the checks out of a scanner response body. A body
// without a well-formed data array yields (nil, false); individual checks
// missing their rule id or risk level are skipped.
func parseChecks(body []byte, filename string) ([]checks.Check, bool) {
	var probe struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &probe); err != nil || probe.Data == nil {
		log.Printf("could not parse scanner response for %s, skipping", filename)
		return nil, false
	}

	var envelopes []checkEnvelope
	if err := json.Unmarshal(probe.Data, &envelopes); err != nil {
		log.Printf("could not parse scanner checks for %s: %v", filename, err)
		return nil, false
	}

	out := make([]checks.Check, 0, len(envelopes))
	for _, env := range envelopes {
		if env.Relationships.Rule.Data.ID == "" || env.Attributes.RiskLevel == "" {
			log.Printf("skipping malformed check %q in %s", env.ID, filename)
			continue
		}
		out = append(out, checks.Check{
			ID:        env.ID,
			RuleID:    env.Relationships.Rule.Data.ID,
			RuleTitle: env.Attributes.RuleTitle,
			RiskLevel: checks.RiskLevel(env.Attributes.RiskLevel),
			Message:   env.Attributes.Message,
			Status:    env.Attributes.Status,
		})
	}
	return out, true
}
