package conformity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackguard/template-validator/internal/domain/checks"
)

type staticSecrets struct{ key string }

func (s staticSecrets) APIKey(ctx context.Context) (string, error) { return s.key, nil }

func TestScan_ParsesChecks(t *testing.T) {
	var gotAuth, gotContentType string
	var gotPayload scanPayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/template-scanner/scan", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))

		w.Write([]byte(`{"data":[
			{"id":"ccc:acct:S3-014","attributes":{"status":"FAILURE","risk-level":"HIGH","message":"bucket is unencrypted","rule-title":"Bucket encryption"},"relationships":{"rule":{"data":{"id":"S3-014"}}}},
			{"id":"ccc:acct:S3-001","attributes":{"status":"SUCCESS","risk-level":"LOW","message":"acl ok","rule-title":"Bucket ACL"},"relationships":{"rule":{"data":{"id":"S3-001"}}}}
		]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, staticSecrets{key: "sekret"})
	res, err := c.Scan(context.Background(), checks.ScanRequest{
		Filename: "stack.yaml",
		Template: "Resources: {}",
		Account:  "Eas6c59rr",
	})
	require.NoError(t, err)

	assert.Equal(t, "ApiKey sekret", gotAuth)
	assert.Equal(t, "application/vnd.api+json", gotContentType)
	assert.Equal(t, "cloudformation-template", gotPayload.Data.Attributes.Type)
	assert.Equal(t, "Resources: {}", gotPayload.Data.Attributes.Contents)
	assert.Equal(t, "Eas6c59rr", gotPayload.Data.Attributes.Account)

	assert.Equal(t, 200, res.StatusCode)
	assert.True(t, res.Parsed)
	require.Len(t, res.Checks, 2)
	assert.Equal(t, checks.Check{
		ID: "ccc:acct:S3-014", RuleID: "S3-014", RuleTitle: "Bucket encryption",
		RiskLevel: checks.RiskHigh, Message: "bucket is unencrypted", Status: "FAILURE",
	}, res.Checks[0])
}

func TestScan_SkipsMalformedChecks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[
			{"id":"no-rule","attributes":{"status":"FAILURE","risk-level":"HIGH","message":"m","rule-title":"t"},"relationships":{"rule":{"data":{}}}},
			{"id":"no-level","attributes":{"status":"FAILURE","message":"m","rule-title":"t"},"relationships":{"rule":{"data":{"id":"S3-001"}}}},
			{"id":"ok","attributes":{"status":"FAILURE","risk-level":"LOW","message":"m","rule-title":"t"},"relationships":{"rule":{"data":{"id":"S3-002"}}}}
		]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, staticSecrets{key: "sekret"})
	res, err := c.Scan(context.Background(), checks.ScanRequest{Filename: "stack.yaml"})
	require.NoError(t, err)
	assert.True(t, res.Parsed)
	require.Len(t, res.Checks, 1)
	assert.Equal(t, "ok", res.Checks[0].ID)
}

func TestScan_ErrorReplyCarriesDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"errors":[{"detail":"template could not be parsed"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, staticSecrets{key: "sekret"})
	upstreamErrors := 0
	c.OnUpstreamError = func() { upstreamErrors++ }

	res, err := c.Scan(context.Background(), checks.ScanRequest{Filename: "stack.yaml"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	assert.Equal(t, "template could not be parsed", res.ErrorDetail)
	assert.Equal(t, 1, upstreamErrors)
	// The error body has no data array, so nothing parses out of it.
	assert.False(t, res.Parsed)
	assert.Empty(t, res.Checks)
}

func TestScan_BodyWithoutDataArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"meta":{"note":"nothing here"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, staticSecrets{key: "sekret"})
	res, err := c.Scan(context.Background(), checks.ScanRequest{Filename: "stack.yaml"})
	require.NoError(t, err)
	assert.Equal(t, 200, res.StatusCode)
	assert.False(t, res.Parsed)
}

func TestScan_APIKeyCachedAcrossCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	calls := 0
	provider := secretsFunc(func(ctx context.Context) (string, error) {
		calls++
		return "sekret", nil
	})

	c := New(srv.URL, provider)
	_, err := c.Scan(context.Background(), checks.ScanRequest{Filename: "a.yaml"})
	require.NoError(t, err)
	_, err = c.Scan(context.Background(), checks.ScanRequest{Filename: "b.yaml"})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

type secretsFunc func(ctx context.Context) (string, error)

func (f secretsFunc) APIKey(ctx context.Context) (string, error) { return f(ctx) }

func TestFetchAccounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/accounts", r.URL.Path)
		require.Equal(t, http.MethodGet, r.Method)
		w.Write([]byte(`{"data":[
			{"id":"Eas6c59rr","attributes":{"awsaccount-id":"010120201234"}},
			{"id":"H19NxM15y","attributes":{"awsaccount-id":"987654321098"}}
		]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, staticSecrets{key: "sekret"})
	list, err := c.FetchAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Eas6c59rr", list[0].ID)
	assert.Equal(t, "010120201234", list[0].AWSAccountID)
}

func TestFetchAccounts_NonOKIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(srv.URL, staticSecrets{key: "sekret"})
	upstreamErrors := 0
	c.OnUpstreamError = func() { upstreamErrors++ }

	_, err := c.FetchAccounts(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, upstreamErrors)
}
