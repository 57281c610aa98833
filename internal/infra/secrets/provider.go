package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Provider yields the Conformity API key. Failure to produce one is fatal
// to the request that needed it.
type Provider interface {
	APIKey(ctx context.Context) (string, error)
}

// Env reads the API key from an environment variable.
type Env struct {
	// Var defaults to CONFORMITY_API_KEY when empty.
	Var string
}

func (e Env) APIKey(ctx context.Context) (string, error) {
	name := e.Var
	if name == "" {
		name = "CONFORMITY_API_KEY"
	}
	key := os.Getenv(name)
	if key == "" {
		return "", fmt.Errorf("environment variable %s is not set", name)
	}
	return key, nil
}

// File reads the API key from a JSON secret payload of the shape
// {"api-key": "..."}, the format the operations tooling provisions.
type File struct {
	Path string
}

func (f File) APIKey(ctx context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("reading secret file: %w", err)
	}
	var payload struct {
		APIKey string `json:"api-key"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("parsing secret file %s: %w", f.Path, err)
	}
	if payload.APIKey == "" {
		return "", fmt.Errorf(`"api-key" missing from secret payload %s, this needs to be set to the Conformity API key`, f.Path)
	}
	return payload.APIKey, nil
}
