package ai

import "context"

type Client interface {
	Summarize(ctx context.Context, results string) (string, error)
}
