package accounts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	batches [][]Mapping
	err     error
	calls   int
}

func (f *fakeSource) FetchAccounts(ctx context.Context) ([]Mapping, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	batch := f.batches[0]
	if len(f.batches) > 1 {
		f.batches = f.batches[1:]
	}
	return batch, nil
}

func TestResolver_Hit(t *testing.T) {
	src := &fakeSource{batches: [][]Mapping{{
		{ID: "Eas6c59rr", AWSAccountID: "010120201234"},
		{ID: "H19NxM15y", AWSAccountID: "987654321098"},
	}}}
	r := NewResolver(src)

	id, err := r.Resolve(context.Background(), "010120201234")
	require.NoError(t, err)
	assert.Equal(t, "Eas6c59rr", id)
	assert.Equal(t, 1, src.calls)
}

func TestResolver_CacheReused(t *testing.T) {
	src := &fakeSource{batches: [][]Mapping{{
		{ID: "Eas6c59rr", AWSAccountID: "010120201234"},
	}}}
	r := NewResolver(src)

	_, err := r.Resolve(context.Background(), "010120201234")
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), "010120201234")
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls, "second hit should come from the cache")
}

// A miss against a warm cache forces exactly one refresh before giving up.
func TestResolver_RefreshOnStaleMiss(t *testing.T) {
	src := &fakeSource{batches: [][]Mapping{
		{{ID: "Eas6c59rr", AWSAccountID: "010120201234"}},
		{{ID: "Eas6c59rr", AWSAccountID: "010120201234"}, {ID: "newacct", AWSAccountID: "555544443333"}},
	}}
	r := NewResolver(src)

	_, err := r.Resolve(context.Background(), "010120201234")
	require.NoError(t, err)

	id, err := r.Resolve(context.Background(), "555544443333")
	require.NoError(t, err)
	assert.Equal(t, "newacct", id)
	assert.Equal(t, 2, src.calls)
}

func TestResolver_UnmonitoredAccount(t *testing.T) {
	src := &fakeSource{batches: [][]Mapping{{
		{ID: "Eas6c59rr", AWSAccountID: "010120201234"},
	}}}
	r := NewResolver(src)

	id, err := r.Resolve(context.Background(), "0123456789012")
	require.NoError(t, err)
	assert.Equal(t, "", id)
	// cold populate plus the one-shot stale refresh
	assert.Equal(t, 2, src.calls)
}

func TestResolver_FetchFailureIsFatal(t *testing.T) {
	src := &fakeSource{err: errors.New("403 from accounts endpoint")}
	r := NewResolver(src)

	_, err := r.Resolve(context.Background(), "010120201234")
	assert.Error(t, err)
}
