package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gateEmbedder returns a fixed unit vector; the lifecycle tests only care
// about state transitions, not similarity.
type gateEmbedder struct{ dim int }

func (e gateEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.unit()
	}
	return out, nil
}

func (e gateEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return e.unit(), nil
}

func (e gateEmbedder) Dimension() int { return e.dim }

func (e gateEmbedder) unit() []float32 {
	v := make([]float32, e.dim)
	v[0] = 1
	return v
}

func TestCheckReadyPerState(t *testing.T) {
	tests := []struct {
		name  string
		state storeState
		want  error
	}{
		{"connected", stateConnected, ErrNotReady},
		{"resetting", stateResetting, ErrCollectionNotReady},
		{"ready", stateReady, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checks := map[string]error{
				"chromem":       (&chromemShared{state: tt.state}).checkReady(),
				"elasticsearch": (&elasticShared{state: tt.state}).checkReady(),
				"qdrant":        (&qdrantShared{state: tt.state}).checkReady(),
			}
			for adapter, err := range checks {
				if tt.want == nil {
					assert.NoError(t, err, adapter)
				} else {
					assert.ErrorIs(t, err, tt.want, adapter)
				}
			}
		})
	}
}

func TestChromemWithCollectionBindsDimensionAtCreation(t *testing.T) {
	ctx := context.Background()
	store, err := NewChromemStore(ChromemConfig{}, nil)
	require.NoError(t, err)

	// A handle taken before Initialize has no dimension to bind and its
	// operations fail until a new handle is taken.
	early := store.WithCollection("notes")
	err = early.Add(ctx, AddRequest{IDs: []string{"a"}, Texts: []string{"alpha"}})
	assert.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, store.Initialize(ctx, gateEmbedder{dim: 3}))

	late := store.WithCollection("notes").(*ChromemStore)
	assert.Equal(t, "notes-3", late.physical)
	require.NoError(t, late.Add(ctx, AddRequest{IDs: []string{"a"}, Texts: []string{"alpha"}}))
}

func TestChromemOpsFailWhileResetting(t *testing.T) {
	ctx := context.Background()
	store, err := NewChromemStore(ChromemConfig{}, nil)
	require.NoError(t, err)
	require.NoError(t, store.Initialize(ctx, gateEmbedder{dim: 3}))

	sh := store.shared
	sh.mu.Lock()
	sh.state = stateResetting
	sh.mu.Unlock()

	err = store.Add(ctx, AddRequest{IDs: []string{"a"}, Texts: []string{"alpha"}})
	assert.ErrorIs(t, err, ErrCollectionNotReady)

	_, err = store.Query(ctx, QueryRequest{Text: "alpha", NResults: 1})
	assert.ErrorIs(t, err, ErrCollectionNotReady)

	_, err = store.GetExisting(ctx, []string{"a"}, nil, 0)
	assert.ErrorIs(t, err, ErrCollectionNotReady)

	// Once the reset window closes, the same handle serves writes again.
	sh.mu.Lock()
	sh.state = stateReady
	sh.mu.Unlock()

	require.NoError(t, store.Add(ctx, AddRequest{IDs: []string{"a"}, Texts: []string{"alpha"}}))
	results, err := store.Query(ctx, QueryRequest{Text: "alpha", NResults: 1})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}
