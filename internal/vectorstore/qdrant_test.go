package vectorstore

import (
	"errors"
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestQdrantConfigApplyDefaults(t *testing.T) {
	cfg := QdrantConfig{}
	cfg.ApplyDefaults()

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 6334, cfg.Port)
	assert.Equal(t, "ragstore", cfg.Collection)
	assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryBackoff)
	assert.Equal(t, 50*1024*1024, cfg.MaxMessageSize)
}

func TestQdrantConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     QdrantConfig
		wantErr bool
	}{
		{name: "valid", cfg: QdrantConfig{Port: 6334}},
		{name: "zero port", cfg: QdrantConfig{Port: 0}, wantErr: true},
		{name: "port out of range", cfg: QdrantConfig{Port: 70000}, wantErr: true},
		{name: "negative batch size", cfg: QdrantConfig{Port: 6334, BatchSize: -1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsTransientGRPC(t *testing.T) {
	assert.True(t, isTransientGRPC(status.Error(grpccodes.Unavailable, "down")))
	assert.True(t, isTransientGRPC(status.Error(grpccodes.DeadlineExceeded, "slow")))
	assert.True(t, isTransientGRPC(status.Error(grpccodes.Aborted, "conflict")))
	assert.True(t, isTransientGRPC(status.Error(grpccodes.ResourceExhausted, "throttled")))

	assert.False(t, isTransientGRPC(status.Error(grpccodes.InvalidArgument, "bad vector")))
	assert.False(t, isTransientGRPC(status.Error(grpccodes.NotFound, "no collection")))
}

func TestCompileQdrantConditions(t *testing.T) {
	conditions := compileQdrantConditions(BuildFilter(map[string]any{
		"app_id":  "demo",
		"year":    2024,
		"deleted": false,
	}))
	require.Len(t, conditions, 3, "every key becomes its own Must condition")

	// Sorted key order: app_id, deleted, year.
	assert.Equal(t, "app_id", conditions[0].GetField().Key)
	assert.Equal(t, "demo", conditions[0].GetField().GetMatch().GetKeyword())
	assert.Equal(t, "deleted", conditions[1].GetField().Key)
	assert.False(t, conditions[1].GetField().GetMatch().GetBoolean())
	assert.Equal(t, "year", conditions[2].GetField().Key)
	assert.Equal(t, int64(2024), conditions[2].GetField().GetMatch().GetInteger())
}

func TestCompileQdrantConditionsEmpty(t *testing.T) {
	assert.Empty(t, compileQdrantConditions(nil))
	assert.Empty(t, compileQdrantConditions(BuildFilter(nil)))
}

func TestQdrantValueRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{name: "string", in: "hello", want: "hello"},
		{name: "int widens to int64", in: 42, want: int64(42)},
		{name: "int64", in: int64(7), want: int64(7)},
		{name: "float", in: 3.14, want: 3.14},
		{name: "bool", in: true, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := qdrantValueToScalar(scalarToQdrantValue(tt.in))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTranslateQdrantError(t *testing.T) {
	assert.NoError(t, translateQdrantError(nil, 384))

	err := translateQdrantError(status.Error(grpccodes.InvalidArgument, "Vector dimension error: expected dim: 384, got 1536"), 384)
	var mismatch *DimensionMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 384, mismatch.Expected)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	plain := status.Error(grpccodes.NotFound, "collection missing")
	assert.Equal(t, plain, translateQdrantError(plain, 384))
}

func TestQdrantPointIDDerivationIsDeterministic(t *testing.T) {
	// Upserts derive the point UUID from the content-hash id; the same id
	// must always produce the same UUID or re-adds would duplicate points.
	a := qdrant.NewIDUUID(deterministicPointID("abc123"))
	b := qdrant.NewIDUUID(deterministicPointID("abc123"))
	c := qdrant.NewIDUUID(deterministicPointID("other"))
	assert.Equal(t, a.String(), b.String())
	assert.NotEqual(t, a.String(), c.String())
}

func TestQdrantTranslateErrorNonStatus(t *testing.T) {
	plain := errors.New("not a grpc error")
	assert.Equal(t, plain, translateQdrantError(plain, 8))
}
