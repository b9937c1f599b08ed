package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWhere(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]any
		wantErr bool
	}{
		{name: "empty", pairs: nil, want: nil},
		{name: "single", pairs: []string{"app_id=demo"}, want: map[string]any{"app_id": "demo"}},
		{
			name:  "multiple",
			pairs: []string{"app_id=demo", "lang=en"},
			want:  map[string]any{"app_id": "demo", "lang": "en"},
		},
		{name: "value with equals", pairs: []string{"url=https://x.test/?a=b"}, want: map[string]any{"url": "https://x.test/?a=b"}},
		{name: "missing value separator", pairs: []string{"app_id"}, wantErr: true},
		{name: "empty key", pairs: []string{"=demo"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseWhere(tt.pairs)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
