package vectorstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

func TestPhysicalCollectionName(t *testing.T) {
	tests := []struct {
		name      string
		logical   string
		dimension int
		rules     vectorstore.NamingRules
		want      string
	}{
		{
			name:      "simple name",
			logical:   "knowledge",
			dimension: 384,
			rules:     vectorstore.NamingRules{AllowUnderscore: true},
			want:      "knowledge-384",
		},
		{
			name:      "uppercase and spaces",
			logical:   "My Docs",
			dimension: 1536,
			rules:     vectorstore.NamingRules{AllowUnderscore: true},
			want:      "my-docs-1536",
		},
		{
			name:      "underscores kept when allowed",
			logical:   "app_data",
			dimension: 768,
			rules:     vectorstore.NamingRules{AllowUnderscore: true},
			want:      "app_data-768",
		},
		{
			name:      "underscores hyphenated when forbidden",
			logical:   "app_data",
			dimension: 768,
			rules:     vectorstore.NamingRules{},
			want:      "app-data-768",
		},
		{
			name:      "special characters collapse",
			logical:   "docs/v2 (beta)!",
			dimension: 384,
			rules:     vectorstore.NamingRules{AllowUnderscore: true},
			want:      "docs-v2-beta-384",
		},
		{
			name:      "empty falls back to default",
			logical:   "",
			dimension: 384,
			rules:     vectorstore.NamingRules{AllowUnderscore: true},
			want:      "default-384",
		},
		{
			name:      "only invalid characters falls back to default",
			logical:   "***",
			dimension: 128,
			rules:     vectorstore.NamingRules{AllowUnderscore: true},
			want:      "default-128",
		},
		{
			name:      "max length truncates slug not suffix",
			logical:   "a-very-long-collection-name",
			dimension: 384,
			rules:     vectorstore.NamingRules{AllowUnderscore: true, MaxLength: 11},
			want:      "a-very-long-384",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := vectorstore.PhysicalCollectionName(tt.logical, tt.dimension, tt.rules)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPhysicalCollectionNameBindsDimension(t *testing.T) {
	a := vectorstore.PhysicalCollectionName("docs", 384, vectorstore.NamingRules{})
	b := vectorstore.PhysicalCollectionName("docs", 1536, vectorstore.NamingRules{})
	assert.NotEqual(t, a, b, "same logical name with different dimensions must not share storage")
}
