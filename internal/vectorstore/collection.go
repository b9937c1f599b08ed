package vectorstore

import (
	"fmt"
	"regexp"
	"strings"
)

// NamingRules captures a backend's character restrictions on collection
// names. Only character escaping varies per backend; the dimension suffix is
// bound identically everywhere so a dimension change never silently reuses
// old vectors.
type NamingRules struct {
	// AllowUnderscore keeps underscores in the slug. Backends whose naming
	// rules forbid them (Pinecone-style index names) set this false and get
	// hyphens instead.
	AllowUnderscore bool

	// MaxLength truncates the slug portion when positive.
	MaxLength int
}

var nonCollectionChars = regexp.MustCompile(`[^a-z0-9_-]+`)

// PhysicalCollectionName derives the physical collection name from a logical
// name and the embedder's vector dimension:
//
//	slugify(logical) + "-" + dimension
//
// The function is pure. Two embedders with different dimensions never share
// storage because the dimension is part of the name.
func PhysicalCollectionName(logical string, dimension int, rules NamingRules) string {
	slug := strings.ToLower(strings.TrimSpace(logical))
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = nonCollectionChars.ReplaceAllString(slug, "-")
	if !rules.AllowUnderscore {
		slug = strings.ReplaceAll(slug, "_", "-")
	}
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "default"
	}
	if rules.MaxLength > 0 && len(slug) > rules.MaxLength {
		slug = strings.Trim(slug[:rules.MaxLength], "-")
	}
	return fmt.Sprintf("%s-%d", slug, dimension)
}
