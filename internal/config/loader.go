package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces the environment variables consulted by Load.
const envPrefix = "RAGSTORE_"

// Load reads configuration from an optional YAML file, overrides with
// RAGSTORE_* environment variables, applies defaults, and validates.
//
// Precedence (highest to lowest):
//  1. Environment variables (RAGSTORE_VECTORSTORE_PROVIDER, ...)
//  2. YAML config file
//  3. Defaults
//
// Environment variables map to config paths by stripping the prefix,
// lowercasing, and splitting the first underscore-separated segment:
//
//	RAGSTORE_VECTORSTORE_PROVIDER   -> vectorstore.provider
//	RAGSTORE_EMBEDDING_BASE_URL     -> embedding.base_url
//	RAGSTORE_INGEST_CHUNK_SIZE      -> ingest.chunk_size
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", transformEnvKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// transformEnvKey maps RAGSTORE_SECTION_SOME_FIELD to section.some_field.
func transformEnvKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	section, field, found := strings.Cut(s, "_")
	if !found {
		return section
	}
	// Provider sub-sections nest one level deeper (vectorstore.chromem.path).
	for _, sub := range []string{"chromem_", "elasticsearch_", "qdrant_"} {
		if section == "vectorstore" && strings.HasPrefix(field, sub) {
			return section + "." + strings.TrimSuffix(sub, "_") + "." + strings.TrimPrefix(field, sub)
		}
	}
	return section + "." + field
}
