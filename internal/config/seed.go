package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type SeedURL struct {
	URL         string `yaml:"url"`
	Description string `yaml:"description"`
}

// Seed holds the initial admin data applied to empty tables at startup.
type Seed struct {
	AllowedURLs      []SeedURL `yaml:"allowed_urls"`
	ChatRestrictions []string  `yaml:"chat_restrictions"`
}

// LoadSeed reads a YAML seed file. An empty path yields an empty seed.
func LoadSeed(path string) (Seed, error) {
	var seed Seed
	if strings.TrimSpace(path) == "" {
		return seed, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return seed, fmt.Errorf("read seed file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return seed, fmt.Errorf("parse seed file: %w", err)
	}

	urls := seed.AllowedURLs[:0]
	for _, u := range seed.AllowedURLs {
		u.URL = strings.TrimSpace(u.URL)
		if u.URL == "" {
			continue
		}
		u.Description = strings.TrimSpace(u.Description)
		urls = append(urls, u)
	}
	seed.AllowedURLs = urls

	restrictions := seed.ChatRestrictions[:0]
	for _, r := range seed.ChatRestrictions {
		if r = strings.TrimSpace(r); r != "" {
			restrictions = append(restrictions, r)
		}
	}
	seed.ChatRestrictions = restrictions
	return seed, nil
}
