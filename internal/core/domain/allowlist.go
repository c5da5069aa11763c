package domain

import (
	"net/url"
	"strings"
	"time"
)

const GlobalWildcard = "*"

type RuleKind string

const (
	RuleDomain   RuleKind = "domain"
	RuleWildcard RuleKind = "wildcard"
)

// AllowedDomainRule matches a host exactly or any of its subdomains,
// unless it is the global wildcard.
type AllowedDomainRule struct {
	Kind   RuleKind
	Domain string
}

// ParseAllowedDomainRule accepts a bare domain, a full URL or "*".
// ok is false for patterns that normalize to nothing.
func ParseAllowedDomainRule(pattern string) (AllowedDomainRule, bool) {
	pattern = strings.TrimSpace(pattern)
	if pattern == GlobalWildcard {
		return AllowedDomainRule{Kind: RuleWildcard}, true
	}
	if pattern == "" || strings.Contains(pattern, "*") {
		return AllowedDomainRule{}, false
	}
	if !strings.Contains(pattern, "://") {
		// bare rule: parse as scheme-relative so port and path drop out
		pattern = "//" + pattern
	}
	host := NormalizeHost(pattern)
	if host == "" {
		return AllowedDomainRule{}, false
	}
	return AllowedDomainRule{Kind: RuleDomain, Domain: host}, true
}

// NormalizeHost lowercases a URL's host and strips a leading "www.".
// Malformed URLs yield "".
func NormalizeHost(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

type AllowedURL struct {
	ID          int64     `json:"id"`
	URL         string    `json:"url"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type ChatRestriction struct {
	ID              int64     `json:"id"`
	RestrictionText string    `json:"restriction_text"`
	CreatedAt       time.Time `json:"created_at"`
}

type ManagedSearchToggle struct {
	Enabled   bool      `json:"is_enabled"`
	UpdatedAt time.Time `json:"updated_at"`
}
