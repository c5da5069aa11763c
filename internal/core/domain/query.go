package domain

import (
	"fmt"
	"strings"
)

const minQueryLength = 2

type CacheScope string

const (
	ScopeGeneral  CacheScope = "general"
	ScopeSpecific CacheScope = "specific"
)

// Query is one user question with an optional target entity.
type Query struct {
	Text       string
	EntityHint string
	SessionID  string
	UserID     string
}

func NewQuery(text, entityHint string) (Query, error) {
	q := Query{
		Text:       strings.TrimSpace(text),
		EntityHint: strings.TrimSpace(entityHint),
	}
	if err := q.Validate(); err != nil {
		return Query{}, err
	}
	return q, nil
}

func (q Query) Validate() error {
	trimmed := strings.TrimSpace(q.Text)
	if trimmed == "" {
		return WrapError(ErrInvalidInput, "validate query", fmt.Errorf("query is required"))
	}
	if len([]rune(trimmed)) < minQueryLength {
		return WrapError(ErrInvalidInput, "validate query", fmt.Errorf("query must be at least %d characters", minQueryLength))
	}
	return nil
}

func (q Query) Scope() CacheScope {
	if q.EntityHint != "" {
		return ScopeSpecific
	}
	return ScopeGeneral
}
