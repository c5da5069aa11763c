package domain

import (
	"fmt"
	"strings"
)

// KnowledgeItem is a stored peptide record with its embedding.
type KnowledgeItem struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Vector      []float32      `json:"-"`
	TextContent string         `json:"text_content"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// VectorHit is one nearest-neighbour match.
type VectorHit struct {
	Item  KnowledgeItem `json:"item"`
	Score float64       `json:"score"`
}

type Peptide struct {
	Name                    string `json:"name"`
	Overview                string `json:"overview"`
	MechanismOfActions      string `json:"mechanism_of_actions"`
	PotentialResearchFields string `json:"potential_research_fields"`
}

func (p Peptide) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return WrapError(ErrInvalidInput, "validate peptide", fmt.Errorf("name is required"))
	}
	return nil
}

// Text renders the content that gets embedded.
func (p Peptide) Text() string {
	return fmt.Sprintf(
		"Name: %s\nOverview: %s\nMechanism of Actions: %s\nPotential Research Fields: %s",
		p.Name, p.Overview, p.MechanismOfActions, p.PotentialResearchFields,
	)
}

func (p Peptide) Metadata() map[string]any {
	return map[string]any{
		"overview":                  p.Overview,
		"mechanism_of_actions":      p.MechanismOfActions,
		"potential_research_fields": p.PotentialResearchFields,
	}
}

type SimilarPeptide struct {
	Name            string  `json:"name"`
	Overview        string  `json:"overview"`
	SimilarityScore float64 `json:"similarity_score"`
}
