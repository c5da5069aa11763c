package apiusage

import (
	"fmt"
	"strconv"
	"strings"
)

// ModelPrice is USD per one million tokens.
type ModelPrice struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// CostCalculator estimates spend from token counts and per-request prices.
// Request prices are keyed by "provider.operation".
type CostCalculator struct {
	models   map[string]ModelPrice
	requests map[string]float64
}

func NewCostCalculator(models map[string]ModelPrice, requests map[string]float64) *CostCalculator {
	c := &CostCalculator{
		models:   make(map[string]ModelPrice, len(models)),
		requests: make(map[string]float64, len(requests)),
	}
	for k, v := range models {
		c.models[strings.ToLower(k)] = v
	}
	for k, v := range requests {
		c.requests[strings.ToLower(k)] = v
	}
	return c
}

func DefaultCostCalculator() *CostCalculator {
	return NewCostCalculator(
		map[string]ModelPrice{
			"gpt-4o":                 {InputPerMillion: 2.50, OutputPerMillion: 10.00},
			"gpt-4o-mini":            {InputPerMillion: 0.15, OutputPerMillion: 0.60},
			"text-embedding-3-small": {InputPerMillion: 0.02},
			"text-embedding-3-large": {InputPerMillion: 0.13},
		},
		map[string]float64{
			"tavily.search_basic":    0.008,
			"tavily.search_advanced": 0.016,
			"serpapi.search":         0.015,
			"qdrant.search":          0,
			"qdrant.upsert":          0,
			"qdrant.scroll":          0,
			"qdrant.delete":          0,
		},
	)
}

func (c *CostCalculator) Estimate(call Call, result Result) float64 {
	if c == nil {
		return 0
	}
	cost := c.requests[strings.ToLower(call.Provider+"."+call.Operation)]
	if price, ok := c.modelPrice(call.Model); ok {
		cost += float64(result.TokensIn) * price.InputPerMillion / 1_000_000
		cost += float64(result.TokensOut) * price.OutputPerMillion / 1_000_000
	}
	return cost
}

// modelPrice matches exactly first, then the longest known prefix so dated
// snapshots like gpt-4o-mini-2024-07-18 resolve to their family.
func (c *CostCalculator) modelPrice(model string) (ModelPrice, bool) {
	model = strings.ToLower(strings.TrimSpace(model))
	if model == "" {
		return ModelPrice{}, false
	}
	if price, ok := c.models[model]; ok {
		return price, true
	}
	best := ""
	for name := range c.models {
		if strings.HasPrefix(model, name+"-") && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return ModelPrice{}, false
	}
	return c.models[best], true
}

// ApplyOverrides parses a comma-separated list of "model=in/out" token prices
// and "provider.operation=usd" request prices.
func (c *CostCalculator) ApplyOverrides(raw string) error {
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, value, ok := strings.Cut(entry, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		if !ok || key == "" {
			return fmt.Errorf("invalid price override %q", entry)
		}
		if in, out, isModel := strings.Cut(value, "/"); isModel {
			inPrice, err := strconv.ParseFloat(strings.TrimSpace(in), 64)
			if err != nil {
				return fmt.Errorf("invalid input price in %q: %w", entry, err)
			}
			outPrice, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
			if err != nil {
				return fmt.Errorf("invalid output price in %q: %w", entry, err)
			}
			c.models[key] = ModelPrice{InputPerMillion: inPrice, OutputPerMillion: outPrice}
			continue
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fmt.Errorf("invalid price in %q: %w", entry, err)
		}
		c.requests[key] = price
	}
	return nil
}
