// internal/engine/completion/calculator.go

// Package completion derives the cached completion percentage from the schema
// and the stored responses. The calculation is pure; persisting the result is
// the lifecycle service's job.
package completion

import (
	"math"

	"camp-lifecycle/internal/models"
)

// ActivityResolver reports whether a question is currently active.
type ActivityResolver interface {
	Resolve(schema *models.Schema, status models.Status, responses map[string]models.Response) map[string]bool
}

// Calculator computes completion percentages.
type Calculator struct {
	resolver ActivityResolver
}

func NewCalculator(resolver ActivityResolver) *Calculator {
	return &Calculator{resolver: resolver}
}

// Result breaks a computation down for read models and debugging.
type Result struct {
	Percentage int `json:"percentage"`
	Required   int `json:"required"`
	Answered   int `json:"answered"`
}

// Calculate returns round-half-up(100 * answered / required) over the active
// required questions for the application's status. An empty required set is
// 100, never a division by zero. Orphaned responses to inactive or deleted
// questions are ignored on both sides of the ratio.
func (c *Calculator) Calculate(schema *models.Schema, status models.Status, responses map[string]models.Response) Result {
	active := c.resolver.Resolve(schema, status, responses)

	required := 0
	answered := 0
	for _, q := range schema.Questions {
		if !q.IsRequired || !active[q.ID] {
			continue
		}
		required++
		if resp, ok := responses[q.ID]; ok && resp.Answered() {
			answered++
		}
	}

	if required == 0 {
		return Result{Percentage: 100, Required: 0, Answered: 0}
	}

	pct := int(math.Round(float64(answered) / float64(required) * 100))
	return Result{Percentage: pct, Required: required, Answered: answered}
}
