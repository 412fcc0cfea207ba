// internal/engine/visibility/resolver.go

// Package visibility decides which questions are currently active for an
// application. A question is active when its own flag and its section's flag
// are set, the section applies to the application's status, and any show_if
// condition holds against the current answers.
package visibility

import (
	apperrors "camp-lifecycle/internal/common/errors"
	"camp-lifecycle/internal/common/logger"
	"camp-lifecycle/internal/models"
)

// Resolver evaluates conditional visibility. It is pure over its inputs and
// safe for concurrent use.
type Resolver struct {
	logger logger.Logger
}

func NewResolver(log logger.Logger) *Resolver {
	return &Resolver{logger: log}
}

// Resolve returns the set of active question IDs for the given schema,
// application status and answers. Conditions are single level: a show_if
// target's own condition is evaluated too, so a hidden parent hides its
// children even when a stale answer for the parent still matches.
func (r *Resolver) Resolve(schema *models.Schema, status models.Status, responses map[string]models.Response) map[string]bool {
	sections := schema.SectionByID()
	questions := schema.QuestionByID()

	memo := make(map[string]bool, len(schema.Questions))
	for _, q := range schema.Questions {
		r.resolveQuestion(q, status, sections, questions, responses, memo, map[string]bool{})
	}

	active := make(map[string]bool, len(memo))
	for id, ok := range memo {
		if ok {
			active[id] = true
		}
	}
	return active
}

// IsActive evaluates a single question against the schema.
func (r *Resolver) IsActive(schema *models.Schema, questionID string, status models.Status, responses map[string]models.Response) bool {
	questions := schema.QuestionByID()
	q, ok := questions[questionID]
	if !ok {
		return false
	}
	return r.resolveQuestion(q, status, schema.SectionByID(), questions, responses, map[string]bool{}, map[string]bool{})
}

func (r *Resolver) resolveQuestion(
	q models.Question,
	status models.Status,
	sections map[string]models.Section,
	questions map[string]models.Question,
	responses map[string]models.Response,
	memo map[string]bool,
	visiting map[string]bool,
) bool {
	if v, ok := memo[q.ID]; ok {
		return v
	}

	active := r.evaluate(q, status, sections, questions, responses, memo, visiting)
	memo[q.ID] = active
	return active
}

func (r *Resolver) evaluate(
	q models.Question,
	status models.Status,
	sections map[string]models.Section,
	questions map[string]models.Question,
	responses map[string]models.Response,
	memo map[string]bool,
	visiting map[string]bool,
) bool {
	if !q.IsActive {
		return false
	}

	sec, ok := sections[q.SectionID]
	if !ok || !sec.IsActive {
		return false
	}
	if sec.RequiredStatus != nil && *sec.RequiredStatus != status {
		return false
	}

	if q.ShowIfQuestionID == nil {
		return true
	}

	parent, ok := questions[*q.ShowIfQuestionID]
	if !ok {
		// Misconfigured schema. Fail open so a broken reference never
		// silently hides a required question.
		r.logger.WithError(apperrors.NewDanglingConditionError(q.ID, *q.ShowIfQuestionID)).
			Warn("Visibility condition references unknown question, treating as active", nil)
		return true
	}

	if visiting[q.ID] {
		// Condition cycle. Also fail open, once per resolve.
		r.logger.WithFields(map[string]interface{}{
			"question_id": q.ID,
		}).Warn("Visibility condition cycle detected, treating as active", nil)
		return true
	}
	visiting[q.ID] = true
	parentActive := r.resolveQuestion(parent, status, sections, questions, responses, memo, visiting)
	delete(visiting, q.ID)

	if !parentActive {
		return false
	}

	resp, ok := responses[parent.ID]
	if !ok || resp.Value == nil {
		return false
	}
	return q.ShowIfAnswer != nil && *resp.Value == *q.ShowIfAnswer
}
