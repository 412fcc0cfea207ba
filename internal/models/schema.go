// internal/models/schema.go
package models

// Section is an ordered container of questions. RequiredStatus, when set,
// restricts which top-level application status the section's questions count
// toward; nil means the section applies to every status.
type Section struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	OrderIndex     int     `json:"orderIndex"`
	RequiredStatus *Status `json:"requiredStatus,omitempty"`
	IsActive       bool    `json:"isActive"`
}

// Question belongs to one section. ShowIfQuestionID/ShowIfAnswer express a
// single-level conditional dependency: the question is active only while the
// referenced question's current answer equals ShowIfAnswer.
// DetailPromptTrigger lists answers that surface an informational follow-up
// prompt in the form UI; it never affects visibility or completion.
type Question struct {
	ID                  string   `json:"id"`
	SectionID           string   `json:"sectionId"`
	QuestionType        string   `json:"questionType"`
	IsRequired          bool     `json:"isRequired"`
	IsActive            bool     `json:"isActive"`
	OrderIndex          int      `json:"orderIndex"`
	ShowIfQuestionID    *string  `json:"showIfQuestionId,omitempty"`
	ShowIfAnswer        *string  `json:"showIfAnswer,omitempty"`
	DetailPromptTrigger []string `json:"detailPromptTrigger,omitempty"`
}

// Schema is the active form definition: sections plus their questions.
type Schema struct {
	Sections  []Section  `json:"sections"`
	Questions []Question `json:"questions"`
}

// SectionByID returns an index over sections.
func (s *Schema) SectionByID() map[string]Section {
	out := make(map[string]Section, len(s.Sections))
	for _, sec := range s.Sections {
		out[sec.ID] = sec
	}
	return out
}

// QuestionByID returns an index over questions.
func (s *Schema) QuestionByID() map[string]Question {
	out := make(map[string]Question, len(s.Questions))
	for _, q := range s.Questions {
		out[q.ID] = q
	}
	return out
}
