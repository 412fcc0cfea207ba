// internal/email/renderer.go

// Package email renders templates and delivers them through SES, writing one
// EmailLog row per attempt.
package email

import (
	"bytes"
	"html/template"

	apperrors "camp-lifecycle/internal/common/errors"
	"camp-lifecycle/internal/models"
)

// TemplateData is what every template renders against.
type TemplateData struct {
	FirstName string
	LastName  string
	Email     string
}

type registeredTemplate struct {
	subject string
	body    *template.Template
}

// Renderer holds the compiled template registry. Templates are registered at
// startup; rendering an unknown key is a configuration error.
type Renderer struct {
	templates map[string]registeredTemplate
}

// Rendered is a ready-to-send message.
type Rendered struct {
	Subject string
	HTML    string
}

var builtinTemplates = map[string]struct {
	subject string
	body    string
}{
	"weekly_reminder": {
		subject: "Your camp application is waiting",
		body: `<p>Hi {{.FirstName}},</p>
<p>Your camper application still has unanswered questions. Log in and pick up where you left off.</p>`,
	},
	"payment_reminder": {
		subject: "Camp payment reminder",
		body: `<p>Hi {{.FirstName}},</p>
<p>We have not yet received your camp payment. Please visit the billing page to complete it.</p>`,
	},
	"submitted": {
		subject: "We received your application",
		body: `<p>Hi {{.FirstName}},</p>
<p>Your camper application is complete and is now with our review teams.</p>`,
	},
	"accepted": {
		subject: "Welcome to camp!",
		body: `<p>Hi {{.FirstName}},</p>
<p>Your camper has been accepted. A few post-acceptance forms are now open in your account.</p>`,
	},
	"waitlisted": {
		subject: "Your application status",
		body: `<p>Hi {{.FirstName}},</p>
<p>Your application is currently on our waitlist. We will reach out as soon as a spot opens.</p>`,
	},
}

// NewRenderer compiles the built-in registry.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[string]registeredTemplate, len(builtinTemplates))}
	for key, def := range builtinTemplates {
		if err := r.Register(key, def.subject, def.body); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register compiles and adds one template, replacing any previous definition
// under the same key.
func (r *Renderer) Register(key, subject, body string) error {
	tmpl, err := template.New(key).Parse(body)
	if err != nil {
		return err
	}
	r.templates[key] = registeredTemplate{subject: subject, body: tmpl}
	return nil
}

// Render produces the message for one recipient.
func (r *Renderer) Render(templateKey string, user models.User) (*Rendered, error) {
	reg, ok := r.templates[templateKey]
	if !ok {
		return nil, apperrors.NewTemplateNotFoundError(templateKey)
	}

	var buf bytes.Buffer
	data := TemplateData{FirstName: user.FirstName, LastName: user.LastName, Email: user.Email}
	if err := reg.body.Execute(&buf, data); err != nil {
		return nil, err
	}
	return &Rendered{Subject: reg.subject, HTML: buf.String()}, nil
}
