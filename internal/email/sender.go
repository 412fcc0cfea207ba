// internal/email/sender.go
package email

import (
	"context"

	"camp-lifecycle/internal/common/config"
	apperrors "camp-lifecycle/internal/common/errors"
	"camp-lifecycle/internal/common/logger"
	"camp-lifecycle/internal/models"
)

// Mailer is the delivery transport. *aws.SESClient satisfies it.
type Mailer interface {
	SendHTML(ctx context.Context, from, to, subject, html string) (string, error)
}

// LogWriter appends EmailLog rows.
type LogWriter interface {
	Append(ctx context.Context, log models.EmailLog) error
}

// Sender renders, delivers and logs one email per call. It is the automation
// dispatcher's Sender.
type Sender struct {
	renderer *Renderer
	mailer   Mailer
	logs     LogWriter
	cfg      config.EmailConfig
	logger   logger.Logger
}

func NewSender(renderer *Renderer, mailer Mailer, logs LogWriter, cfg config.EmailConfig, log logger.Logger) *Sender {
	return &Sender{renderer: renderer, mailer: mailer, logs: logs, cfg: cfg, logger: log}
}

// Send delivers one automation email. Every attempt leaves an EmailLog row;
// a failed log write is itself only logged, since losing an audit row must
// not fail an already-delivered email.
func (s *Sender) Send(ctx context.Context, automation models.EmailAutomation, recipient models.User) error {
	rendered, err := s.renderer.Render(automation.TemplateKey, recipient)
	if err != nil {
		s.appendLog(ctx, automation, recipient, models.EmailStatusFailed, err)
		return err
	}

	if !s.cfg.Enabled {
		s.logger.WithFields(map[string]interface{}{
			"recipient": recipient.Email,
			"template":  automation.TemplateKey,
		}).Info("Email delivery disabled, skipping send", nil)
		s.appendLog(ctx, automation, recipient, models.EmailStatusSkipped, nil)
		return nil
	}

	_, err = s.mailer.SendHTML(ctx, s.cfg.FromEmail, recipient.Email, rendered.Subject, rendered.HTML)
	if err != nil {
		s.appendLog(ctx, automation, recipient, models.EmailStatusFailed, err)
		return apperrors.NewEmailSendFailedError(recipient.Email, err)
	}

	s.appendLog(ctx, automation, recipient, models.EmailStatusSent, nil)
	return nil
}

func (s *Sender) appendLog(ctx context.Context, automation models.EmailAutomation, recipient models.User, status string, sendErr error) {
	if s.logs == nil {
		return
	}
	entry := models.EmailLog{
		AutomationID: &automation.ID,
		Recipient:    recipient.Email,
		TemplateKey:  automation.TemplateKey,
		Status:       status,
	}
	if sendErr != nil {
		msg := sendErr.Error()
		entry.Error = &msg
	}
	if err := s.logs.Append(ctx, entry); err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"recipient": recipient.Email,
		}).Error("Failed to append email log", nil)
	}
}
