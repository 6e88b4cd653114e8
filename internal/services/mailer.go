package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/rush-contest/apiserver/types"
)

// MailChannel is the queue channel the mailer worker consumes.
const MailChannel = "mail"

// Mail templates. The core only names the template and supplies
// parameters; rendering bodies is the mail collaborator's job.
const (
	TemplateActivation    = "activation"
	TemplatePasswordReset = "password_reset"
	TemplateRejection     = "rejection"
	TemplateContestNotice = "contest_notice"
)

// MailMessage is the parameter set handed to the mail collaborator.
type MailMessage struct {
	Template string            `json:"template"`
	To       string            `json:"to"`
	Params   map[string]string `json:"params,omitempty"`
}

// MailQueue is the transport mail parameters are published to.
type MailQueue interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// Mailer publishes mail parameters to the queue. All sends are
// fire-and-forget: a publish failure is logged, never propagated, so a
// notification problem cannot roll back the state change that caused it.
type Mailer struct {
	queue   MailQueue
	baseURL string
	logger  *slog.Logger
}

func NewMailer(queue MailQueue, baseURL string, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailer{
		queue:   queue,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// SendActivation mails the first-password-set link after acceptance.
func (m *Mailer) SendActivation(ctx context.Context, to, ref, token string) {
	m.send(ctx, MailMessage{
		Template: TemplateActivation,
		To:       to,
		Params:   map[string]string{"link": m.passwordLink(ref, token)},
	})
}

// SendPasswordReset mails a reset link to an active account.
func (m *Mailer) SendPasswordReset(ctx context.Context, to, ref, token string) {
	m.send(ctx, MailMessage{
		Template: TemplatePasswordReset,
		To:       to,
		Params:   map[string]string{"link": m.passwordLink(ref, token)},
	})
}

// SendRejection notifies a rejected applicant.
func (m *Mailer) SendRejection(ctx context.Context, to string) {
	m.send(ctx, MailMessage{Template: TemplateRejection, To: to})
}

// SendContestNotice announces a new contest to an opted-in account.
func (m *Mailer) SendContestNotice(ctx context.Context, to string, contest types.Contest) {
	m.send(ctx, MailMessage{
		Template: TemplateContestNotice,
		To:       to,
		Params: map[string]string{
			"name":     contest.Name,
			"place":    contest.Place,
			"date":     contest.Date.Format(time.RFC3339),
			"deadline": contest.Deadline.Format(time.RFC3339),
		},
	})
}

func (m *Mailer) passwordLink(ref, token string) string {
	return m.baseURL + "/auth/password/" + ref + "/" + token
}

func (m *Mailer) send(ctx context.Context, msg MailMessage) {
	if m.queue == nil {
		m.logger.Warn("mail queue not configured, dropping message",
			slog.String("template", msg.Template), slog.String("to", msg.To))
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		m.logger.Error("encode mail message", slog.String("error", err.Error()))
		return
	}
	if _, err := m.queue.Publish(ctx, MailChannel, data, map[string]string{"template": msg.Template}); err != nil {
		m.logger.Error("publish mail message",
			slog.String("template", msg.Template),
			slog.String("to", msg.To),
			slog.String("error", err.Error()))
	}
}
