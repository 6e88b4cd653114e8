/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/smtp"
	"os"
	"sort"
	"strings"

	"github.com/rush-contest/apiserver/config"
	"github.com/rush-contest/apiserver/internal/mq"
	"github.com/rush-contest/apiserver/internal/services"
	"github.com/spf13/cobra"
)

// mailerCmd represents the mailer command. It drains the mail queue and
// delivers each message over SMTP. Message bodies are flat parameter dumps;
// real templating belongs to whatever frontend consumes this queue.
var mailerCmd = &cobra.Command{
	Use:   "mailer",
	Short: "Runs the outgoing mail worker",
	Long: `Runs the outgoing mail worker. Usage:

	rushd mailer
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

		backend, err := mq.FromConfig(cmd.Context(), cfg.MQ)
		if err != nil {
			return fmt.Errorf("connect mail queue: %w", err)
		}
		queue := mq.New(backend)
		defer func() {
			_ = queue.Close()
		}()

		logger.Info("mail worker started", slog.String("channel", services.MailChannel))
		return queue.Subscribe(cmd.Context(), services.MailChannel, func(ctx context.Context, msg mq.Message) error {
			var mail services.MailMessage
			if err := json.Unmarshal(msg.Data, &mail); err != nil {
				logger.Error("dropping malformed mail message", slog.String("id", msg.ID), slog.String("error", err.Error()))
				return nil
			}
			if err := deliver(cfg.SMTP, mail); err != nil {
				logger.Error("mail delivery failed", slog.String("to", mail.To), slog.String("template", mail.Template), slog.String("error", err.Error()))
				return err
			}
			logger.Info("mail delivered", slog.String("to", mail.To), slog.String("template", mail.Template))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(mailerCmd)
}

var mailSubjects = map[string]string{
	services.TemplateActivation:    "Rush - account activated",
	services.TemplatePasswordReset: "Rush - password reset",
	services.TemplateRejection:     "Rush - account request rejected",
	services.TemplateContestNotice: "Rush - new contest announced",
}

func deliver(cfg config.SMTPConfig, mail services.MailMessage) error {
	if cfg.Host == "" {
		return fmt.Errorf("smtp not configured")
	}

	subject, ok := mailSubjects[mail.Template]
	if !ok {
		subject = "Rush notification"
	}

	var body strings.Builder
	keys := make([]string, 0, len(mail.Params))
	for key := range mail.Params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&body, "%s: %s\r\n", key, mail.Params[key])
	}

	msg := "From: " + cfg.From + "\r\n" +
		"To: " + mail.To + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n" +
		body.String()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	auth := smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Host)
	return smtp.SendMail(addr, auth, cfg.From, []string{mail.To}, []byte(msg))
}
