package agents

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/agentflow/agentflow/agent"
)

// EmailSenderAgent sends mail via net/smtp. Cost scales with the
// recipient count.
type EmailSenderAgent struct {
	smtpServer string
	smtpPort   int
	useTLS     bool
}

// NewEmailSenderFactory builds an EmailSenderAgent from agent_config:
// "smtp_server" (default smtp.gmail.com), "smtp_port" (default 587),
// "use_tls" (default true).
func NewEmailSenderFactory() agent.Factory {
	return func(config map[string]any) (agent.Agent, error) {
		server := "smtp.gmail.com"
		if s, ok := config["smtp_server"].(string); ok && s != "" {
			server = s
		}
		port := 587
		if p, ok := config["smtp_port"].(float64); ok && p > 0 {
			port = int(p)
		}
		useTLS := true
		if v, ok := config["use_tls"].(bool); ok {
			useTLS = v
		}
		return &EmailSenderAgent{smtpServer: server, smtpPort: port, useTLS: useTLS}, nil
	}
}

func (a *EmailSenderAgent) ValidateInput(input map[string]any) bool {
	sender, ok := input["sender_email"].(string)
	if !ok || sender == "" || !strings.Contains(sender, "@") {
		return false
	}
	if _, ok := input["sender_password"].(string); !ok {
		return false
	}
	recipients, ok := recipientsOf(input)
	if !ok || len(recipients) == 0 {
		return false
	}
	for _, r := range recipients {
		if !strings.Contains(r, "@") {
			return false
		}
	}
	return true
}

func (a *EmailSenderAgent) EstimateCost(input map[string]any) agent.Cost {
	recipients, _ := recipientsOf(input)
	return agent.NewCostFromUnits(0.001 * float64(len(recipients)))
}

func (a *EmailSenderAgent) Run(ctx context.Context, input map[string]any, execCtx map[string]any) agent.Result {
	start := time.Now()
	sender, _ := input["sender_email"].(string)
	password, _ := input["sender_password"].(string)
	recipients, _ := recipientsOf(input)
	subject, _ := input["subject"].(string)
	body, _ := input["body"].(string)

	msg := buildMIMEMessage(sender, recipients, subject, body)

	addr := fmt.Sprintf("%s:%d", a.smtpServer, a.smtpPort)
	auth := smtp.PlainAuth("", sender, password, a.smtpServer)

	if err := sendMailWithContext(ctx, addr, auth, sender, recipients, msg); err != nil {
		return agent.Result{Success: false, ErrorMessage: "smtp: " + err.Error()}
	}

	return agent.Result{
		Success: true,
		Data: map[string]any{
			"sender":      sender,
			"recipients":  recipients,
			"subject":     subject,
			"sent_count":  len(recipients),
			"message":     fmt.Sprintf("Successfully sent %d emails", len(recipients)),
		},
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		CostEstimate:    a.EstimateCost(input),
	}
}

// sendMailWithContext wraps smtp.SendMail, bailing out early if ctx is
// already cancelled. net/smtp has no native context support; the timeout
// the executor applies around Run is the primary cancellation boundary.
func sendMailWithContext(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return smtp.SendMail(addr, auth, from, to, msg)
}

func buildMIMEMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func recipientsOf(input map[string]any) ([]string, bool) {
	raw, ok := input["recipients"].([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		s, ok := r.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
