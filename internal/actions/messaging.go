package actions

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/slack-go/slack"

	"github.com/valetd/valet/internal/intent"
)

// slackPoster is the slice of the Slack API SendMessage needs. The real
// client is *slack.Client.
type slackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SMTPSettings configures outbound email. A zero value disables email.
type SMTPSettings struct {
	Host     string
	Port     int
	From     string
	Password string
}

func (s SMTPSettings) enabled() bool { return s.Host != "" && s.From != "" }

// SendMessage delivers a message: recipients containing "@" go out as
// email, everything else is posted to Slack.
type SendMessage struct {
	Client         slackPoster
	DefaultChannel string
	SMTP           SMTPSettings

	// sendMail is swappable in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSendMessage builds the handler. An empty Slack token leaves Slack
// unconfigured; Execute reports that instead of failing opaquely.
func NewSendMessage(token, defaultChannel string, smtpCfg SMTPSettings) *SendMessage {
	h := &SendMessage{DefaultChannel: defaultChannel, SMTP: smtpCfg, sendMail: smtp.SendMail}
	if token != "" {
		h.Client = slack.New(token)
	}
	return h
}

func (h *SendMessage) Name() intent.Action { return intent.ActionSendMessage }

func (h *SendMessage) Execute(ctx context.Context, req Request) (Result, error) {
	text := strings.TrimSpace(GetString(req.Parameters, "message", ""))
	if text == "" {
		return Result{}, fmt.Errorf("no message text given")
	}
	recipient := strings.TrimSpace(GetString(req.Parameters, "recipient", ""))

	if strings.Contains(recipient, "@") {
		return h.sendEmail(recipient, text)
	}
	return h.sendSlack(ctx, recipient, text)
}

func (h *SendMessage) sendSlack(ctx context.Context, channel, text string) (Result, error) {
	if h.Client == nil {
		return Result{}, fmt.Errorf("messaging is not configured; set the Slack token")
	}
	if channel == "" {
		channel = h.DefaultChannel
	}
	if channel == "" {
		return Result{}, fmt.Errorf("no recipient given and no default channel configured")
	}
	_, _, err := h.Client.PostMessageContext(ctx, channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionAsUser(true),
	)
	if err != nil {
		return Result{}, fmt.Errorf("failed to send message to %s: %w", channel, err)
	}
	return Result{Text: fmt.Sprintf("Message sent to %s", channel)}, nil
}

func (h *SendMessage) sendEmail(to, text string) (Result, error) {
	if !h.SMTP.enabled() {
		return Result{}, fmt.Errorf("email is not configured; set the SMTP host and sender")
	}
	subject := text
	if idx := strings.IndexByte(subject, '\n'); idx > 0 {
		subject = subject[:idx]
	}
	if len(subject) > 78 {
		subject = subject[:78]
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		h.SMTP.From, to, subject, text)

	var auth smtp.Auth
	if h.SMTP.Password != "" {
		auth = smtp.PlainAuth("", h.SMTP.From, h.SMTP.Password, h.SMTP.Host)
	}
	port := h.SMTP.Port
	if port == 0 {
		port = 587
	}
	addr := fmt.Sprintf("%s:%d", h.SMTP.Host, port)
	if err := h.sendMail(addr, auth, h.SMTP.From, []string{to}, []byte(msg)); err != nil {
		return Result{}, fmt.Errorf("failed to email %s: %w", to, err)
	}
	return Result{Text: fmt.Sprintf("Email sent to %s", to)}, nil
}
