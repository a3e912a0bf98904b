// Package email provides an email sending client.
//
// It uses Resend (resend-go) as the email provider and renders HTML bodies
// from templates embedded in the binary.
package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"

	"github.com/deppfellow/tenantflow/internal/config"
	"github.com/pkg/errors"
	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"
)

//go:embed templates/emails/*.html
var templateFS embed.FS

// templates is parsed once; a broken template fails at startup, not at send.
var templates = template.Must(
	template.New("emails").
		Funcs(template.FuncMap{"money": FormatCents}).
		ParseFS(templateFS, "templates/emails/*.html"),
)

// Client wraps the Resend client and a logger.
type Client struct {
	client *resend.Client
	from   string
	logger *zerolog.Logger
}

// NewClient creates an email Client with the API key and sender from config.
func NewClient(cfg *config.Config, logger *zerolog.Logger) *Client {
	return &Client{
		client: resend.NewClient(cfg.Integration.ResendAPIKey),
		from:   cfg.Integration.EmailFrom,
		logger: logger,
	}
}

// Render executes the named template with data.
func Render(templateName Template, data any) (string, error) {
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, templateName.File(), data); err != nil {
		return "", errors.Wrapf(err, "failed to execute email template %s", templateName)
	}
	return body.String(), nil
}

// SendEmail renders templateName with data and sends it to a single
// recipient. The returned id is Resend's message id.
func (c *Client) SendEmail(ctx context.Context, to, subject string, templateName Template, data any) (string, error) {
	html, err := Render(templateName, data)
	if err != nil {
		return "", err
	}

	params := &resend.SendEmailRequest{
		From:    c.from,
		To:      []string{to},
		Subject: subject,
		Html:    html,
	}

	sent, err := c.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}

	c.logger.Debug().
		Str("template", string(templateName)).
		Str("message_id", sent.Id).
		Msg("email accepted by provider")

	return sent.Id, nil
}
