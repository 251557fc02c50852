package services

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type Email struct {
	To      string
	Subject string
	HTML    string
}

// Mailer delivers one email and returns the provider's message id.
type Mailer interface {
	Send(ctx context.Context, email Email) (string, error)
}

// ResendMailer sends through the Resend API, paced so bursts of signups
// stay under the provider's request rate.
type ResendMailer struct {
	client  *resend.Client
	from    string
	limiter *rate.Limiter
}

func NewResendMailer(apiKey, from string, perSecond float64) *ResendMailer {
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &ResendMailer{
		client:  resend.NewClient(apiKey),
		from:    from,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (m *ResendMailer) Send(ctx context.Context, email Email) (string, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return "", err
	}
	sent, err := m.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{email.To},
		Subject: email.Subject,
		Html:    email.HTML,
	})
	if err != nil {
		return "", fmt.Errorf("resend: %w", err)
	}
	return sent.Id, nil
}

// LogMailer writes emails to the log instead of sending them. Used when no
// provider key is configured.
type LogMailer struct {
	logger zerolog.Logger
}

func NewLogMailer(logger zerolog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, email Email) (string, error) {
	m.logger.Info().Str("to", email.To).Str("subject", email.Subject).Msg("email not sent (no provider configured)")
	return "logged", nil
}

// EmailTemplates renders the two transactional emails with links back to
// the frontend.
type EmailTemplates struct {
	FrontendURL     string
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

func humanizeTTL(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		if h := int(d / time.Hour); h != 1 {
			return fmt.Sprintf("%d hours", h)
		}
		return "1 hour"
	case d >= time.Minute:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	default:
		return d.String()
	}
}

func (t EmailTemplates) Verification(firstName, token string) Email {
	link := t.FrontendURL + "/verify-email?token=" + url.QueryEscape(token)
	return Email{
		Subject: "Verify your email address",
		HTML: fmt.Sprintf(`<p>Hi %s,</p>
<p>Thanks for signing up. Please confirm your email address by clicking the link below:</p>
<p><a href="%s">Verify email</a></p>
<p>This link expires in %s. If you did not create an account, you can ignore this email.</p>`,
			html.EscapeString(firstName), html.EscapeString(link), humanizeTTL(t.VerificationTTL)),
	}
}

func (t EmailTemplates) PasswordReset(firstName, token string) Email {
	link := t.FrontendURL + "/reset-password?token=" + url.QueryEscape(token)
	return Email{
		Subject: "Reset your password",
		HTML: fmt.Sprintf(`<p>Hi %s,</p>
<p>We received a request to reset your password. Use the link below to choose a new one:</p>
<p><a href="%s">Reset password</a></p>
<p>This link expires in %s. If you did not request a reset, you can ignore this email.</p>`,
			html.EscapeString(firstName), html.EscapeString(link), humanizeTTL(t.ResetTTL)),
	}
}
