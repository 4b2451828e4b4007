package notify

import (
	"context"
	"fmt"
	"html"
	"time"

	"incident-portal/internal/assignments"
	"incident-portal/internal/commanders"
	"incident-portal/internal/metrics"
	"incident-portal/internal/reports"
)

const (
	KindPasswordSetup = "password_setup"
	KindAssignment    = "assignment"
	KindRevision      = "revision"
)

// Mailer renders portal emails and hands them to a Sender.
type Mailer struct {
	sender  Sender
	baseURL string
}

func NewMailer(sender Sender, baseURL string) *Mailer {
	return &Mailer{sender: sender, baseURL: baseURL}
}

// SendPasswordSetup implements commanders.Mailer.
func (m *Mailer) SendPasswordSetup(ctx context.Context, c commanders.Commander, link string, expiresAt time.Time) error {
	plain := fmt.Sprintf(`Hello %s,

An account has been created for you on the incident portal.

Set your password using the link below:
%s

This link will expire at %s UTC and can only be used once.

If you were not expecting this email, contact your administrator.`,
		c.FullName, link, expiresAt.UTC().Format("2006-01-02 15:04"))

	body := fmt.Sprintf(`<p>Hello %s,</p>
<p>An account has been created for you on the incident portal.</p>
<p><a href="%s">Set your password</a></p>
<p style="word-break: break-all; color: #666;">%s</p>
<p><strong>Note:</strong> this link expires at %s UTC and can only be used once.</p>`,
		html.EscapeString(c.FullName), html.EscapeString(link), html.EscapeString(link), expiresAt.UTC().Format("2006-01-02 15:04"))

	return m.send(ctx, Message{
		Kind:    KindPasswordSetup,
		ToName:  c.FullName,
		ToEmail: c.Email,
		Subject: "Set up your incident portal account",
		Plain:   plain,
		HTML:    wrapHTML("Account setup", body),
	})
}

// SendAssignment tells a commander a report has been assigned to them.
func (m *Mailer) SendAssignment(ctx context.Context, c commanders.Commander, a assignments.Assignment, r reports.Report) error {
	link := m.baseURL + "/commander/assignments/" + a.ID
	plain := fmt.Sprintf(`Hello %s,

Report %s has been assigned to your unit.

Threat: %s
Urgency: %s
State: %s

Open the assignment: %s`,
		c.FullName, r.SerialNumber, r.ThreatType, r.Urgency, r.State, link)

	body := fmt.Sprintf(`<p>Hello %s,</p>
<p>Report <strong>%s</strong> has been assigned to your unit.</p>
<ul><li>Threat: %s</li><li>Urgency: %s</li><li>State: %s</li></ul>
<p><a href="%s">Open the assignment</a></p>`,
		html.EscapeString(c.FullName), html.EscapeString(r.SerialNumber), html.EscapeString(r.ThreatType),
		html.EscapeString(string(r.Urgency)), html.EscapeString(r.State), html.EscapeString(link))

	return m.send(ctx, Message{
		Kind:    KindAssignment,
		ToName:  c.FullName,
		ToEmail: c.Email,
		Subject: fmt.Sprintf("[%s] New assignment %s", r.Urgency, r.SerialNumber),
		Plain:   plain,
		HTML:    wrapHTML("New assignment", body),
	})
}

// SendRevision tells a commander their resolution was returned, with the reason.
func (m *Mailer) SendRevision(ctx context.Context, c commanders.Commander, a assignments.Assignment, r reports.Report) error {
	link := m.baseURL + "/commander/assignments/" + a.ID
	plain := fmt.Sprintf(`Hello %s,

Your resolution for report %s was returned for revision.

Reason: %s

Update and resubmit: %s`,
		c.FullName, r.SerialNumber, a.RevisionReason, link)

	body := fmt.Sprintf(`<p>Hello %s,</p>
<p>Your resolution for report <strong>%s</strong> was returned for revision.</p>
<blockquote>%s</blockquote>
<p><a href="%s">Update and resubmit</a></p>`,
		html.EscapeString(c.FullName), html.EscapeString(r.SerialNumber),
		html.EscapeString(a.RevisionReason), html.EscapeString(link))

	return m.send(ctx, Message{
		Kind:    KindRevision,
		ToName:  c.FullName,
		ToEmail: c.Email,
		Subject: "Resolution returned for revision: " + r.SerialNumber,
		Plain:   plain,
		HTML:    wrapHTML("Revision requested", body),
	})
}

func (m *Mailer) send(ctx context.Context, msg Message) error {
	err := m.sender.Send(ctx, msg)
	metrics.EmailsSent.WithLabelValues(msg.Kind, metrics.Result(err)).Inc()
	return err
}

func wrapHTML(title, body string) string {
	return `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>` + html.EscapeString(title) + `</title>
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
` + body + `
</body>
</html>`
}
