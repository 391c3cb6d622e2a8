package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	gomail "gopkg.in/mail.v2"

	"github.com/okian/watchtower/internal/domain/model"
	"github.com/okian/watchtower/pkg/logger"
)

const (
	dialTimeout     = 10 * time.Second
	maxEventsInMail = 25
)

// EmailConfig holds SMTP configuration for sending emails.
type EmailConfig struct {
	SMTPServer string
	SMTPPort   int
	SMTPUser   string
	SMTPPass   string
	FromEmail  string
	// ToEmail is used when the message has no recipient.
	ToEmail string
}

type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailNotifier delivers messages via SMTP with an HTML body and a plain text
// alternative.
type EmailNotifier struct {
	cfg    EmailConfig
	sender mailSender
	tmpl   *template.Template
	log    logger.Logger
}

var _ Notifier = (*EmailNotifier)(nil)

// NewEmailNotifier creates a notifier with the given SMTP configuration.
func NewEmailNotifier(cfg EmailConfig) *EmailNotifier {
	dialer := gomail.NewDialer(cfg.SMTPServer, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	dialer.Timeout = dialTimeout
	return newEmailNotifier(cfg, dialer)
}

func newEmailNotifier(cfg EmailConfig, sender mailSender) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		sender: sender,
		tmpl:   template.Must(template.New("email").Parse(emailHTMLTemplate)),
		log:    logger.Get().Named("email"),
	}
}

func (n *EmailNotifier) Notify(ctx context.Context, msg Message) error {
	to := msg.Recipient
	if to == "" {
		to = n.cfg.ToEmail
	}
	if to == "" {
		return ErrNoRecipient
	}

	subject := Subject(msg)
	var htmlBuf bytes.Buffer
	if err := n.tmpl.Execute(&htmlBuf, newView(msg)); err != nil {
		return fmt.Errorf("failed to render HTML template: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", PlainText(msg))
	m.AddAlternative("text/html", htmlBuf.String())

	if err := n.sender.DialAndSend(m); err != nil {
		n.log.Error(ctx, "email send failed",
			logger.String("tracker_id", msg.TrackerID),
			logger.String("subject", subject),
			logger.Error(err))
		return fmt.Errorf("send email to %s: %w", to, err)
	}
	n.log.Info(ctx, "email sent", logger.String("tracker_id", msg.TrackerID), logger.String("subject", subject))
	return nil
}

// Subject formats the email subject line.
func Subject(msg Message) string {
	return fmt.Sprintf("Watchtower: %s changed (%d events)", msg.TrackerID, len(msg.Events))
}

// PlainText renders the plain text body.
func PlainText(msg Message) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s)\n", msg.TrackerID, msg.Target)
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")
	fmt.Fprintf(&sb, "Run: %s at %s\n\n", msg.RunID, msg.Timestamp.UTC().Format(time.RFC1123))

	sb.WriteString("SUMMARY\n")
	sb.WriteString(strings.Repeat("-", 20) + "\n")
	sb.WriteString(msg.Result.Summary + "\n\n")
	if msg.Result.Footnote != "" {
		sb.WriteString(msg.Result.Footnote + "\n\n")
	}

	if len(msg.Events) > 0 {
		sb.WriteString("CHANGES\n")
		sb.WriteString(strings.Repeat("-", 20) + "\n")
		for _, e := range limitEvents(msg.Events) {
			fmt.Fprintf(&sb, "- [%s] %s\n", e.Type, eventLabel(e))
		}
		if len(msg.Events) > maxEventsInMail {
			fmt.Fprintf(&sb, "... and %d more\n", len(msg.Events)-maxEventsInMail)
		}
	}
	return sb.String()
}

type eventView struct {
	Type  string
	Label string
}

type emailView struct {
	TrackerID string
	Target    string
	RunID     string
	Timestamp string
	Summary   string
	Footnote  string
	Events    []eventView
	More      int
}

func newView(msg Message) emailView {
	v := emailView{
		TrackerID: msg.TrackerID,
		Target:    msg.Target,
		RunID:     msg.RunID,
		Timestamp: msg.Timestamp.UTC().Format(time.RFC1123),
		Summary:   msg.Result.Summary,
		Footnote:  msg.Result.Footnote,
	}
	for _, e := range limitEvents(msg.Events) {
		v.Events = append(v.Events, eventView{Type: string(e.Type), Label: eventLabel(e)})
	}
	if len(msg.Events) > maxEventsInMail {
		v.More = len(msg.Events) - maxEventsInMail
	}
	return v
}

func limitEvents(events []model.ChangeEvent) []model.ChangeEvent {
	if len(events) > maxEventsInMail {
		return events[:maxEventsInMail]
	}
	return events
}

// eventLabel prefers a human title from the item data.
func eventLabel(e model.ChangeEvent) string {
	item := e.Current
	if item == nil {
		item = e.Previous
	}
	if item != nil {
		for _, k := range []string{"title", "question", "name"} {
			if s, ok := item.Data[k].(string); ok && s != "" {
				return s
			}
		}
	}
	return e.ExternalID
}
