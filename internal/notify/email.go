package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/mail"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

var reportTemplate = template.Must(template.ParseFS(templateFS, "templates/report.html"))

// Message is a rendered email.
type Message struct {
	From    string
	To      []string
	Subject string
	HTML    string
}

// Sender transports a rendered email. SMTPSender and ResendSender are the
// two providers.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Email renders change reports as HTML and hands them to a Sender.
// Baselines and reports without changes are skipped.
type Email struct {
	sender Sender
	from   string
	to     []string
}

// NewEmail creates an email channel. Addresses are validated up front so a
// misconfiguration fails at startup rather than on the first change.
func NewEmail(sender Sender, from string, to []string) (*Email, error) {
	if sender == nil {
		return nil, fmt.Errorf("email sender is nil")
	}
	if err := validateEmailAddress(from); err != nil {
		return nil, fmt.Errorf("invalid sender email: %w", err)
	}
	if len(to) == 0 {
		return nil, fmt.Errorf("no email recipients")
	}
	for _, addr := range to {
		if err := validateEmailAddress(addr); err != nil {
			return nil, fmt.Errorf("invalid recipient email: %w", err)
		}
	}
	return &Email{sender: sender, from: from, to: append([]string(nil), to...)}, nil
}

// Name implements Notifier.
func (e *Email) Name() string { return "email" }

// Notify implements Notifier.
func (e *Email) Notify(ctx context.Context, ev Event) error {
	if !ev.HasChanges() {
		return ErrSkipped
	}

	body, err := renderEmail(ev)
	if err != nil {
		return err
	}

	return e.sender.Send(ctx, Message{
		From:    e.from,
		To:      e.to,
		Subject: emailSubject(ev),
		HTML:    body,
	})
}

func emailSubject(ev Event) string {
	return fmt.Sprintf("[changewatch] %s: %s", ev.Source, ev.Report.Summary())
}

type emailField struct {
	Name string
	Old  string
	New  string
}

type emailChange struct {
	ID     string
	Fields []emailField
}

type emailData struct {
	Source  string
	Summary string

	New      []string
	NewCount int
	NewMore  int

	Removed      []string
	RemovedCount int
	RemovedMore  int

	Modified      []emailChange
	ModifiedCount int
	ModifiedMore  int
}

func renderEmail(ev Event) (string, error) {
	report := ev.Report
	data := emailData{Source: ev.Source, Summary: report.Summary()}

	newItems := report.NewItems()
	shown, more := head(newItems, emailItemLimit)
	for _, item := range shown {
		data.New = append(data.New, summarize(item))
	}
	data.NewCount, data.NewMore = len(newItems), more

	removed := report.RemovedItems()
	shown, more = head(removed, emailItemLimit)
	for _, item := range shown {
		data.Removed = append(data.Removed, summarize(item))
	}
	data.RemovedCount, data.RemovedMore = len(removed), more

	modified := report.ModifiedItems()
	changes, more := head(modified, emailItemLimit)
	for _, c := range changes {
		ec := emailChange{ID: c.ID}
		for _, f := range c.Fields() {
			fc := c.ChangedFields[f]
			ec.Fields = append(ec.Fields, emailField{Name: f, Old: fc.Old.String(), New: fc.New.String()})
		}
		data.Modified = append(data.Modified, ec)
	}
	data.ModifiedCount, data.ModifiedMore = len(modified), more

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render email template: %w", err)
	}
	return buf.String(), nil
}

// validateEmailAddress validates an email address for format and header injection attempts
func validateEmailAddress(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("invalid email format: %w", err)
	}
	if strings.ContainsAny(addr.Address, "\r\n") {
		return fmt.Errorf("invalid email address: contains newline characters")
	}
	return nil
}
