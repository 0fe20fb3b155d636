// Package mailer renders and sends reservation notification emails over SMTP.
package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/iliyamo/campus-marketplace/internal/config"
	"github.com/iliyamo/campus-marketplace/internal/model"
	"github.com/iliyamo/campus-marketplace/internal/queue"
)

// Dialer sends a composed message.  *gomail.Dialer satisfies it.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer sends reservation emails.
type Mailer struct {
	dialer  Dialer
	from    string
	baseURL string
}

// New returns a Mailer for cfg.  It returns nil when no SMTP host is set.
func New(cfg config.MailConfig) *Mailer {
	if cfg.Host == "" {
		return nil
	}
	return NewWithDialer(gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password), cfg.From, cfg.BaseURL)
}

// NewWithDialer builds a Mailer around an existing dialer.
func NewWithDialer(d Dialer, from, baseURL string) *Mailer {
	return &Mailer{dialer: d, from: from, baseURL: strings.TrimRight(baseURL, "/")}
}

// SendReservationEmail renders the email for ev and sends it to recipient.
func (m *Mailer) SendReservationEmail(recipient model.User, ev queue.ReservationEvent) error {
	subject, body, err := Render(ev, recipient, m.baseURL)
	if err != nil {
		return err
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", recipient.Email)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)
	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send %s to user %d: %w", ev.Type, recipient.ID, err)
	}
	return nil
}

var emailTmpl = template.Must(template.New("reservation").Parse(`<div style="font-family: system-ui, sans-serif; max-width: 560px; margin: auto;">
<h2>{{.Heading}}</h2>
<p>Hi {{.Name}},</p>
<p><strong>Item:</strong> {{.Listing}}</p>
{{- if .Reason}}
<p><strong>Reason:</strong> {{.Reason}}</p>
{{- end}}
<p>{{.Body}}</p>
<p><a href="{{.Link}}">View booking status</a></p>
</div>`))

type emailData struct {
	Heading string
	Name    string
	Listing string
	Reason  string
	Body    string
	Link    string
}

// Render returns the subject and HTML body for ev.
func Render(ev queue.ReservationEvent, recipient model.User, baseURL string) (string, string, error) {
	d := emailData{
		Name:    recipient.Name,
		Listing: ev.ListingName,
		Link:    strings.TrimRight(baseURL, "/") + "/notifications",
	}
	if d.Name == "" {
		d.Name = recipient.Email
	}
	var subject string
	switch ev.Type {
	case queue.EventRequested:
		subject = fmt.Sprintf("New booking request for %s", ev.ListingName)
		d.Heading = "You have a new booking request"
		d.Body = "A buyer has booked your item. Approve or reject the request before the booking window ends."
	case queue.EventApproved:
		subject = fmt.Sprintf("Booking approved for %s", ev.ListingName)
		d.Heading = "Your booking has been approved"
		d.Body = "The seller approved your booking. Arrange the handover with them directly."
	case queue.EventRejected:
		subject = fmt.Sprintf("Booking rejected for %s", ev.ListingName)
		d.Heading = "Your booking has been rejected"
		d.Reason = ev.Reason
		d.Body = "The item stays available, so you can book it again."
	case queue.EventSold:
		subject = fmt.Sprintf("Purchase completed for %s", ev.ListingName)
		d.Heading = "Your purchase is complete"
		d.Body = "The seller marked the item as sold to you. You can now leave a review."
	default:
		return "", "", fmt.Errorf("no email template for event type %q", ev.Type)
	}
	var buf bytes.Buffer
	if err := emailTmpl.Execute(&buf, d); err != nil {
		return "", "", fmt.Errorf("render %s email: %w", ev.Type, err)
	}
	return subject, buf.String(), nil
}
