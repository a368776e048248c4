// Package notify announces new job orders to configured destinations (webhooks, email)
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/notify"

	"github.com/umputun/jobord/app/joborder"
)

const defaultTemplate = `New job order {{.Serial}} for {{.Client}}
Item: {{.Item}}
{{- if .DeliveryDate}}
Delivery: {{.DeliveryDate}}{{end}}
{{- if .EnteredBy}}
Entered by: {{.EnteredBy}}{{end}}
{{- if .Link}}
{{.Link}}{{end}}
`

// Params defines notification service
type Params struct {
	Destinations []string      // http(s):// webhooks and mailto: addresses
	Timeout      time.Duration // per notification
	Template     string        // optional template file, default template used if empty or broken
	BaseURL      string        // public address of the web UI, used for print links
	SMTP         SMTPParams
}

// SMTPParams defines email delivery, used for mailto: destinations only
type SMTPParams struct {
	Host     string
	Port     int
	TLS      bool
	Username string
	Password string
	From     string
}

// Service sends new job order announcements
type Service struct {
	Params
	notifiers []notify.Notifier
	tmpl      *template.Template
}

// NewService makes notification service, returns nil if there are no destinations
func NewService(p Params) *Service {
	if len(p.Destinations) == 0 {
		return nil
	}
	if p.Timeout == 0 {
		p.Timeout = 10 * time.Second
	}

	res := &Service{Params: p}
	res.notifiers = append(res.notifiers, notify.NewWebhook(notify.WebhookParams{Timeout: p.Timeout}))
	if p.SMTP.Host != "" {
		res.notifiers = append(res.notifiers, notify.NewEmail(notify.SMTPParams{
			Host:        p.SMTP.Host,
			Port:        p.SMTP.Port,
			TLS:         p.SMTP.TLS,
			Username:    p.SMTP.Username,
			Password:    p.SMTP.Password,
			TimeOut:     p.Timeout,
			ContentType: "text/plain",
			Charset:     "UTF-8",
		}))
	}
	res.tmpl = res.loadTemplate()
	log.Printf("[INFO] notifications enabled for %d destination(s)", len(p.Destinations))
	return res
}

// OnCreated sends announcement of the created job order to all destinations.
// Every destination is tried, errors are combined.
func (s *Service) OnCreated(ctx context.Context, rec joborder.Record) error {
	text, err := s.MakeText(rec)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	var errs []error
	for _, dest := range s.Destinations {
		if err := notify.Send(ctx, s.notifiers, s.destination(dest, rec), text); err != nil {
			errs = append(errs, fmt.Errorf("failed to notify %s: %w", s.redact(dest), err))
		}
	}
	return errors.Join(errs...)
}

// MakeText renders announcement text for the record
func (s *Service) MakeText(rec joborder.Record) (string, error) {
	data := struct {
		joborder.Record
		Serial string
		Link   string
	}{Record: rec, Serial: rec.Serial()}
	if s.BaseURL != "" && rec.ID != "" {
		data.Link = strings.TrimSuffix(s.BaseURL, "/") + "/job-orders/" + rec.ID + "/print"
	}

	buf := bytes.Buffer{}
	if err := s.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to apply template: %w", err)
	}
	return buf.String(), nil
}

// destination adds subject and sender to mailto: destinations which don't have them
func (s *Service) destination(dest string, rec joborder.Record) string {
	if !strings.HasPrefix(dest, "mailto:") || strings.Contains(dest, "?") {
		return dest
	}
	params := []string{"subject=" + strings.ReplaceAll(fmt.Sprintf("Job order %s", rec.Serial()), " ", "%20")}
	if s.SMTP.From != "" {
		params = append(params, "from="+s.SMTP.From)
	}
	return dest + "?" + strings.Join(params, "&")
}

// redact removes query (may hold tokens) from destination for logging
func (s *Service) redact(dest string) string {
	if idx := strings.Index(dest, "?"); idx > 0 {
		return dest[:idx]
	}
	return dest
}

func (s *Service) loadTemplate() *template.Template {
	def := template.Must(template.New("msg").Parse(defaultTemplate))
	if s.Template == "" {
		return def
	}
	data, err := os.ReadFile(s.Template)
	if err != nil {
		log.Printf("[WARN] can't read notification template %s, using default: %v", s.Template, err)
		return def
	}
	t, err := template.New("msg").Parse(string(data))
	if err != nil {
		log.Printf("[WARN] can't parse notification template %s, using default: %v", s.Template, err)
		return def
	}
	return t
}
