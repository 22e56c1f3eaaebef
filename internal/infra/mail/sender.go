package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/xavierca1/lead-relay/internal/entity"
)

//go:embed templates/*.html
var templates embed.FS

var failedLeadTemplate = template.Must(template.ParseFS(templates, "templates/failed_lead.html"))

func NewEmailSender(host string, port int, user, password, from string, to []string) *EmailSender {
	return &EmailSender{
		Dialer: gomail.NewDialer(host, port, user, password),
		From:   from,
		To:     to,
	}
}

// NotifyFailure emails an alert about a lead that landed in the failed store.
func (s *EmailSender) NotifyFailure(_ context.Context, lead entity.FailedLead) error {
	if len(s.To) == 0 {
		return nil
	}

	m, err := s.failedLeadMessage(lead)
	if err != nil {
		return err
	}
	if err := s.Dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("sending failed lead alert: %w", err)
	}
	return nil
}

func (s *EmailSender) failedLeadMessage(lead entity.FailedLead) (*gomail.Message, error) {
	body, err := RenderFailedLead(lead)
	if err != nil {
		return nil, err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", s.To...)
	m.SetHeader("Subject", fmt.Sprintf("[lead-relay] %s for lead #%d (%s)", lead.ErrorType, lead.ID, lead.Channel))
	m.SetBody("text/html", body)
	return m, nil
}

func RenderFailedLead(lead entity.FailedLead) (string, error) {
	data := FailedLeadEmailData{
		ID:        lead.ID,
		RequestID: lead.RequestID,
		Channel:   string(lead.Channel),
		ErrorType: lead.ErrorType,
		Error:     lead.Error,
		Status:    lead.Status,
		Response:  lead.Response,
		Name:      strings.TrimSpace(lead.Lead.Get(entity.FieldFirstname) + " " + lead.Lead.Get(entity.FieldLastname)),
		Campaign:  lead.Lead.Get(entity.FieldCampaignName),
		Source:    lead.Lead.Get(entity.FieldCampaignSource),
		When:      lead.Timestamp.Format("2006-01-02 15:04:05 MST"),
	}

	var body bytes.Buffer
	if err := failedLeadTemplate.Execute(&body, data); err != nil {
		return "", fmt.Errorf("rendering failed lead alert: %w", err)
	}
	return body.String(), nil
}
