package api

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/workhours/overtime/overtime"
)

// Invite is what an invitation mail needs to say.
type Invite struct {
	Invitation   overtime.Invitation
	Organization string
	InvitedBy    string
}

// Mailer delivers invitation mails.
type Mailer interface {
	SendInvitation(ctx context.Context, invite Invite) error
}

var invitationHTML = template.Must(template.New("invitation").Parse(
	`<p>{{.InvitedBy}} invited you to join <strong>{{.Organization}}</strong> as {{.Role}} on Overtime.</p>
<p><a href="{{.URL}}">Open your invitations</a></p>`))

// SendGridMailer sends invitations through the SendGrid v3 API.
type SendGridMailer struct {
	client      *sendgrid.Client
	fromName    string
	fromAddress string
	appURL      string
}

func NewSendGridMailer(apiKey, fromName, fromAddress, appURL string) *SendGridMailer {
	return &SendGridMailer{
		client:      sendgrid.NewSendClient(apiKey),
		fromName:    fromName,
		fromAddress: fromAddress,
		appURL:      appURL,
	}
}

func (m *SendGridMailer) SendInvitation(ctx context.Context, invite Invite) error {
	data := struct {
		InvitedBy, Organization, Role, URL string
	}{
		InvitedBy:    invite.InvitedBy,
		Organization: invite.Organization,
		Role:         string(invite.Invitation.Role),
		URL:          m.appURL + "/invitations",
	}
	var html bytes.Buffer
	if err := invitationHTML.Execute(&html, data); err != nil {
		return fmt.Errorf("render invitation: %w", err)
	}
	text := fmt.Sprintf("%s invited you to join %s as %s on Overtime.\n\nOpen your invitations: %s\n",
		data.InvitedBy, data.Organization, data.Role, data.URL)

	from := mail.NewEmail(m.fromName, m.fromAddress)
	to := mail.NewEmail("", invite.Invitation.Email)
	message := mail.NewSingleEmail(from, "You are invited to "+invite.Organization, to, text, html.String())

	response, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send invitation via SendGrid: %w", err)
	}
	if response.StatusCode != http.StatusAccepted {
		return fmt.Errorf("unexpected SendGrid status code: %d, body: %s", response.StatusCode, response.Body)
	}
	return nil
}

// LogMailer only logs invitations. It is used when no SendGrid key is set.
type LogMailer struct {
	Logger *log.Logger
}

func (m LogMailer) SendInvitation(_ context.Context, invite Invite) error {
	m.Logger.Info("invitation mail not sent (mail disabled)",
		"org", invite.Organization, "email", invite.Invitation.Email, "invitation", invite.Invitation.ID)
	return nil
}
