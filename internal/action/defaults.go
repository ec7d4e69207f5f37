package action

import (
	"net/http"
	"time"

	"github.com/roach88/contentflow/internal/content"
)

// Dependencies are the collaborators of the built-in handlers.
type Dependencies struct {
	Mailer     Mailer
	MailFrom   string
	SMS        SMSSender
	HTTPClient *http.Client
	Store      content.EventStore
	IDs        content.IDGenerator
	Now        func() time.Time
}

// NewDefaultRegistry registers Email, SMS, Webhook, CreateTask, UpdateField
// and Conditional. Missing notifiers fall back to log-only implementations.
func NewDefaultRegistry(deps Dependencies) *Registry {
	if deps.Mailer == nil {
		deps.Mailer = LogMailer{}
	}
	if deps.SMS == nil {
		deps.SMS = LogSMSSender{}
	}
	if deps.IDs == nil {
		deps.IDs = content.UUIDv7Generator{}
	}

	r := NewRegistry()
	r.MustRegister(&EmailHandler{Mailer: deps.Mailer, From: deps.MailFrom})
	r.MustRegister(&SMSHandler{Sender: deps.SMS})
	r.MustRegister(&WebhookHandler{Client: deps.HTTPClient})
	r.MustRegister(&CreateTaskHandler{Store: deps.Store, IDs: deps.IDs, Now: deps.Now})
	r.MustRegister(&UpdateFieldHandler{Store: deps.Store, Now: deps.Now})
	r.MustRegister(&ConditionalHandler{})
	return r
}
