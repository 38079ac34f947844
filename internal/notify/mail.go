package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/usnistgov/NEMO-custom-forms/internal/model"
)

// Message is an outgoing email
type Message struct {
	Subject string
	Body    string
	To      []string
	BCC     []string
}

// Mailer delivers messages
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of sending them
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer creates a mailer that logs every message at info level
func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger}
}

// Send implements Mailer
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("email",
		zap.String("subject", msg.Subject),
		zap.Strings("to", msg.To),
		zap.Strings("bcc", msg.BCC),
		zap.Int("body_length", len(msg.Body)))
	return nil
}

func title(form *model.Form) string {
	number := form.Number()
	if number == "" {
		number = strconv.FormatUint(uint64(form.ID), 10)
	}
	name := ""
	if form.Template != nil {
		name = form.Template.Name
	}
	return fmt.Sprintf("%s #%s", name, number)
}

func emails(users []model.User) []string {
	var out []string
	for _, u := range users {
		if e := strings.TrimSpace(u.Email); e != "" {
			out = append(out, e)
		}
	}
	return out
}

func templateName(form *model.Form) string {
	if form.Template == nil {
		return "form"
	}
	return form.Template.Name
}

// ReceivedMessage confirms a new submission to its creator
func ReceivedMessage(form *model.Form) *Message {
	if form.Creator == nil || form.Creator.Email == "" {
		return nil
	}
	return &Message{
		Subject: title(form) + " has been received",
		Body: fmt.Sprintf("Dear %s,\n\nThank you for submitting a new %s.\n\nYou can follow its status from the forms page.\n",
			form.Creator.FirstName, templateName(form)),
		To: []string{form.Creator.Email},
	}
}

// ActionRequiredMessage asks the next action candidates to act
func ActionRequiredMessage(form *model.Form, candidates []model.User) *Message {
	to := emails(candidates)
	if len(to) == 0 {
		return nil
	}
	return &Message{
		Subject: title(form) + ": action required",
		Body:    fmt.Sprintf("Please take the next action for this %s.\n", templateName(form)),
		To:      to,
	}
}

// StatusUpdateMessage tells the creator that an action was completed. The
// action's cc list is copied in bcc.
func StatusUpdateMessage(form *model.Form, action *model.Action, record *model.ActionRecord) *Message {
	if form.Creator == nil || form.Creator.Email == "" {
		return nil
	}
	total := 0
	if form.Template != nil {
		total = len(form.Template.Actions)
	}
	actor := ""
	if record.Actor != nil {
		actor = record.Actor.FirstName
		if actor == "" {
			actor = record.Actor.DisplayName()
		}
	}
	return &Message{
		Subject: fmt.Sprintf("%s: status update (%d of %d)", title(form), len(form.Records), total),
		Body: fmt.Sprintf("Dear %s,\n\n%s has completed the following action: %s.\n\nYou can follow the status of your %s from the forms page.\n",
			form.Creator.FirstName, actor, action.DisplayName(), templateName(form)),
		To:  []string{form.Creator.Email},
		BCC: append([]string(nil), action.CC...),
	}
}
