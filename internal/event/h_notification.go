package event

import (
	"context"
	"errors"

	"github.com/dropDatabas3/tokenguard/internal/email"
	"github.com/dropDatabas3/tokenguard/internal/observability/logger"
	"github.com/dropDatabas3/tokenguard/internal/util"
)

// NotificationActionSendMail envía un email.
const NotificationActionSendMail = "sendmail"

const (
	defaultMailSubject = "Se disparó un evento en su token"
	defaultMailBody    = "Hola {{.user}},\n\nel evento {{.event}} se ejecutó sobre el token {{.serial}}.\n"
)

var errNoMailer = errors.New("notification handler: no mailer configured")

// NotificationHandler envía emails con plantillas sobre los tags del request.
type NotificationHandler struct {
	conditional
	mailer email.Sender
}

func (h *NotificationHandler) Kind() Kind { return KindUserNotification }

func (h *NotificationHandler) Actions() map[string]map[string]OptionSpec {
	return map[string]map[string]OptionSpec{
		NotificationActionSendMail: {
			"emailaddress": {Type: "str", Required: true, Description: "destinatario"},
			"subject":      {Type: "str", Description: "plantilla del asunto"},
			"body":         {Type: "text", Description: "plantilla del cuerpo"},
			"mimetype":     {Type: "str", Description: "plain | html"},
		},
	}
}

func (h *NotificationHandler) Do(ctx context.Context, action string, inv *Invocation) (bool, error) {
	if action != NotificationActionSendMail {
		return false, nil
	}
	to := expandTags(inv.Option("emailaddress"), inv.Tags())
	if to == "" {
		return false, nil
	}
	if h.mailer == nil {
		return false, errNoMailer
	}

	subject := inv.Option("subject")
	if subject == "" {
		subject = defaultMailSubject
	}
	body := inv.Option("body")
	if body == "" {
		body = defaultMailBody
	}
	textTmpl, htmlTmpl := body, ""
	if inv.Option("mimetype") == "html" {
		textTmpl, htmlTmpl = "", body
	}

	subj, text, html, err := email.Render(subject, textTmpl, htmlTmpl, inv.Tags())
	if err != nil {
		return false, err
	}
	if err := h.mailer.Send(ctx, to, subj, html, text); err != nil {
		return false, err
	}
	logger.From(ctx).Debug("notification sent", logger.String("to", util.MaskEmail(to)))
	return true, nil
}
