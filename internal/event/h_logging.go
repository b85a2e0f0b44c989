package event

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// LoggingActionLog escribe una línea de log.
const LoggingActionLog = "logging"

const defaultLogMessage = "event={event} triggered"

// LoggingHandler escribe un mensaje con tags en un logger con nombre.
type LoggingHandler struct {
	conditional
	log *zap.Logger
}

func (h *LoggingHandler) Kind() Kind { return KindLogging }

func (h *LoggingHandler) Actions() map[string]map[string]OptionSpec {
	return map[string]map[string]OptionSpec{
		LoggingActionLog: {
			"name":    {Type: "str", Description: "nombre del logger (default event)"},
			"level":   {Type: "str", Description: "DEBUG | INFO | WARN | ERROR"},
			"message": {Type: "str", Description: "mensaje con tags {serial}, {user}, ..."},
		},
	}
}

func (h *LoggingHandler) Do(ctx context.Context, action string, inv *Invocation) (bool, error) {
	if action != LoggingActionLog {
		return false, nil
	}
	name := inv.Option("name")
	if name == "" {
		name = "event"
	}
	msg := inv.Option("message")
	if msg == "" {
		msg = defaultLogMessage
	}
	tags := inv.Tags()
	msg = expandTags(msg, tags)

	l := h.log.Named(name).With(zap.String("serial", tags["serial"]), zap.String("event", inv.Event))
	switch strings.ToUpper(inv.Option("level")) {
	case "DEBUG":
		l.Debug(msg)
	case "WARN", "WARNING":
		l.Warn(msg)
	case "ERROR":
		l.Error(msg)
	default:
		l.Info(msg)
	}
	return true, nil
}
