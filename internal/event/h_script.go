package event

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dropDatabas3/tokenguard/internal/observability/logger"
)

var errNoScriptDir = errors.New("script handler: no script directory configured")

// ScriptHandler ejecuta un script del directorio configurado. La acción es el
// nombre del archivo.
type ScriptHandler struct {
	conditional
	dir string
}

func (h *ScriptHandler) Kind() Kind { return KindScript }

// Actions lista los scripts del directorio.
func (h *ScriptHandler) Actions() map[string]map[string]OptionSpec {
	out := map[string]map[string]OptionSpec{}
	if h.dir == "" {
		return out
	}
	files, err := filepath.Glob(filepath.Join(h.dir, "*"))
	if err != nil {
		return out
	}
	for _, f := range files {
		out[filepath.Base(f)] = map[string]OptionSpec{
			"background":  {Type: "str", Description: "wait | background"},
			"raise_error": {Type: "bool", Description: "un exit code distinto de 0 corta el request"},
		}
	}
	return out
}

func (h *ScriptHandler) Do(ctx context.Context, action string, inv *Invocation) (bool, error) {
	if h.dir == "" {
		return false, errNoScriptDir
	}
	if action == "" || filepath.Base(action) != action || strings.HasPrefix(action, ".") {
		return false, fmt.Errorf("script handler: invalid script name %q", action)
	}
	path := filepath.Join(h.dir, action)
	tags := inv.Tags()
	args := []string{
		"--serial", tags["serial"],
		"--tokentype", tags["tokentype"],
		"--user", tags["user"],
		"--realm", tags["realm"],
		"--logged_in_role", tags["logged_in_role"],
	}
	log := logger.From(ctx).With(logger.Handler(KindScript.String()), logger.String("script", action))

	if inv.Option("background") == "background" {
		cmd := exec.Command(path, args...)
		if err := cmd.Start(); err != nil {
			return false, err
		}
		go func() {
			if err := cmd.Wait(); err != nil {
				log.Warn("background script failed", logger.Err(err))
			}
		}()
		return true, nil
	}

	out, err := exec.CommandContext(ctx, path, args...).CombinedOutput()
	if err != nil {
		log.Warn("script failed", logger.Err(err), logger.String("output", string(out)))
		if raise, _ := strconv.ParseBool(inv.Option("raise_error")); raise {
			return false, fmt.Errorf("script %s: %w", action, err)
		}
		return false, nil
	}
	log.Debug("script finished", logger.String("output", string(out)))
	return true, nil
}
