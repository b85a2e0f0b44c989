package event

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dropDatabas3/tokenguard/internal/observability/logger"
)

// WebHookActionPost hace un POST a la URL configurada.
const WebHookActionPost = "post_webhook"

// WebHookHandler notifica a un servicio externo.
type WebHookHandler struct {
	conditional
	client *http.Client
}

func (h *WebHookHandler) Kind() Kind { return KindWebHook }

func (h *WebHookHandler) Actions() map[string]map[string]OptionSpec {
	return map[string]map[string]OptionSpec{
		WebHookActionPost: {
			"URL":          {Type: "str", Required: true, Description: "destino"},
			"content_type": {Type: "str", Description: "json | urlencoded"},
			"data":         {Type: "str", Description: "cuerpo con tags; vacío envía todos los tags"},
		},
	}
}

// Do retorna error solo ante fallas de transporte; un status >= 400 es false.
func (h *WebHookHandler) Do(ctx context.Context, action string, inv *Invocation) (bool, error) {
	if action != WebHookActionPost {
		return false, nil
	}
	target := inv.Option("URL")
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false, fmt.Errorf("webhook: invalid URL %q", target)
	}

	tags := inv.Tags()
	data := inv.Option("data")
	var body, ctype string
	if inv.Option("content_type") == "urlencoded" {
		ctype = "application/x-www-form-urlencoded"
		if data != "" {
			body = expandTags(data, tags)
		} else {
			v := url.Values{}
			for k, val := range tags {
				v.Set(k, val)
			}
			body = v.Encode()
		}
	} else {
		ctype = "application/json"
		if data != "" {
			body = expandTags(data, tags)
		} else {
			b, err := json.Marshal(tags)
			if err != nil {
				return false, err
			}
			body = string(b)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", ctype)
	resp, err := h.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 400 {
		logger.From(ctx).Warn("webhook rejected",
			logger.String("url", u.Redacted()), logger.Status(resp.StatusCode))
		return false, nil
	}
	return true, nil
}
