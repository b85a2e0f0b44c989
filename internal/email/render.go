package email

import (
	"bytes"
	htemplate "html/template"
	ttemplate "text/template"
)

// Render ejecuta las plantillas de asunto, texto y HTML con data.
// Plantillas vacías producen strings vacíos.
func Render(subjectTmpl, textTmpl, htmlTmpl string, data any) (subject, text, html string, err error) {
	if subject, err = renderText("subject", subjectTmpl, data); err != nil {
		return "", "", "", err
	}
	if text, err = renderText("text", textTmpl, data); err != nil {
		return "", "", "", err
	}
	if htmlTmpl != "" {
		t, err := htemplate.New("html").Option("missingkey=zero").Parse(htmlTmpl)
		if err != nil {
			return "", "", "", err
		}
		var buf bytes.Buffer
		if err := t.Execute(&buf, data); err != nil {
			return "", "", "", err
		}
		html = buf.String()
	}
	return subject, text, html, nil
}

func renderText(name, tmpl string, data any) (string, error) {
	if tmpl == "" {
		return "", nil
	}
	t, err := ttemplate.New(name).Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
