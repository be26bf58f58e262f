package approval

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/Iridium40/roam-platform-sub004/internal/notify"
)

const approvalSubject = "Your business has been approved on ROAM"

var approvalHTML = template.Must(template.New("approval").Parse(`<!doctype html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2937;">
  <h2>Congratulations{{if .Name}}, {{.Name}}{{end}}!</h2>
  <p>{{if .BusinessName}}<strong>{{.BusinessName}}</strong>{{else}}Your business{{end}} has been approved on ROAM.</p>
  <p>Finish setting up your business to start accepting bookings:</p>
  <p><a href="{{.URL}}" style="background:#2563eb;color:#fff;padding:12px 20px;border-radius:6px;text-decoration:none;">Continue onboarding</a></p>
  <p style="font-size: 13px; color: #6b7280;">This link expires on {{.Expires}}. If the button does not work, paste this address into your browser:<br>{{.URL}}</p>
</body>
</html>`))

type approvalEmail struct {
	To           string
	Name         string
	BusinessName string
	URL          string
	ExpiresAt    time.Time
}

func renderApprovalEmail(e approvalEmail) (notify.Message, error) {
	data := struct {
		Name, BusinessName, URL, Expires string
	}{e.Name, e.BusinessName, e.URL, e.ExpiresAt.UTC().Format("January 2, 2006 at 15:04 MST")}

	var html bytes.Buffer
	if err := approvalHTML.Execute(&html, data); err != nil {
		return notify.Message{}, fmt.Errorf("render approval email: %w", err)
	}

	greeting := "Hello"
	if e.Name != "" {
		greeting += " " + e.Name
	}
	text := fmt.Sprintf("%s,\n\nYour business has been approved on ROAM.\nContinue onboarding: %s\n\nThis link expires on %s.\n",
		greeting, e.URL, data.Expires)

	return notify.Message{
		To:      e.To,
		ToName:  e.Name,
		Subject: approvalSubject,
		HTML:    html.String(),
		Text:    text,
	}, nil
}
