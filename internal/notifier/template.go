package notifier

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"wisefido-sos/internal/models"
)

// Message 渲染后的通知内容
type Message struct {
	AlertID        string
	PatientID      string
	Severity       models.Severity
	Category       models.Category
	CallbackNumber string
	Subject        string
	Body           string
	CreatedAt      time.Time
}

// TemplateData 模板数据
type TemplateData struct {
	AlertID             string
	PatientID           string
	PatientName         string
	Severity            models.Severity
	Category            models.Category
	ResponseTimeSeconds int
	CallbackNumber      string
	CreatedAt           time.Time
}

var subjectTemplate = template.Must(template.New("subject").Parse(
	`[{{.Severity}}] {{.Category}} alert for {{.PatientName}}`))

var templateFuncs = template.FuncMap{"minutes": formatResponseTime}

var bodyTemplates = map[models.Severity]*template.Template{
	models.SeverityCritical: bodyTemplate("critical",
		`EMERGENCY: {{.PatientName}} may need immediate help ({{.Category}}). `+
			`Please respond within {{minutes .ResponseTimeSeconds}}. `+
			`{{if .CallbackNumber}}Call back: {{.CallbackNumber}}. {{end}}Ref: {{.AlertID}}`),
	models.SeverityHigh: bodyTemplate("high",
		`URGENT: {{.PatientName}} reported a possible {{.Category}} emergency. `+
			`Please check in within {{minutes .ResponseTimeSeconds}}. `+
			`{{if .CallbackNumber}}Call back: {{.CallbackNumber}}. {{end}}Ref: {{.AlertID}}`),
	models.SeverityMedium: bodyTemplate("medium",
		`{{.PatientName}} mentioned a {{.Category}} concern during a call. `+
			`Please follow up within {{minutes .ResponseTimeSeconds}}. `+
			`{{if .CallbackNumber}}Call back: {{.CallbackNumber}}. {{end}}Ref: {{.AlertID}}`),
}

func bodyTemplate(name, text string) *template.Template {
	return template.Must(template.New(name).Funcs(templateFuncs).Parse(text))
}

// Render 按紧急程度渲染通知
func Render(data TemplateData) (Message, error) {
	if data.PatientName == "" {
		data.PatientName = data.PatientID
	}
	tmpl, ok := bodyTemplates[data.Severity]
	if !ok {
		return Message{}, fmt.Errorf("no notification template for severity %q", data.Severity)
	}

	var subject, body bytes.Buffer
	if err := subjectTemplate.Execute(&subject, data); err != nil {
		return Message{}, fmt.Errorf("failed to render subject: %w", err)
	}
	if err := tmpl.Execute(&body, data); err != nil {
		return Message{}, fmt.Errorf("failed to render body: %w", err)
	}

	return Message{
		AlertID:        data.AlertID,
		PatientID:      data.PatientID,
		Severity:       data.Severity,
		Category:       data.Category,
		CallbackNumber: data.CallbackNumber,
		Subject:        subject.String(),
		Body:           body.String(),
		CreatedAt:      data.CreatedAt,
	}, nil
}

func formatResponseTime(seconds int) string {
	switch {
	case seconds <= 0:
		return "as soon as possible"
	case seconds < 60:
		return fmt.Sprintf("%d seconds", seconds)
	case seconds == 60:
		return "1 minute"
	default:
		return fmt.Sprintf("%d minutes", seconds/60)
	}
}
