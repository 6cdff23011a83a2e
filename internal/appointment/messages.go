package appointment

import (
	"fmt"
	"strings"
	"text/template"
)

// MessageData is what status templates may reference.
type MessageData struct {
	PatientName string
	Date        string
	Time        string
	Total       string
}

var messageSources = map[string]map[Status]string{
	"en": {
		StatusPending:   `Hello {{.PatientName}}, we received your appointment request for {{.Date}} at {{.Time}}. We will confirm it shortly.`,
		StatusConfirmed: `Hello {{.PatientName}}, your appointment on {{.Date}} at {{.Time}} is confirmed.`,
		StatusCompleted: `Thank you for your visit on {{.Date}}, {{.PatientName}}. Total due: {{.Total}}.`,
		StatusCancelled: `Hello {{.PatientName}}, your appointment on {{.Date}} at {{.Time}} has been cancelled.`,
	},
	"ar": {
		StatusPending:   `مرحباً {{.PatientName}}، تم استلام طلب حجزك بتاريخ {{.Date}} الساعة {{.Time}} وسيتم تأكيده قريباً.`,
		StatusConfirmed: `مرحباً {{.PatientName}}، تم تأكيد موعدك بتاريخ {{.Date}} الساعة {{.Time}}.`,
		StatusCompleted: `شكراً لزيارتك بتاريخ {{.Date}} يا {{.PatientName}}. الإجمالي المستحق: {{.Total}}.`,
		StatusCancelled: `مرحباً {{.PatientName}}، تم إلغاء موعدك بتاريخ {{.Date}} الساعة {{.Time}}.`,
	},
}

var messageTemplates = mustParseMessages()

func mustParseMessages() map[string]map[Status]*template.Template {
	out := make(map[string]map[Status]*template.Template, len(messageSources))
	for lang, byStatus := range messageSources {
		out[lang] = make(map[Status]*template.Template, len(byStatus))
		for status, src := range byStatus {
			out[lang][status] = template.Must(template.New(lang + "." + string(status)).Parse(src))
		}
	}
	return out
}

// SupportedLanguage reports whether templates exist for lang.
func SupportedLanguage(lang string) bool {
	_, ok := messageTemplates[strings.ToLower(lang)]
	return ok
}

// RenderMessage renders the patient message for status. Unknown languages
// fall back to English.
func RenderMessage(lang string, status Status, data MessageData) (string, error) {
	byStatus, ok := messageTemplates[strings.ToLower(lang)]
	if !ok {
		byStatus = messageTemplates["en"]
	}
	tmpl, ok := byStatus[status]
	if !ok {
		return "", fmt.Errorf("no message template for status %q", status)
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render %s message: %w", status, err)
	}
	return sb.String(), nil
}
