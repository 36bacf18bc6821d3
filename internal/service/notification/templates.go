package notification

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	texttmpl "text/template"
	"time"

	"identity-service/internal/domain"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*
var templateFS embed.FS

// Message is a rendered code email.
type Message struct {
	Subject string
	HTML    string
	Text    string
}

type TemplateService struct {
	appName  string
	validFor string
	html     map[domain.CodePurpose]*template.Template
	text     *texttmpl.Template
}

func NewTemplateService(appName string, codeTTL time.Duration) (*TemplateService, error) {
	t := &TemplateService{
		appName:  appName,
		validFor: humanDuration(codeTTL),
		html:     map[domain.CodePurpose]*template.Template{},
	}
	for _, purpose := range []domain.CodePurpose{domain.PurposeVerifyEmail, domain.PurposePasswordReset} {
		tmpl, err := template.ParseFS(templateFS, "templates/base.html", "templates/"+string(purpose)+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s email template: %w", purpose, err)
		}
		t.html[purpose] = tmpl
	}
	text, err := texttmpl.ParseFS(templateFS, "templates/code.txt")
	if err != nil {
		return nil, fmt.Errorf("parse text template: %w", err)
	}
	t.text = text
	return t, nil
}

func (t *TemplateService) Render(to, code string, purpose domain.CodePurpose) (*Message, error) {
	tmpl, ok := t.html[purpose]
	if !ok {
		return nil, fmt.Errorf("no template for purpose %q", purpose)
	}
	data := map[string]any{
		"To":       to,
		"Code":     code,
		"Heading":  formatPurpose(string(purpose)),
		"AppName":  t.appName,
		"ValidFor": t.validFor,
		"Year":     time.Now().Year(),
	}

	var html bytes.Buffer
	if err := tmpl.ExecuteTemplate(&html, "base.html", data); err != nil {
		return nil, fmt.Errorf("execute email template: %w", err)
	}
	var text bytes.Buffer
	if err := t.text.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("execute text template: %w", err)
	}

	return &Message{
		Subject: t.subject(purpose),
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}

func (t *TemplateService) subject(purpose domain.CodePurpose) string {
	if purpose == domain.PurposePasswordReset {
		return "Your Password Reset Code"
	}
	return fmt.Sprintf("Your %s Verification Code", t.appName)
}

func formatPurpose(purpose string) string {
	p := strings.ReplaceAll(purpose, "_", " ")
	return cases.Title(language.English).String(p)
}

func humanDuration(d time.Duration) string {
	switch {
	case d%time.Hour == 0 && d >= time.Hour:
		return plural(int(d/time.Hour), "hour")
	case d%time.Minute == 0 && d >= time.Minute:
		return plural(int(d/time.Minute), "minute")
	}
	return d.String()
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
