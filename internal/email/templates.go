package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	texttemplate "text/template"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

// Content is a rendered email ready for a Dispatcher.
type Content struct {
	Subject string
	HTML    string
	Text    string
}

type baseEmailData struct {
	Title      string
	Heading    string
	Subheading string
	CTALabel   string
	CTAURL     string
}

// QuoteStatusChangedData fills the status change notification.
type QuoteStatusChangedData struct {
	QuoteReference   string
	OrganizationName string
	ContactName      string
	PreviousStatus   string
	NewStatus        string
	AmountCents      *int64
	QuoteURL         string
}

// ClientWelcomeData fills the welcome email for a new client account.
type ClientWelcomeData struct {
	FirstName         string
	OrganizationName  string
	Email             string
	TemporaryPassword string
	LoginURL          string
}

type quoteStatusChangedEmailData struct {
	baseEmailData
	QuoteStatusChangedData
	PreviousLabel   string
	NewLabel        string
	AmountFormatted string
}

type clientWelcomeEmailData struct {
	baseEmailData
	ClientWelcomeData
}

var statusLabels = map[string]string{
	"uploaded": "geüpload",
	"sent":     "verzonden",
	"accepted": "geaccepteerd",
	"rejected": "afgewezen",
}

func statusLabel(status string) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return status
}

// RenderQuoteStatusChanged renders the notification sent to quotation stakeholders.
func RenderQuoteStatusChanged(data QuoteStatusChangedData) (Content, error) {
	title := fmt.Sprintf("Offerte %s", statusLabel(data.NewStatus))
	view := quoteStatusChangedEmailData{
		baseEmailData: baseEmailData{
			Title:    title,
			Heading:  title,
			CTALabel: "Bekijk offerte",
			CTAURL:   data.QuoteURL,
		},
		QuoteStatusChangedData: data,
		PreviousLabel:          statusLabel(data.PreviousStatus),
		NewLabel:               statusLabel(data.NewStatus),
	}
	if data.AmountCents != nil {
		view.AmountFormatted = formatCurrencyEUR(*data.AmountCents)
	}
	return render("quote_status_changed",
		fmt.Sprintf(subjectQuoteStatusChangedFmt, data.QuoteReference, statusLabel(data.NewStatus)), view)
}

// RenderClientWelcome renders the welcome email carrying the temporary password.
func RenderClientWelcome(data ClientWelcomeData) (Content, error) {
	view := clientWelcomeEmailData{
		baseEmailData: baseEmailData{
			Title:    "Welkom in het klantportaal",
			Heading:  "Welkom in het klantportaal",
			CTALabel: "Inloggen",
			CTAURL:   data.LoginURL,
		},
		ClientWelcomeData: data,
	}
	return render("client_welcome", fmt.Sprintf(subjectClientWelcomeFmt, data.OrganizationName), view)
}

func render(name, subject string, data any) (Content, error) {
	html, err := renderEmailTemplate(name+".html", data)
	if err != nil {
		return Content{}, err
	}
	text, err := renderTextTemplate(name+".txt", data)
	if err != nil {
		return Content{}, err
	}
	return Content{Subject: subject, HTML: html, Text: text}, nil
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}

func renderTextTemplate(name string, data any) (string, error) {
	tmpl, err := texttemplate.ParseFS(templateFS, "templates/"+name)
	if err != nil {
		return "", fmt.Errorf("parse text template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute text template %s: %w", name, err)
	}
	return buf.String(), nil
}

func formatCurrencyEUR(cents int64) string {
	sign := ""
	if cents < 0 {
		sign, cents = "-", -cents
	}
	return fmt.Sprintf("%s€%d,%02d", sign, cents/100, cents%100)
}
