package notifications

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/chainfundit/backend/models"
)

//go:embed templates/*.html
var templateFS embed.FS

var payoutEvents = []string{
	models.NotificationPayoutApproved,
	models.NotificationPayoutRejected,
	models.NotificationPayoutCompleted,
}

var payoutTemplates = mustParsePayoutTemplates()

func mustParsePayoutTemplates() map[string]*template.Template {
	parsed := make(map[string]*template.Template, len(payoutEvents))
	for _, event := range payoutEvents {
		parsed[event] = template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/"+event+".html"))
	}
	return parsed
}

type PayoutEmailData struct {
	Name         string
	Kind         string
	Currency     string
	Gross        string
	Fees         string
	Net          string
	AccountName  string
	BankName     string
	Notes        string
	ReceiptURL   string
	DashboardURL string
}

func NewPayoutEmailData(user *models.User, payout *models.Payout, dashboardURL string) PayoutEmailData {
	data := PayoutEmailData{
		Name:         user.FullName,
		Kind:         string(payout.Kind),
		Currency:     payout.Currency,
		Gross:        payout.GrossAmount.StringFixed(2),
		Fees:         payout.Fees.StringFixed(2),
		Net:          payout.NetAmount.StringFixed(2),
		AccountName:  payout.AccountName,
		BankName:     payout.BankName,
		DashboardURL: dashboardURL,
	}
	if payout.Notes != nil {
		data.Notes = *payout.Notes
	}
	return data
}

// RenderPayoutEmail builds the subject and HTML body for a payout event.
func RenderPayoutEmail(event string, data PayoutEmailData) (subject, html string, err error) {
	tmpl, ok := payoutTemplates[event]
	if !ok {
		return "", "", fmt.Errorf("no email template for event %q", event)
	}

	var subj, body bytes.Buffer
	if err := tmpl.ExecuteTemplate(&subj, "subject", data); err != nil {
		return "", "", err
	}
	if err := tmpl.ExecuteTemplate(&body, "layout", data); err != nil {
		return "", "", err
	}
	return strings.TrimSpace(subj.String()), body.String(), nil
}
