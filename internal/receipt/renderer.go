// Package receipt renders sale documents for printing and email delivery.
package receipt

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/anjiru/duka-pos/internal/billing"
)

// Line is one printed row on the receipt.
type Line struct {
	Description string
	Quantity    int32
	UnitPrice   int64
	LineTotal   int64
}

// Data carries everything the template needs for one document.
type Data struct {
	StoreName    string
	LogoURL      string
	Reference    string
	IssuedAt     time.Time
	CustomerName string
	Contact      string
	ServedBy     string
	PaymentMode  string
	Items        []Line
	Summary      billing.Summary
	Notes        string
}

// Renderer turns a computed summary plus metadata into an HTML receipt.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the embedded template once.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("receipt").Funcs(template.FuncMap{
		"money": formatMoney,
	}).Parse(receiptTemplate)
	if err != nil {
		return nil, fmt.Errorf("receipt: parse template: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render produces the HTML document. The VAT line is labelled "(included)"
// for tax-inclusive sales and carries a leading "+" otherwise; Balance Due is
// shown prominently only when non-zero.
func (r *Renderer) Render(data Data) (string, error) {
	if strings.TrimSpace(data.StoreName) == "" {
		data.StoreName = "Duka"
	}
	if data.IssuedAt.IsZero() {
		data.IssuedAt = time.Now()
	}
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, templateContext{
		Data:     data,
		VATLabel: vatLabel(data.Summary.TaxInclusive),
		When:     data.IssuedAt.Format("02 Jan 2006 15:04"),
	}); err != nil {
		return "", fmt.Errorf("receipt: render: %w", err)
	}
	return buf.String(), nil
}

type templateContext struct {
	Data     Data
	VATLabel template.HTML
	When     string
}

// vatLabel is trusted static markup; returning template.HTML keeps the
// escaper from turning the leading "+" into an entity.
func vatLabel(inclusive bool) template.HTML {
	if inclusive {
		return "VAT 16% (included)"
	}
	return "+ VAT 16%"
}

// formatMoney prints whole shillings with thousands separators.
func formatMoney(v int64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := fmt.Sprintf("%d", v)
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	out := "KES " + strings.Join(parts, ",")
	if neg {
		return "-" + out
	}
	return out
}

const receiptTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Data.StoreName}} — {{.Data.Reference}}</title></head>
<body style="font-family: monospace; max-width: 420px; margin: 0 auto;">
  {{if .Data.LogoURL}}<img src="{{.Data.LogoURL}}" alt="{{.Data.StoreName}}" style="max-height:64px"/>{{end}}
  <h2>{{.Data.StoreName}}</h2>
  {{if .Data.Reference}}<p>Receipt <strong>{{.Data.Reference}}</strong></p>{{end}}
  <p>{{.When}}</p>
  {{if .Data.CustomerName}}<p>Customer: {{.Data.CustomerName}}{{if .Data.Contact}} ({{.Data.Contact}}){{end}}</p>{{end}}
  {{if .Data.ServedBy}}<p>Served by: {{.Data.ServedBy}}</p>{{end}}
  <hr/>
  <table style="width:100%">
    {{range .Data.Items}}
    <tr>
      <td>{{.Description}} x{{.Quantity}}</td>
      <td style="text-align:right">{{money .LineTotal}}</td>
    </tr>
    {{end}}
  </table>
  <hr/>
  <table style="width:100%">
    <tr><td>Subtotal</td><td style="text-align:right">{{money .Data.Summary.Subtotal}}</td></tr>
    {{if .Data.Summary.DeliveryFee}}<tr><td>Delivery</td><td style="text-align:right">{{money .Data.Summary.DeliveryFee}}</td></tr>{{end}}
    {{if .Data.Summary.DiscountAmount}}<tr><td>Discount</td><td style="text-align:right">-{{money .Data.Summary.DiscountAmount}}</td></tr>{{end}}
    <tr><td>{{.VATLabel}}</td><td style="text-align:right">{{money .Data.Summary.TaxAmount}}</td></tr>
    <tr><td><strong>Total</strong></td><td style="text-align:right"><strong>{{money .Data.Summary.Total}}</strong></td></tr>
    {{if .Data.Summary.DepositAmount}}<tr><td>Paid</td><td style="text-align:right">{{money .Data.Summary.DepositAmount}}</td></tr>{{end}}
  </table>
  {{if .Data.Summary.Balance}}
  <h3 style="border:2px solid #000; padding:8px; text-align:center">BALANCE DUE: {{money .Data.Summary.Balance}}</h3>
  {{end}}
  {{if .Data.PaymentMode}}<p>Paid via {{.Data.PaymentMode}}</p>{{end}}
  {{if .Data.Notes}}<p>{{.Data.Notes}}</p>{{end}}
  <p style="text-align:center">Thank you for your business!</p>
</body>
</html>`
