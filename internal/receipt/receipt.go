// Package receipt renders the human-readable confirmation document a
// customer can download after submitting a return request.
package receipt

import (
	"html/template"
	"io"
	"strings"

	"github.com/returnlab/portal/internal/repository"
	"github.com/returnlab/portal/internal/wizard"
)

type viewModel struct {
	ReferenceNumber string
	SubmittedAt     string
	StoreName       string
	OrderNumber     string
	OrderTotal      string
	OrderCurrency   string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	Form            *wizard.FormData
	AttachmentCount int
	Status          string
}

// ReferenceNumber derives the short reference shown to customers: the first
// eight characters of the request id, upper-cased.
func ReferenceNumber(req *repository.ReturnRequest) string {
	id := req.ID.String()
	if len(id) > 8 {
		id = id[:8]
	}
	return strings.ToUpper(id)
}

// Render writes the receipt HTML for one return request.
func Render(w io.Writer, req *repository.ReturnRequest, storeName string) error {
	form, err := wizard.Parse(req.FormData)
	if err != nil {
		form = &wizard.FormData{SchemaVersion: wizard.CurrentSchemaVersion}
	}

	name := req.CustomerName
	if name == "" {
		name = form.FullName
	}

	vm := viewModel{
		ReferenceNumber: ReferenceNumber(req),
		SubmittedAt:     req.CreatedAt.Format("January 2, 2006 15:04"),
		StoreName:       storeName,
		OrderNumber:     req.OrderNumber,
		OrderTotal:      req.OrderTotal,
		OrderCurrency:   req.OrderCurrency,
		CustomerName:    name,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		Form:            form,
		AttachmentCount: len(req.Attachments),
		Status:          req.Status,
	}
	return receiptTmpl.Execute(w, vm)
}

var receiptTmpl = template.Must(template.New("receipt").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>Return Request Receipt - {{.ReferenceNumber}}</title>
  <style>
    body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; padding: 40px; color: #1a1a2e; line-height: 1.6; }
    .container { max-width: 800px; margin: 0 auto; }
    .header { text-align: center; margin-bottom: 40px; padding-bottom: 20px; border-bottom: 3px solid #6C63FF; }
    .ref-number { background: #f0f0f0; padding: 15px; border-radius: 8px; margin: 20px 0; text-align: center; }
    .ref-number strong { font-size: 20px; color: #6C63FF; }
    .section { margin: 30px 0; padding: 20px; background: #f8f9fa; border-radius: 8px; }
    .section h2 { color: #6C63FF; margin-bottom: 15px; font-size: 18px; border-bottom: 2px solid #e0e0e0; padding-bottom: 10px; }
    .info-row { display: flex; padding: 8px 0; border-bottom: 1px solid #e0e0e0; }
    .info-row:last-child { border-bottom: none; }
    .info-label { font-weight: 600; width: 220px; }
    .footer { margin-top: 40px; text-align: center; font-size: 13px; color: #666; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">
      <h1>Return Request Receipt</h1>
    </div>

    <div class="ref-number">
      Reference Number: <strong>{{.ReferenceNumber}}</strong><br>
      Submitted: {{.SubmittedAt}}
    </div>

    <div class="section">
      <h2>Order</h2>
      <div class="info-row"><span class="info-label">Store</span><span>{{.StoreName}}</span></div>
      <div class="info-row"><span class="info-label">Order Number</span><span>{{.OrderNumber}}</span></div>
      <div class="info-row"><span class="info-label">Order Total</span><span>{{.OrderTotal}} {{.OrderCurrency}}</span></div>
      <div class="info-row"><span class="info-label">Status</span><span>{{.Status}}</span></div>
    </div>

    <div class="section">
      <h2>Customer</h2>
      <div class="info-row"><span class="info-label">Name</span><span>{{.CustomerName}}</span></div>
      <div class="info-row"><span class="info-label">Email</span><span>{{.CustomerEmail}}</span></div>
      {{if .CustomerPhone}}<div class="info-row"><span class="info-label">Phone</span><span>{{.CustomerPhone}}</span></div>{{end}}
    </div>

    <div class="section">
      <h2>Return Details</h2>
      <div class="info-row"><span class="info-label">Reason</span><span>{{.Form.Reason}}</span></div>
      <div class="info-row"><span class="info-label">Description</span><span>{{.Form.Description}}</span></div>
      {{if .Form.ReceiveDate}}<div class="info-row"><span class="info-label">Received On</span><span>{{.Form.ReceiveDate}}</span></div>{{end}}
      {{if .Form.WhenNoticed}}<div class="info-row"><span class="info-label">Issue Noticed</span><span>{{.Form.WhenNoticed}}</span></div>{{end}}
      <div class="info-row"><span class="info-label">Requested Resolution</span><span>{{.Form.ResolutionType}}</span></div>
      {{if .Form.AdditionalComments}}<div class="info-row"><span class="info-label">Comments</span><span>{{.Form.AdditionalComments}}</span></div>{{end}}
      <div class="info-row"><span class="info-label">Attachments</span><span>{{.AttachmentCount}} file(s)</span></div>
    </div>

    <div class="section">
      <h2>Return Address</h2>
      <div class="info-row"><span class="info-label">Address</span><span>{{.Form.Address.Line1}}{{if .Form.Address.Line2}}, {{.Form.Address.Line2}}{{end}}</span></div>
      <div class="info-row"><span class="info-label">City / State</span><span>{{.Form.Address.City}} / {{.Form.Address.State}}</span></div>
      <div class="info-row"><span class="info-label">Zip / Country</span><span>{{.Form.Address.Zip}} / {{.Form.Address.Country}}</span></div>
    </div>

    <div class="footer">
      Keep this receipt for your records. Our team reviews return requests in the order
      they are received and will contact you by email once a decision is made.
    </div>
  </div>
</body>
</html>
`))
