package moneyforward

import (
	"billsync/internal/invoice"
)

type billingItem struct {
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Detail    string `json:"detail,omitempty"`
}

type billing struct {
	PartnerName   string        `json:"partner_name"`
	BillingNumber string        `json:"billing_number"`
	BillingDate   string        `json:"billing_date"`
	DueDate       string        `json:"due_date"`
	Title         string        `json:"title,omitempty"`
	Note          string        `json:"note,omitempty"`
	Items         []billingItem `json:"items"`
}

type billingRequest struct {
	Billing billing `json:"billing"`
}

const dateLayout = "2006-01-02"

// billingPayload converts an invoice into the API request body. The
// correlation key rides in billing_number so later runs can find the
// billing again.
func billingPayload(inv invoice.Invoice) billingRequest {
	items := make([]billingItem, 0, len(inv.Items))
	for _, item := range inv.Items {
		items = append(items, billingItem{
			Name:      item.Description,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return billingRequest{Billing: billing{
		PartnerName:   inv.Customer.Name,
		BillingNumber: inv.CorrelationKey,
		BillingDate:   inv.IssueDate.Format(dateLayout),
		DueDate:       inv.DueDate.Format(dateLayout),
		Note:          inv.Note,
		Items:         items,
	}}
}
