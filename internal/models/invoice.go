package models

type InvoiceStatus string
const (
	InvoicePending   InvoiceStatus = "pending"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

type Invoice struct {
	ID              int64         `json:"id"`
	Amount          int64         `json:"amount_cents"`
	Description     string        `json:"description,omitempty"`
	CreatorID       int64         `json:"creator_id"`
	CreatorUsername string        `json:"creator_username,omitempty"`
	Status          InvoiceStatus `json:"status"`
	Payload         string        `json:"payload,omitempty"`
	QRURL           string        `json:"qr_url,omitempty"`
}

// PaylinkInvoice is what /api/pay/preview resolves a signed paylink to.
type PaylinkInvoice struct {
	RecipientID       int64  `json:"recipient_id"`
	RecipientUsername string `json:"recipient_username"`
	Amount            int64  `json:"amount_cents"`
	AmountDisplay     string `json:"amount_display,omitempty"`
	Description       string `json:"description,omitempty"`
}

// QRCode is the result of /api/qr/create.
type QRCode struct {
	Paylink string
	PNG     []byte
}

type InvoiceRequest struct {
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

type TransferRequest struct {
	RecipientUsername string `json:"recipient_username"`
	Amount            string `json:"amount"`
	Description       string `json:"description"`
}
