package payos

import "encoding/json"

// Link statuses reported by GetPaymentLinkInfo.
const (
	LinkStatusPending    = "PENDING"
	LinkStatusProcessing = "PROCESSING"
	LinkStatusPaid       = "PAID"
	LinkStatusCancelled  = "CANCELLED"
	LinkStatusExpired    = "EXPIRED"
	LinkStatusUnderpaid  = "UNDERPAID"
	LinkStatusFailed     = "FAILED"
)

// CodeSuccess is the gateway's success code in responses and webhooks.
const CodeSuccess = "00"

// MaxDescriptionLength is the longest description PayOS accepts for a link.
const MaxDescriptionLength = 25

// Item is one line shown on the gateway checkout page.
type Item struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

// CreatePaymentLinkRequest describes a new payment link.
type CreatePaymentLinkRequest struct {
	OrderCode    int64  `json:"orderCode"`
	Amount       int64  `json:"amount"`
	Description  string `json:"description"`
	ReturnURL    string `json:"returnUrl"`
	CancelURL    string `json:"cancelUrl"`
	Items        []Item `json:"items,omitempty"`
	BuyerName    string `json:"buyerName,omitempty"`
	BuyerPhone   string `json:"buyerPhone,omitempty"`
	BuyerAddress string `json:"buyerAddress,omitempty"`
	ExpiredAt    *int64 `json:"expiredAt,omitempty"`
	Signature    string `json:"signature"`
}

// PaymentLink is the gateway response to a created link.
type PaymentLink struct {
	Bin           string          `json:"bin"`
	AccountNumber string          `json:"accountNumber"`
	AccountName   string          `json:"accountName"`
	Amount        int64           `json:"amount"`
	Description   string          `json:"description"`
	OrderCode     int64           `json:"orderCode"`
	Currency      string          `json:"currency"`
	PaymentLinkID string          `json:"paymentLinkId"`
	Status        string          `json:"status"`
	CheckoutURL   string          `json:"checkoutUrl"`
	QRCode        string          `json:"qrCode"`
	Raw           json.RawMessage `json:"-"`
}

// Transaction is a bank transfer recorded against a link.
type Transaction struct {
	Reference           string `json:"reference"`
	Amount              int64  `json:"amount"`
	AccountNumber       string `json:"accountNumber"`
	Description         string `json:"description"`
	TransactionDateTime string `json:"transactionDateTime"`
}

// PaymentLinkInfo is the current state of a link.
type PaymentLinkInfo struct {
	ID                 string          `json:"id"`
	OrderCode          int64           `json:"orderCode"`
	Amount             int64           `json:"amount"`
	AmountPaid         int64           `json:"amountPaid"`
	AmountRemaining    int64           `json:"amountRemaining"`
	Status             string          `json:"status"`
	CreatedAt          string          `json:"createdAt"`
	Transactions       []Transaction   `json:"transactions"`
	CancellationReason *string         `json:"cancellationReason"`
	CanceledAt         *string         `json:"canceledAt"`
	Raw                json.RawMessage `json:"-"`
}

// WebhookPayload is the envelope PayOS posts to the webhook endpoint.
type WebhookPayload struct {
	Code      string          `json:"code"`
	Desc      string          `json:"desc"`
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature"`
}

// WebhookData is the signed part of a webhook delivery.
type WebhookData struct {
	OrderCode           int64  `json:"orderCode"`
	Amount              int64  `json:"amount"`
	Description         string `json:"description"`
	AccountNumber       string `json:"accountNumber"`
	Reference           string `json:"reference"`
	TransactionDateTime string `json:"transactionDateTime"`
	Currency            string `json:"currency"`
	PaymentLinkID       string `json:"paymentLinkId"`
	Code                string `json:"code"`
	Desc                string `json:"desc"`
	Status              string `json:"status,omitempty"`
}

// TransactionTimeLayout is the format of transactionDateTime values.
const TransactionTimeLayout = "2006-01-02 15:04:05"

type apiResponse struct {
	Code      string          `json:"code"`
	Desc      string          `json:"desc"`
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature"`
}
