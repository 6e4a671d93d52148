package asaas

import "github.com/shopspring/decimal"

type CreateQRCodeRequest struct {
	Value       decimal.Decimal `json:"value"`
	Description string          `json:"description,omitempty"`
}

type CreateQRCodeResponse struct {
	ID           string `json:"id"`
	EncodedImage string `json:"encodedImage"`
	Payload      string `json:"payload"`
}

type CreateTransferRequest struct {
	Value       decimal.Decimal `json:"value"`
	PixKey      string          `json:"pixAddressKey"`
	PixKeyType  string          `json:"pixAddressKeyType"`
	Description string          `json:"description,omitempty"`
}

type CreateTransferResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Webhook is the notification body posted by the gateway. Only one of Payment and
// Transfer is set.
type Webhook struct {
	Event    string         `json:"event"`
	Payment  *WebhookObject `json:"payment,omitempty"`
	Transfer *WebhookObject `json:"transfer,omitempty"`
}

type WebhookObject struct {
	ID     string          `json:"id"`
	Value  decimal.Decimal `json:"value"`
	Status string          `json:"status,omitempty"`
}
