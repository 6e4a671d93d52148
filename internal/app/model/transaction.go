package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindDeposit    Kind = "deposit"
	KindWithdrawal Kind = "withdrawal"
)

func (k Kind) Valid() bool {
	return k == KindDeposit || k == KindWithdrawal
}

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

type Transaction struct {
	ID               uuid.UUID       `json:"id"`
	Kind             Kind            `json:"kind"`
	Value            decimal.Decimal `json:"value"`
	GatewayReference string          `json:"gatewayReference"`
	Status           Status          `json:"status"`
	Description      string          `json:"description,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	ProcessedAt      *time.Time      `json:"processedAt,omitempty"`

	Deposit    *DepositDetails    `json:"deposit,omitempty"`
	Withdrawal *WithdrawalDetails `json:"withdrawal,omitempty"`
}

// DepositDetails is the charge presentation returned by the gateway.
type DepositDetails struct {
	QRCodeImage string `json:"qrCodeImage"`
	QRCodeText  string `json:"qrCodeText"`
}

type WithdrawalDetails struct {
	PixKey     string     `json:"pixKey"`
	PixKeyType PixKeyType `json:"pixKeyType"`
}

type PixKeyType string

const (
	PixKeyTypeCPF   PixKeyType = "CPF"
	PixKeyTypeCNPJ  PixKeyType = "CNPJ"
	PixKeyTypeEmail PixKeyType = "EMAIL"
	PixKeyTypePhone PixKeyType = "PHONE"
	PixKeyTypeEVP   PixKeyType = "EVP"
)

// Clone returns a deep copy, so stores never share mutable state with callers.
func (t *Transaction) Clone() *Transaction {
	c := *t
	if t.ProcessedAt != nil {
		p := *t.ProcessedAt
		c.ProcessedAt = &p
	}
	if t.Deposit != nil {
		d := *t.Deposit
		c.Deposit = &d
	}
	if t.Withdrawal != nil {
		w := *t.Withdrawal
		c.Withdrawal = &w
	}
	return &c
}
