package pacs008

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TransferRecord is the flat projection of a credit-transfer document. Any
// field whose source path is missing or malformed is nil (or not Valid for
// Amount); extraction never fails.
type TransferRecord struct {
	MessageID    *string             `json:"messageId"`
	DebtorName   *string             `json:"debtorName"`
	CreditorName *string             `json:"creditorName"`
	Amount       decimal.NullDecimal `json:"amount"`
	Currency     *string             `json:"currency"`
}

// ID returns the message identifier, or the empty string when it is absent.
func (r TransferRecord) ID() string {
	return deref(r.MessageID)
}

// MarshalZerologObject lets a record be logged with Event.Object.
func (r TransferRecord) MarshalZerologObject(e *zerolog.Event) {
	e.Str("message_id", deref(r.MessageID)).
		Str("debtor", deref(r.DebtorName)).
		Str("creditor", deref(r.CreditorName)).
		Str("currency", deref(r.Currency))
	if r.Amount.Valid {
		e.Str("amount", r.Amount.Decimal.String())
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
