package pacs008

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Extract projects a document onto a TransferRecord. Both known shapes are
// supported: group header and transaction list directly under the root, or
// nested under WrapperSegment. Only the first transaction is read. A single
// transaction encoded as a tree rather than a one-element list is read as is.
func Extract(doc Document) TransferRecord {
	var rec TransferRecord
	if doc == nil {
		return rec
	}

	root := map[string]any(doc)
	if wrapped, ok := asTree(root[WrapperSegment]); ok {
		root = wrapped
	}

	if hdr, ok := asTree(root["GrpHdr"]); ok {
		rec.MessageID = stringAt(hdr, "MsgId")
	}

	tx, ok := firstTransaction(root["CdtTrfTxInf"])
	if !ok {
		return rec
	}

	if dbtr, ok := asTree(tx["Dbtr"]); ok {
		rec.DebtorName = stringAt(dbtr, "Nm")
	}
	if cdtr, ok := asTree(tx["Cdtr"]); ok {
		rec.CreditorName = stringAt(cdtr, "Nm")
	}
	if amt, ok := asTree(tx["Amt"]); ok {
		if instd, ok := asTree(amt["InstdAmt"]); ok {
			rec.Amount = parseAmount(instd[TextKey])
			rec.Currency = stringAt(instd, "Ccy")
		}
	}
	return rec
}

func firstTransaction(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case []any:
		if len(t) == 0 {
			return nil, false
		}
		return asTree(t[0])
	case []map[string]any:
		if len(t) == 0 {
			return nil, false
		}
		return t[0], t[0] != nil
	case []Document:
		if len(t) == 0 {
			return nil, false
		}
		return t[0], t[0] != nil
	default:
		return asTree(v)
	}
}

func asTree(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, t != nil
	case Document:
		return t, t != nil
	default:
		return nil, false
	}
}

func stringAt(tree map[string]any, key string) *string {
	switch t := tree[key].(type) {
	case string:
		return &t
	case json.Number:
		s := t.String()
		return &s
	default:
		return nil
	}
}

func parseAmount(v any) decimal.NullDecimal {
	var raw string
	switch t := v.(type) {
	case string:
		raw = t
	case json.Number:
		raw = t.String()
	default:
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
