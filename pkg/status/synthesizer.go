// Package status builds pacs.002-style payment status reports for processed
// credit transfers and delivers them to the status-collection service.
package status

import (
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-pacsflow/pkg/pacs008"
)

// Code is a payment transaction status.
type Code string

const (
	Accepted Code = "ACCP"
	Rejected Code = "RJCT"
	Unknown  Code = "UNKN"
)

// Codes lists every status a Policy may return.
var Codes = []Code{Accepted, Rejected, Unknown}

// Policy decides the status of a transfer.
type Policy func(rec pacs008.TransferRecord) Code

// RandomPolicy draws a status uniformly from Codes. It is a placeholder for
// real acceptance rules, which plug in as another Policy. A nil source uses the
// goroutine-safe global generator; a non-nil *rand.Rand must not be shared
// between goroutines.
func RandomPolicy(r *rand.Rand) Policy {
	return func(pacs008.TransferRecord) Code {
		if r == nil {
			return Codes[rand.IntN(len(Codes))]
		}
		return Codes[r.IntN(len(Codes))]
	}
}

// OriginalMessage references the message a report is about. MessageID is
// null when the inbound message carried no identifier.
type OriginalMessage struct {
	MessageID *string `json:"messageId"`
}

// Report is the status report body sent to the status-collection service.
type Report struct {
	MessageID       string          `json:"messageId"`
	OriginalMessage OriginalMessage `json:"originalMessage"`
	Status          Code            `json:"status"`
}

// Synthesizer creates reports. The zero value is not usable; use NewSynthesizer.
type Synthesizer struct {
	policy Policy
	newID  func() string
}

// NewSynthesizer creates a Synthesizer. A nil policy defaults to RandomPolicy(nil).
func NewSynthesizer(policy Policy) *Synthesizer {
	if policy == nil {
		policy = RandomPolicy(nil)
	}
	return &Synthesizer{
		policy: policy,
		newID:  func() string { return uuid.New().String() },
	}
}

// Synthesize builds a report with a fresh status message id.
func (s *Synthesizer) Synthesize(rec pacs008.TransferRecord) Report {
	return Report{
		MessageID:       s.newID(),
		OriginalMessage: OriginalMessage{MessageID: rec.MessageID},
		Status:          s.policy(rec),
	}
}
