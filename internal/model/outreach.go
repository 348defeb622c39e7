package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// OutreachChannel is the delivery channel for a drafted message.
type OutreachChannel string

const (
	ChannelEmail OutreachChannel = "email"
	ChannelDM    OutreachChannel = "dm"
)

// ValidChannel reports whether c is a supported outreach channel.
func ValidChannel(c OutreachChannel) bool {
	return c == ChannelEmail || c == ChannelDM
}

// OutreachStatus tracks a committed outreach message.
type OutreachStatus string

const (
	OutreachStatusPending OutreachStatus = "pending"
	OutreachStatusSent    OutreachStatus = "sent"
	OutreachStatusReplied OutreachStatus = "replied"
	OutreachStatusFailed  OutreachStatus = "failed"
)

// outreachTransitions: pending → sent → replied, failed reachable from
// pending or sent. Replied and failed are terminal.
var outreachTransitions = map[OutreachStatus][]OutreachStatus{
	OutreachStatusPending: {OutreachStatusSent, OutreachStatusFailed},
	OutreachStatusSent:    {OutreachStatusReplied, OutreachStatusFailed},
}

// CheckOutreachTransition returns an error when the status move is not allowed.
func CheckOutreachTransition(from, to OutreachStatus) error {
	for _, next := range outreachTransitions[from] {
		if next == to {
			return nil
		}
	}
	return eris.Errorf("outreach status cannot move from %s to %s", from, to)
}

// Outreach is a committed draft for a lead on one channel. Rows are keyed
// (LeadID, Channel): committing again for the same pair overwrites the
// pending draft rather than adding a second row.
type Outreach struct {
	ID        string          `json:"id"`
	LeadID    string          `json:"lead_id"`
	Channel   OutreachChannel `json:"channel"`
	Subject   string          `json:"subject"`
	Message   string          `json:"message"`
	Response  string          `json:"response,omitempty"`
	Status    OutreachStatus  `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at,omitempty"`
}

// Draft is a generated outreach message that has not been persisted.
type Draft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
