package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// -------------------- USER PROFILE --------------------
type UserProfile struct {
	Number         string `json:"number"`                 // E.164 canonical identifier
	DisplayName    string `json:"display_name"`           // unique, case-preserved
	Locked         bool   `json:"locked"`                 // hidden from recommendations
	FollowPrice    int64  `json:"follow_price,omitempty"` // pmob, 0 = free
	Blocked        bool   `json:"blocked"`                // opted out of messages
	ClaimedAirdrop bool   `json:"claimed_airdrop"`        // reserved
}

// Name returns the display name, falling back to the number.
func (p *UserProfile) Name() string {
	if p == nil {
		return ""
	}
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Number
}

// -------------------- FOLLOW EDGE --------------------
type FollowEdge struct {
	Follower string `json:"follower"`
	Followee string `json:"followee"`
}

// -------------------- INBOUND MESSAGE --------------------
type Attachment struct {
	ID          string `json:"id"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType,omitempty"`
}

type Message struct {
	ID          string       `json:"id"`
	Source      string       `json:"source"`
	Name        string       `json:"name,omitempty"` // sender's transport profile name
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
	QuotedText  string       `json:"quoted_text,omitempty"`
	Timestamp   int64        `json:"timestamp"`
	PaymentPmob int64        `json:"payment_pmob,omitempty"` // incoming payment carried by the message

	// Parsed command fields, filled by Parse.
	Command string   `json:"-"`
	Arg1    string   `json:"-"`
	Arg2    string   `json:"-"`
	Tokens  []string `json:"-"`
}

// Parse splits a "/command arg1 arg2 ..." message into its fields.
// Non-command text leaves Command empty.
func (m *Message) Parse() {
	text := strings.TrimSpace(m.Text)
	m.Tokens = strings.Fields(text)
	m.Command, m.Arg1, m.Arg2 = "", "", ""
	if len(m.Tokens) == 0 || !strings.HasPrefix(m.Tokens[0], "/") {
		return
	}
	m.Command = strings.ToLower(strings.TrimPrefix(m.Tokens[0], "/"))
	if len(m.Tokens) > 1 {
		m.Arg1 = m.Tokens[1]
	}
	if len(m.Tokens) > 2 {
		m.Arg2 = m.Tokens[2]
	}
}

// Opt-out keywords, matched against the whole trimmed message.
const (
	OptOut = "stop"
	OptIn  = "start"
)

// OptKeyword returns OptOut or OptIn when the message is one of the opt-out
// or opt-in keywords, and "" otherwise.
func (m *Message) OptKeyword() string {
	switch strings.ToLower(strings.TrimSpace(m.Text)) {
	case "stop", "block":
		return OptOut
	case "start", "unblock":
		return OptIn
	}
	return ""
}

// FullText is the message body including any quoted text.
func (m *Message) FullText() string {
	if m.QuotedText == "" {
		return m.Text
	}
	return m.Text + "\n> " + m.QuotedText
}

// -------------------- LEDGER --------------------
type LedgerTransaction struct {
	ID        string          `json:"id"`
	Account   string          `json:"account"`
	USDDelta  decimal.Decimal `json:"usd_delta"`
	PmobDelta int64           `json:"pmob_delta"`
	Memo      string          `json:"memo"`
	CreatedAt time.Time       `json:"created_at"`
}

// -------------------- SOCIAL EVENTS --------------------
type EventType string

const (
	EventFollow         EventType = "follow"
	EventUnfollow       EventType = "unfollow"
	EventSoftblock      EventType = "softblock"
	EventInviteAccepted EventType = "invite_accepted"
	EventInviteDeclined EventType = "invite_declined"
	EventBroadcast      EventType = "broadcast"
	EventTip            EventType = "tip"
	EventWithdraw       EventType = "withdraw"
	EventBlock          EventType = "block"
	EventUnblock        EventType = "unblock"
	EventDeposit        EventType = "deposit"
)

type SocialEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Actor      string    `json:"actor"`
	Target     string    `json:"target,omitempty"`
	AmountPmob int64     `json:"amount_pmob,omitempty"`
	Recipients int       `json:"recipients,omitempty"`
	At         time.Time `json:"at"`
}
