package models

// ─── Channels ────────────────────────────────────────────────────────────────

// Channel is a canonical outbound communication medium.
type Channel string

const (
	ChannelEmail    Channel = "Email"
	ChannelWhatsApp Channel = "WhatsApp"
	ChannelPhone    Channel = "Phone"
)

// Channels lists every canonical channel. Order is not significant.
var Channels = []Channel{ChannelEmail, ChannelWhatsApp, ChannelPhone}

// IsCanonicalChannel reports whether s is exactly one of the canonical
// channel names (case-sensitive).
func IsCanonicalChannel(s string) bool {
	for _, c := range Channels {
		if string(c) == s {
			return true
		}
	}
	return false
}

// ─── Lead domain ─────────────────────────────────────────────────────────────

type LeadContact struct {
	ZohoID    string   `json:"zoho_id"`
	Name      string   `json:"name,omitempty"`
	FirstName string   `json:"first_name,omitempty"`
	Email     string   `json:"email,omitempty"`
	Phone     string   `json:"phone,omitempty"`
	City      string   `json:"city,omitempty"`
	Country   string   `json:"country,omitempty"`
	Source    string   `json:"source,omitempty"`
	Interests []string `json:"interests,omitempty"`
	Notes     string   `json:"notes,omitempty"`
}

// HistoryEntry is one turn of a lead conversation, oldest-first in LeadState.
type HistoryEntry struct {
	Role    string `json:"role"`
	Text    string `json:"text"`
	Channel string `json:"channel,omitempty"`
	TS      string `json:"ts,omitempty"`
}

type LeadState struct {
	Intent           string         `json:"intent,omitempty"` // defaults to "general"
	Channel          string         `json:"channel,omitempty"`
	PreferredChannel string         `json:"preferred_channel,omitempty"`
	History          []HistoryEntry `json:"history,omitempty"`
	LastOutcome      string         `json:"last_outcome,omitempty"` // e.g. no_reply / busy / asked_price
	NextFollowUpAt   string         `json:"next_follow_up_at,omitempty"`
	ThreadKey        string         `json:"thread_key,omitempty"`
	Subject          string         `json:"subject,omitempty"`
}

// Metadata is an open key/value bag of side-channel signals. Absent keys are
// never an error; read it through the accessors.
type Metadata map[string]any

// GetString returns the string value for key, or "" when the key is absent
// or holds a non-string value.
func (m Metadata) GetString(key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// ─── Action plan ─────────────────────────────────────────────────────────────

const (
	ActionSendMessage      = "send_message"
	ActionScheduleFollowup = "schedule_followup"
	ActionHandoff          = "handoff"
	ActionStop             = "stop"
	ActionWait             = "wait"
)

// ActionMessage is the channel-shaped message body. Exactly one of the two
// shapes is populated: subject+body (email) or whatsapp_text (chat). Build it
// through NewEmailMessage / NewChatMessage so the shape holds by construction.
type ActionMessage struct {
	Subject      *string `json:"subject"`
	Body         *string `json:"body"`
	WhatsAppText *string `json:"whatsapp_text"`
}

func NewEmailMessage(subject, body string) *ActionMessage {
	return &ActionMessage{Subject: &subject, Body: &body}
}

func NewChatMessage(text string) *ActionMessage {
	return &ActionMessage{WhatsAppText: &text}
}

// IsEmailShaped reports whether m carries subject+body and no chat text.
func (m *ActionMessage) IsEmailShaped() bool {
	return m != nil && m.Subject != nil && m.Body != nil && m.WhatsAppText == nil
}

// IsChatShaped reports whether m carries chat text and no subject/body.
func (m *ActionMessage) IsChatShaped() bool {
	return m != nil && m.WhatsAppText != nil && m.Subject == nil && m.Body == nil
}

type ActionPlan struct {
	PlanID   string         `json:"plan_id"`
	Action   string         `json:"action"`
	Channel  string         `json:"channel"`
	Message  *ActionMessage `json:"message"`
	Metadata map[string]any `json:"metadata"`
	Log      string         `json:"log,omitempty"`
	Store    map[string]any `json:"store"`
}

// ─── Request shapes ──────────────────────────────────────────────────────────

type LeadRequest struct {
	Lead     LeadContact `json:"lead"`
	State    *LeadState  `json:"state,omitempty"`
	Metadata Metadata    `json:"metadata,omitempty"`
}

type RespondIn struct {
	PlanID       string     `json:"plan_id,omitempty"`
	ZohoID       string     `json:"zoho_id,omitempty"`
	IncomingText string     `json:"incoming_text"`
	Channel      string     `json:"channel"`
	Timestamp    string     `json:"timestamp,omitempty"`
	State        *LeadState `json:"state,omitempty"`
}

// LeadPayload / LeadOutput are the /process_lead contract: identity in,
// identity plus a resolved thread correlation key out.
type LeadPayload struct {
	ZohoID    string   `json:"zoho_id"`
	Name      string   `json:"name,omitempty"`
	FirstName string   `json:"first_name,omitempty"`
	Email     string   `json:"email,omitempty"`
	Phone     string   `json:"phone,omitempty"`
	Source    string   `json:"source,omitempty"`
	Interest  string   `json:"interest,omitempty"`
	DueDate   string   `json:"due_date,omitempty"`
	Notes     string   `json:"notes,omitempty"`
	City      string   `json:"city,omitempty"`
	Country   string   `json:"country,omitempty"`
	Metadata  Metadata `json:"metadata,omitempty"`
}

type LeadOutput struct {
	ZohoID    string   `json:"zoho_id"`
	Name      string   `json:"name,omitempty"`
	FirstName string   `json:"first_name,omitempty"`
	Email     string   `json:"email,omitempty"`
	Phone     string   `json:"phone,omitempty"`
	Source    string   `json:"source,omitempty"`
	Interest  string   `json:"interest,omitempty"`
	DueDate   string   `json:"due_date,omitempty"`
	Notes     string   `json:"notes,omitempty"`
	City      string   `json:"city,omitempty"`
	Country   string   `json:"country,omitempty"`
	Metadata  Metadata `json:"metadata"`
}

// ─── Legacy /lead contract ───────────────────────────────────────────────────

type LeadIn struct {
	ZohoID    string `json:"zoho_id"`
	Name      string `json:"name,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Source    string `json:"source,omitempty"`
	Interest  string `json:"interest,omitempty"`
	DueDate   string `json:"due_date,omitempty"`
	Notes     string `json:"notes,omitempty"`
	City      string `json:"city,omitempty"`
	Country   string `json:"country,omitempty"`
	ThreadKey string `json:"thread_key,omitempty"`
}

type LeadDecision struct {
	ZohoID    string `json:"zoho_id"`
	Channel   string `json:"channel"`
	Priority  int    `json:"priority"`
	ToAgent   bool   `json:"to_agent"`
	Notes     string `json:"notes"`
	Message   string `json:"message,omitempty"`
	Intent    string `json:"intent,omitempty"`
	Score     *int   `json:"score,omitempty"`
	Source    string `json:"source,omitempty"`
	ThreadKey string `json:"thread_key,omitempty"`
}

// ─── Database model ──────────────────────────────────────────────────────────

// PlanRecord is the audit-log row mirroring the CRM write-back bag.
type PlanRecord struct {
	PlanID    string `db:"plan_id"`
	ZohoID    string `db:"zoho_id"`
	ThreadKey string `db:"thread_key"`
	Action    string `db:"action"`
	Channel   string `db:"channel"`
	Priority  int    `db:"priority"`
	AINotes   string `db:"ai_notes"`
	CreatedAt string `db:"created_at"`
}
