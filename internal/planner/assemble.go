package planner

import (
	"github.com/google/uuid"

	"leadpilot/internal/models"
	"leadpilot/internal/parser"
)

// DefaultFollowUpHours is the suggested follow-up delay when nothing in the
// request specifies one.
const DefaultFollowUpHours = 48

// Assemble combines the resolved channel, composed message and validated
// decision fields into a complete ActionPlan. planID may be empty, in which
// case a fresh identifier is generated; everything else is deterministic in
// its inputs.
func Assemble(lead models.LeadContact, state models.LeadState, meta models.Metadata,
	channel models.Channel, family TemplateFamily, msg *models.ActionMessage,
	fields parser.Fields, planID string) models.ActionPlan {

	if planID == "" {
		planID = uuid.NewString()
	}

	action := models.ActionSendMessage
	if fields.ToAgent {
		action = models.ActionHandoff
	}

	aiNotes := fields.Notes
	if family == TemplateInPersonFollowup {
		aiNotes = "In-person followup: " + aiNotes
	}
	if aiNotes == "" {
		aiNotes = parser.DefaultNotes
	}
	aiNotes = parser.TruncateNotes(aiNotes)

	// Thread correlation key: metadata wins over state.
	threadKey := meta.GetString("thread_key")
	if threadKey == "" {
		threadKey = state.ThreadKey
	}

	planMeta := map[string]any{
		"priority":                     fields.Priority,
		"to_agent":                     fields.ToAgent,
		"ai_notes":                     aiNotes,
		"suggested_follow_up_in_hours": DefaultFollowUpHours,
		"thread_key":                   threadKey,
		"source":                       lead.Source,
		"country":                      lead.Country,
		"history_seen":                 len(state.History),
	}
	if n := len(state.History); n > 0 {
		planMeta["history_last"] = state.History[n-1].Text
	}

	subject := state.Subject
	if msg.IsEmailShaped() {
		subject = *msg.Subject
	}

	// Every store key is always present, even when its value is empty — the
	// CRM side relies on the keys, not on the values.
	store := map[string]any{
		"decision_channel":  string(channel),
		"decision_priority": fields.Priority,
		"ai_notes":          aiNotes,
		"thread_key":        threadKey,
		"zoho_id":           lead.ZohoID,
		"name":              lead.Name,
		"first_name":        lead.FirstName,
		"email":             lead.Email,
		"subject":           subject,
	}

	return models.ActionPlan{
		PlanID:   planID,
		Action:   action,
		Channel:  string(channel),
		Message:  msg,
		Metadata: planMeta,
		Log:      "ok",
		Store:    store,
	}
}
