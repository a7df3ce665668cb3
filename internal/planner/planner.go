// Package planner is the action planning engine: given a lead and its
// conversation state it resolves a channel, picks a content template,
// composes a channel-shaped message and assembles the full action plan.
// The model call is optional; every path ends in a complete, valid plan.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"leadpilot/internal/models"
	"leadpilot/internal/parser"
)

// Completer is the generative-model collaborator: prompt in, raw text out.
// It may fail or time out; the planner absorbs both.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Planner struct {
	completer Completer
}

// New returns a Planner. A nil completer keeps every call on the
// deterministic rule path.
func New(completer Completer) *Planner {
	return &Planner{completer: completer}
}

// PlanNextAction runs the full pipeline for one lead. planID may be empty.
// It never returns an error: model failures fall back to locally computed
// defaults and the result is always a fully populated plan.
func (p *Planner) PlanNextAction(ctx context.Context, lead models.LeadContact, state models.LeadState, meta models.Metadata, planID string) models.ActionPlan {
	if strings.TrimSpace(state.Intent) == "" {
		state.Intent = "general"
	}

	fields := p.decisionFields(ctx, lead, state)

	// Only a channel the payload actually carried counts as a suggestion;
	// a defaulted one would shadow the source and intent tiers.
	suggestion := ""
	if fields.ChannelSuggested {
		suggestion = fields.Channel
	}
	channel := ResolveChannel(lead, state, meta, suggestion)
	family := TemplateFamilyFor(lead)
	msg := Compose(channel, family, lead, state.Intent)

	return Assemble(lead, state, meta, channel, family, msg, fields, planID)
}

// decisionFields produces the validated decision record, from the model when
// one is configured and answering, from local rules otherwise. Both paths
// yield the same canonical field set.
func (p *Planner) decisionFields(ctx context.Context, lead models.LeadContact, state models.LeadState) parser.Fields {
	if p.completer == nil {
		return fallbackFields(lead, state)
	}

	raw, err := p.completer.Complete(ctx, buildPrompt(lead, state))
	if err != nil {
		log.Printf("planner: model call failed, using rule fallback: %v", err)
		return fallbackFields(lead, state)
	}
	return parser.Parse(raw)
}

// buildPrompt renders the lead and state as the user turn for the model.
// The JSON schema contract lives in the system prompt.
func buildPrompt(lead models.LeadContact, state models.LeadState) string {
	leadJSON, _ := json.Marshal(lead)
	stateJSON, _ := json.Marshal(state)
	return fmt.Sprintf(
		"Decide the next outbound action for this sales lead.\n\nLead:\n%s\n\nConversation state:\n%s",
		leadJSON, stateJSON,
	)
}

// fallbackFields computes the decision record without a model. It only uses
// locally available facts and always yields canonical values.
func fallbackFields(lead models.LeadContact, state models.LeadState) parser.Fields {
	f := parser.Defaults()

	if IsInPersonSource(lead.Source) {
		f.Priority = 7
		f.Notes = "Lead met in person; follow up promptly."
	}
	if len(lead.Interests) > 0 && f.Priority < parser.MaxPriority {
		f.Priority++
	}

	switch state.LastOutcome {
	case "no_reply":
		f.Notes = "No reply to the last touch; sending another nudge."
		if f.Priority < parser.MaxPriority {
			f.Priority++
		}
	case "asked_price":
		f.ToAgent = true
		f.Notes = "Lead asked about pricing; agent review suggested."
		if f.Priority < 8 {
			f.Priority = 8
		}
	}

	return f
}
