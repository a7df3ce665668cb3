package planner

import (
	"strings"

	"leadpilot/internal/models"
)

// TemplateFamily selects the content category for a composed message. It is
// independent of the resolved channel.
type TemplateFamily string

const (
	TemplateGeneral          TemplateFamily = "general"
	TemplateInPersonFollowup TemplateFamily = "in_person_followup"
)

// inPersonSources are lead-origin labels that denote a physical-venue
// encounter. Lowercased for matching.
var inPersonSources = map[string]bool{
	"harrods":    true,
	"selfridges": true,
	"in-store":   true,
	"instore":    true,
	"in store":   true,
	"showroom":   true,
	"pop-up":     true,
}

// IsInPersonSource reports whether the source label denotes an in-person
// encounter. Matching is case-insensitive.
func IsInPersonSource(source string) bool {
	return inPersonSources[strings.ToLower(strings.TrimSpace(source))]
}

// TemplateFamilyFor classifies the lead's source. An in-person source forces
// the in-person followup family no matter which channel was resolved —
// channel and content are independent axes.
func TemplateFamilyFor(lead models.LeadContact) TemplateFamily {
	if IsInPersonSource(lead.Source) {
		return TemplateInPersonFollowup
	}
	return TemplateGeneral
}

// hasPersonalization reports whether the lead carries anything worth
// referencing in copy. In-person templates without it must stay generic
// rather than invent interests the lead never mentioned.
func hasPersonalization(lead models.LeadContact) bool {
	return len(lead.Interests) > 0 || strings.TrimSpace(lead.Notes) != ""
}
