package planner

import (
	"fmt"
	"strings"

	"leadpilot/internal/models"
)

// Compose renders a channel-shaped message. WhatsApp and Phone get a short
// conversational draft; Email — and any channel the composer doesn't
// recognize — gets a subject and body. Composition never fails.
func Compose(channel models.Channel, family TemplateFamily, lead models.LeadContact, intent string) *models.ActionMessage {
	switch channel {
	case models.ChannelWhatsApp, models.ChannelPhone:
		return models.NewChatMessage(chatText(family, lead))
	default:
		subject, body := emailContent(family, lead, intent)
		return models.NewEmailMessage(subject, body)
	}
}

func greetingName(lead models.LeadContact) string {
	if lead.FirstName != "" {
		return lead.FirstName
	}
	if lead.Name != "" {
		return lead.Name
	}
	return "there"
}

// sourceGreeting returns the in-person opener. Store-specific copy differs
// per venue label; unknown in-person venues get the generic store line.
func sourceGreeting(source string) string {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "harrods":
		return "It was lovely to meet you at Harrods"
	case "selfridges":
		return "It was lovely to meet you at Selfridges"
	default:
		return "It was lovely to meet you in our store"
	}
}

func interestLine(lead models.LeadContact) string {
	if len(lead.Interests) == 0 {
		return ""
	}
	return strings.Join(lead.Interests, ", ")
}

func chatText(family TemplateFamily, lead models.LeadContact) string {
	name := greetingName(lead)

	if family == TemplateInPersonFollowup {
		greeting := sourceGreeting(lead.Source)
		if !hasPersonalization(lead) {
			return fmt.Sprintf("Hi %s! %s. Let me know if I can help with anything — happy to answer any questions.", name, greeting)
		}
		if interests := interestLine(lead); interests != "" {
			return fmt.Sprintf("Hi %s! %s. Are you still thinking about %s? I'd be glad to help you take the next step.", name, greeting, interests)
		}
		return fmt.Sprintf("Hi %s! %s. I wanted to follow up on what we discussed — shall we pick it up from there?", name, greeting)
	}

	if interests := interestLine(lead); interests != "" {
		return fmt.Sprintf("Hi %s! Just following up on your enquiry about %s. Is there anything I can help with?", name, interests)
	}
	return fmt.Sprintf("Hi %s! Just following up on your enquiry. Is there anything I can help with?", name)
}

func emailContent(family TemplateFamily, lead models.LeadContact, intent string) (subject, body string) {
	name := greetingName(lead)

	if family == TemplateInPersonFollowup {
		greeting := sourceGreeting(lead.Source)
		subject = "Lovely to meet you"
		if !hasPersonalization(lead) {
			body = fmt.Sprintf("Hi %s,\n\n%s. If there is anything we can help you with, just reply to this email and I'll take care of it.\n\nWarm regards", name, greeting)
			return subject, body
		}
		if interests := interestLine(lead); interests != "" {
			subject = fmt.Sprintf("Following up on %s", interests)
			body = fmt.Sprintf("Hi %s,\n\n%s. You mentioned an interest in %s — I'd love to help you take the next step. Shall I send over some options?\n\nWarm regards", name, greeting, interests)
			return subject, body
		}
		body = fmt.Sprintf("Hi %s,\n\n%s. I wanted to follow up on what we discussed — happy to pick things up whenever suits you.\n\nWarm regards", name, greeting)
		return subject, body
	}

	subject = fmt.Sprintf("Following up on your enquiry, %s", name)
	if interests := interestLine(lead); interests != "" {
		subject = fmt.Sprintf("Following up on %s", interests)
		body = fmt.Sprintf("Hi %s,\n\nThanks for your interest in %s. I'd be happy to share more details or answer any questions — just hit reply.\n\nBest regards", name, interests)
		return subject, body
	}
	if intent != "" && intent != "general" {
		body = fmt.Sprintf("Hi %s,\n\nThanks for getting in touch about %s. I'd be happy to help — just hit reply and we can take it from there.\n\nBest regards", name, strings.ReplaceAll(intent, "_", " "))
		return subject, body
	}
	body = fmt.Sprintf("Hi %s,\n\nThanks for getting in touch. I'd be happy to help with your enquiry — just hit reply and we can take it from there.\n\nBest regards", name)
	return subject, body
}
