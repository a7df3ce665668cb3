package planner

import (
	"strings"

	"leadpilot/internal/models"
)

// channelAliases maps lowercase channel tokens to their canonical channel.
// Many spellings, one channel.
var channelAliases = map[string]models.Channel{
	"phone":    models.ChannelPhone,
	"call":     models.ChannelPhone,
	"number":   models.ChannelPhone,
	"whatsapp": models.ChannelWhatsApp,
	"wa":       models.ChannelWhatsApp,
	"email":    models.ChannelEmail,
	"mail":     models.ChannelEmail,
}

// intentChannelDefaults derives a channel from the conversation intent when
// no stronger signal exists.
var intentChannelDefaults = map[string]models.Channel{
	"callback_request": models.ChannelPhone,
	"whatsapp_chat":    models.ChannelWhatsApp,
}

// NormalizeChannel maps a free-text channel token to its canonical channel.
// Matching is case-insensitive; unrecognized tokens report !ok so the caller
// can fall through to the next signal instead of erroring.
func NormalizeChannel(token string) (models.Channel, bool) {
	ch, ok := channelAliases[strings.ToLower(strings.TrimSpace(token))]
	return ch, ok
}

// ResolveChannel picks exactly one canonical channel. Precedence, highest
// first: explicit metadata override, explicit state channel, the lead's
// preferred channel, a validated model suggestion, the source-derived default
// (in-person sources default to Email), the intent-derived default, and
// finally the global Email default. Resolution never fails.
func ResolveChannel(lead models.LeadContact, state models.LeadState, meta models.Metadata, suggestion string) models.Channel {
	if ch, ok := NormalizeChannel(meta.GetString("channel")); ok {
		return ch
	}
	if ch, ok := NormalizeChannel(state.Channel); ok {
		return ch
	}
	if ch, ok := NormalizeChannel(state.PreferredChannel); ok {
		return ch
	}
	if models.IsCanonicalChannel(suggestion) {
		return models.Channel(suggestion)
	}
	if IsInPersonSource(lead.Source) {
		return models.ChannelEmail
	}
	if ch, ok := intentChannelDefaults[strings.ToLower(strings.TrimSpace(state.Intent))]; ok {
		return ch
	}
	return models.ChannelEmail
}
