package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"leadpilot/internal/database"
	"leadpilot/internal/models"
	"leadpilot/internal/planner"
)

// planTimeout bounds one planning call, model round-trip included.
const planTimeout = 35 * time.Second

// ─── GET /health ──────────────────────────────────────────────────────────────

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "healthy"})
}

// ─── POST /api/v1/next_action ─────────────────────────────────────────────────

// NextAction is the strict entry point: {lead, state?, metadata?} in, a fully
// populated ActionPlan out. Model failures never surface here — the planner
// always returns a valid plan.
func NextAction(db *database.DB, p *planner.Planner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.LeadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Lead.ZohoID) == "" {
			http.Error(w, "lead.zoho_id is required", http.StatusBadRequest)
			return
		}

		state := models.LeadState{}
		if req.State != nil {
			state = *req.State
		}

		ctx, cancel := context.WithTimeout(r.Context(), planTimeout)
		defer cancel()

		plan := p.PlanNextAction(ctx, req.Lead, state, req.Metadata, "")
		recordPlan(db, req.Lead.ZohoID, &plan)
		writeJSON(w, plan)
	}
}

// ─── POST /api/v1/next_action_flex ────────────────────────────────────────────

// NextActionFlex accepts a flat, un-nested payload (the shape automation
// tools tend to send) and reshapes it into lead/state/metadata before
// planning. Tolerates missing optional fields and a singular interest string.
func NextActionFlex(db *database.DB, p *planner.Planner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		if err != nil || len(strings.TrimSpace(string(raw))) == 0 {
			http.Error(w, "empty request body; send JSON", http.StatusBadRequest)
			return
		}

		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			http.Error(w, fmt.Sprintf("invalid JSON: %v", err), http.StatusBadRequest)
			return
		}

		lead, state, meta := reshapeFlex(body)
		if strings.TrimSpace(lead.ZohoID) == "" {
			http.Error(w, "zoho_id is required", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), planTimeout)
		defer cancel()

		plan := p.PlanNextAction(ctx, lead, state, meta, "")
		recordPlan(db, lead.ZohoID, &plan)
		writeJSON(w, plan)
	}
}

// reshapeFlex normalizes either {lead:{...}, state:{...}} or a flat payload
// into the canonical planning triple.
func reshapeFlex(body map[string]any) (models.LeadContact, models.LeadState, models.Metadata) {
	if leadRaw, ok := body["lead"]; ok {
		var req models.LeadRequest
		nested, _ := json.Marshal(map[string]any{
			"lead":     leadRaw,
			"state":    body["state"],
			"metadata": body["metadata"],
		})
		_ = json.Unmarshal(nested, &req)
		state := models.LeadState{}
		if req.State != nil {
			state = *req.State
		}
		return req.Lead, state, req.Metadata
	}

	lead := models.LeadContact{
		ZohoID:    getString(body, "zoho_id"),
		Name:      getString(body, "name"),
		FirstName: getString(body, "first_name"),
		Email:     getString(body, "email"),
		Phone:     getString(body, "phone"),
		City:      getString(body, "city"),
		Country:   getString(body, "country"),
		Source:    getString(body, "source"),
		Notes:     getString(body, "notes"),
		Interests: flexInterests(body["interests"]),
	}

	state := models.LeadState{
		Intent:           getString(body, "intent"),
		PreferredChannel: getString(body, "preferred_channel"),
		ThreadKey:        getString(body, "thread_key"),
		Subject:          getString(body, "subject"),
	}
	if histRaw, ok := body["history"]; ok {
		histJSON, _ := json.Marshal(histRaw)
		_ = json.Unmarshal(histJSON, &state.History)
	}

	meta := models.Metadata{}
	if tk := getString(body, "thread_key"); tk != "" {
		meta["thread_key"] = tk
	}
	if ch := getString(body, "channel"); ch != "" {
		meta["channel"] = ch
	}

	return lead, state, meta
}

// flexInterests accepts either a single string or a list of strings.
func flexInterests(v any) []string {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		return []string{t}
	case []any:
		var out []string
		for _, item := range t {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func getString(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// ─── POST /api/v1/respond ─────────────────────────────────────────────────────

// Respond plans the next action after an inbound customer reply. The reply is
// appended to the history as a synthetic entry before planning; the caller's
// state copy is never mutated.
func Respond(db *database.DB, p *planner.Planner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in models.RespondIn
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(in.IncomingText) == "" {
			http.Error(w, "incoming_text is required", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(in.Channel) == "" {
			http.Error(w, "channel is required", http.StatusBadRequest)
			return
		}

		state := models.LeadState{}
		if in.State != nil {
			state = *in.State
		}
		state.History = append(append([]models.HistoryEntry{}, state.History...), models.HistoryEntry{
			Role:    "customer",
			Text:    in.IncomingText,
			Channel: in.Channel,
			TS:      in.Timestamp,
		})
		if state.Channel == "" {
			state.Channel = in.Channel
		}

		lead := models.LeadContact{ZohoID: in.ZohoID}

		ctx, cancel := context.WithTimeout(r.Context(), planTimeout)
		defer cancel()

		plan := p.PlanNextAction(ctx, lead, state, models.Metadata{}, in.PlanID)
		recordPlan(db, in.ZohoID, &plan)
		writeJSON(w, plan)
	}
}

// ─── POST /api/v1/process_lead ────────────────────────────────────────────────

// ProcessLead resolves the thread correlation key for a lead: an existing
// metadata.thread_key passes through unchanged, otherwise one is derived from
// email and source.
func ProcessLead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in models.LeadPayload
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(in.ZohoID) == "" {
			http.Error(w, "zoho_id is required", http.StatusBadRequest)
			return
		}

		threadKey := in.Metadata.GetString("thread_key")
		if threadKey == "" {
			threadKey = deriveThreadKey(in.Email, in.Source)
			log.Printf("process_lead: generated thread_key %q for %s", threadKey, in.ZohoID)
		} else {
			log.Printf("process_lead: using caller thread_key %q for %s", threadKey, in.ZohoID)
		}

		writeJSON(w, models.LeadOutput{
			ZohoID:    in.ZohoID,
			Name:      in.Name,
			FirstName: in.FirstName,
			Email:     in.Email,
			Phone:     in.Phone,
			Source:    in.Source,
			Interest:  in.Interest,
			DueDate:   in.DueDate,
			Notes:     in.Notes,
			City:      in.City,
			Country:   in.Country,
			Metadata:  models.Metadata{"thread_key": threadKey},
		})
	}
}

func deriveThreadKey(email, source string) string {
	switch {
	case email != "" && source != "":
		return email + "-" + source
	case email != "":
		return email + "-Unknown"
	case source != "":
		return "Unknown-" + source
	}
	return ""
}

// ─── POST /api/v1/lead (legacy) ──────────────────────────────────────────────

// LegacyLead keeps the original flat decision contract alive for callers that
// predate the ActionPlan shape.
func LegacyLead(db *database.DB, p *planner.Planner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in models.LeadIn
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if in.Email == "" && in.Phone == "" {
			http.Error(w, "provide email or phone", http.StatusBadRequest)
			return
		}

		lead := models.LeadContact{
			ZohoID:    in.ZohoID,
			Name:      in.Name,
			FirstName: in.FirstName,
			Email:     in.Email,
			Phone:     in.Phone,
			City:      in.City,
			Country:   in.Country,
			Source:    in.Source,
			Notes:     in.Notes,
		}
		if in.Interest != "" {
			lead.Interests = []string{in.Interest}
		}
		state := models.LeadState{Intent: "general", ThreadKey: in.ThreadKey}

		ctx, cancel := context.WithTimeout(r.Context(), planTimeout)
		defer cancel()

		plan := p.PlanNextAction(ctx, lead, state, models.Metadata{}, "")
		recordPlan(db, in.ZohoID, &plan)

		decision := models.LeadDecision{
			ZohoID:    in.ZohoID,
			Channel:   plan.Channel,
			Priority:  metaInt(plan.Metadata, "priority"),
			ToAgent:   metaBool(plan.Metadata, "to_agent"),
			Notes:     metaString(plan.Metadata, "ai_notes"),
			Message:   messageText(plan.Message),
			Intent:    state.Intent,
			Source:    in.Source,
			ThreadKey: in.ThreadKey,
		}
		writeJSON(w, decision)
	}
}

// messageText flattens a channel-shaped message to a single drafted string.
func messageText(m *models.ActionMessage) string {
	switch {
	case m.IsChatShaped():
		return *m.WhatsAppText
	case m.IsEmailShaped():
		return *m.Body
	}
	return ""
}

// ─── GET /api/v1/plans/{zoho_id} ─────────────────────────────────────────────

// RecentPlans serves the audit log of plans issued for one lead.
func RecentPlans(db *database.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		zohoID := mux.Vars(r)["zoho_id"]

		limit := 10
		if s := r.URL.Query().Get("limit"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		plans, err := db.RecentPlans(zohoID, limit)
		if err != nil {
			log.Printf("plans: query failed for %s: %v", zohoID, err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if plans == nil {
			plans = []models.PlanRecord{}
		}
		writeJSON(w, map[string]any{"zoho_id": zohoID, "plans": plans})
	}
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

// recordPlan writes the issued plan to the audit log. Best effort: a storage
// hiccup must not fail a planning call that already produced a valid plan.
func recordPlan(db *database.DB, zohoID string, plan *models.ActionPlan) {
	if db == nil {
		return
	}
	rec := &models.PlanRecord{
		PlanID:    plan.PlanID,
		ZohoID:    zohoID,
		ThreadKey: metaString(plan.Metadata, "thread_key"),
		Action:    plan.Action,
		Channel:   plan.Channel,
		Priority:  metaInt(plan.Metadata, "priority"),
		AINotes:   metaString(plan.Metadata, "ai_notes"),
	}
	if err := db.InsertPlan(rec); err != nil {
		log.Printf("plans: insert %s failed: %v", plan.PlanID, err)
	}
}

func metaString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func metaInt(m map[string]any, key string) int {
	n, _ := m[key].(int)
	return n
}

func metaBool(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

// writeJSON encodes v as JSON to w, logging any error.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("handlers: encode response: %v", err)
	}
}
