// Package handlers tests — uses package-level access to test unexported helpers.
package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"leadpilot/internal/database"
	"leadpilot/internal/llm"
	"leadpilot/internal/models"
	"leadpilot/internal/planner"
)

// ─── Test helpers ─────────────────────────────────────────────────────────────

func testDB(t *testing.T) *database.DB {
	t.Helper()
	return database.Init(":memory:")
}

// rulePlanner plans without a model collaborator, so every test on it is
// deterministic.
func rulePlanner() *planner.Planner {
	return planner.New(nil)
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func decodePlan(t *testing.T, w *httptest.ResponseRecorder) models.ActionPlan {
	t.Helper()
	var plan models.ActionPlan
	if err := json.NewDecoder(w.Body).Decode(&plan); err != nil {
		t.Fatalf("response is not a valid ActionPlan: %v", err)
	}
	return plan
}

// assertShape checks the message carries exactly one channel shape.
func assertShape(t *testing.T, plan models.ActionPlan) {
	t.Helper()
	if plan.Message == nil {
		t.Fatal("plan has no message")
	}
	if plan.Message.IsChatShaped() == plan.Message.IsEmailShaped() {
		t.Fatalf("message is not exactly one shape: %+v", plan.Message)
	}
}

// ─── GET /health ──────────────────────────────────────────────────────────────

func TestHealthCheck(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	HealthCheck(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected status=healthy, got %q", body["status"])
	}
}

// ─── POST /api/v1/next_action ─────────────────────────────────────────────────

func TestNextAction_MissingZohoID_Returns400(t *testing.T) {
	handler := NextAction(testDB(t), rulePlanner())

	w := postJSON(t, handler, "/api/v1/next_action", map[string]any{
		"lead": map[string]any{"name": "No ID"},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestNextAction_InvalidJSON_Returns400(t *testing.T) {
	handler := NextAction(testDB(t), rulePlanner())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/next_action", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestNextAction_PreferredPhone(t *testing.T) {
	handler := NextAction(testDB(t), rulePlanner())

	w := postJSON(t, handler, "/api/v1/next_action", map[string]any{
		"lead":  map[string]any{"zoho_id": "L1", "source": "Website"},
		"state": map[string]any{"preferred_channel": "phone"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	plan := decodePlan(t, w)
	if plan.Channel != "Phone" {
		t.Errorf("expected Phone, got %s", plan.Channel)
	}
	assertShape(t, plan)
	if !plan.Message.IsChatShaped() {
		t.Errorf("expected chat-shaped message for Phone: %+v", plan.Message)
	}
}

func TestNextAction_MetadataChannelOverride(t *testing.T) {
	handler := NextAction(testDB(t), rulePlanner())

	w := postJSON(t, handler, "/api/v1/next_action", map[string]any{
		"lead":     map[string]any{"zoho_id": "L2", "source": "Website"},
		"state":    map[string]any{"preferred_channel": "email"},
		"metadata": map[string]any{"channel": "wa"},
	})
	plan := decodePlan(t, w)

	if plan.Channel != "WhatsApp" {
		t.Errorf("metadata channel must outrank preference: expected WhatsApp, got %s", plan.Channel)
	}
}

func TestNextAction_HarrodsLead(t *testing.T) {
	handler := NextAction(testDB(t), rulePlanner())

	w := postJSON(t, handler, "/api/v1/next_action", map[string]any{
		"lead": map[string]any{
			"zoho_id":    "L3",
			"first_name": "Sara",
			"source":     "Harrods",
			"interests":  []string{"cribs"},
			"notes":      "spoke at the concession stand",
		},
		"state": map[string]any{"preferred_channel": "whatsapp"},
	})
	plan := decodePlan(t, w)

	if plan.Channel != "WhatsApp" {
		t.Errorf("expected WhatsApp, got %s", plan.Channel)
	}
	assertShape(t, plan)
	if !strings.Contains(*plan.Message.WhatsAppText, "Harrods") {
		t.Errorf("expected Harrods greeting, got %q", *plan.Message.WhatsAppText)
	}
	notes, _ := plan.Metadata["ai_notes"].(string)
	if !strings.HasPrefix(notes, "In-person followup:") {
		t.Errorf("expected in-person followup marker, got %q", notes)
	}
}

func TestNextAction_ThreadKeyPassthroughAndStoreKeys(t *testing.T) {
	handler := NextAction(testDB(t), rulePlanner())

	w := postJSON(t, handler, "/api/v1/next_action", map[string]any{
		"lead":     map[string]any{"zoho_id": "L4", "email": "a@b.com", "source": "Website"},
		"metadata": map[string]any{"thread_key": "tk-42"},
	})
	plan := decodePlan(t, w)

	if plan.Store["thread_key"] != "tk-42" {
		t.Errorf("expected thread_key passthrough, got %v", plan.Store["thread_key"])
	}
	for _, key := range []string{
		"decision_channel", "decision_priority", "ai_notes", "thread_key",
		"zoho_id", "name", "first_name", "email", "subject",
	} {
		if _, ok := plan.Store[key]; !ok {
			t.Errorf("store missing key %q", key)
		}
	}
}

func TestNextAction_PlanRecorded(t *testing.T) {
	db := testDB(t)
	handler := NextAction(db, rulePlanner())

	w := postJSON(t, handler, "/api/v1/next_action", map[string]any{
		"lead": map[string]any{"zoho_id": "L5", "source": "Website"},
	})
	plan := decodePlan(t, w)

	exists, err := db.PlanExists(plan.PlanID)
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Error("expected the issued plan in the audit log")
	}
}

func TestNextAction_ModelPath(t *testing.T) {
	// Fake DeepSeek returning a decision wrapped in a markdown fence, the way
	// models actually answer. The sanitizer must unwrap and validate it.
	fakeDeepSeek := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content := "```json\n{\"channel\": \"WhatsApp\", \"priority\": 9, \"to_agent\": false, \"notes\": \"Hot lead, reply fast.\"}\n```"
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
		})
	}))
	defer fakeDeepSeek.Close()
	llm.SetBaseURL(fakeDeepSeek.URL)
	llm.SetSystemPromptForTest("You are a follow-up planner for a test run.")

	handler := NextAction(testDB(t), planner.New(llm.NewClient("test-key")))

	w := postJSON(t, handler, "/api/v1/next_action", map[string]any{
		"lead": map[string]any{"zoho_id": "L6", "source": "Website"},
	})
	plan := decodePlan(t, w)

	if plan.Channel != "WhatsApp" {
		t.Errorf("expected model-suggested WhatsApp, got %s", plan.Channel)
	}
	if got, _ := plan.Metadata["priority"].(float64); got != 9 {
		t.Errorf("expected priority 9, got %v", plan.Metadata["priority"])
	}
	assertShape(t, plan)
}

func TestNextAction_ModelDown_StillReturnsValidPlan(t *testing.T) {
	fakeDeepSeek := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer fakeDeepSeek.Close()
	llm.SetBaseURL(fakeDeepSeek.URL)

	handler := NextAction(testDB(t), planner.New(llm.NewClient("test-key")))

	w := postJSON(t, handler, "/api/v1/next_action", map[string]any{
		"lead": map[string]any{"zoho_id": "L7", "source": "Website"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("model failure must not surface to the caller: got %d", w.Code)
	}

	plan := decodePlan(t, w)
	if plan.PlanID == "" || plan.Channel == "" {
		t.Errorf("expected a fully populated fallback plan: %+v", plan)
	}
	assertShape(t, plan)
}

// ─── POST /api/v1/next_action_flex ────────────────────────────────────────────

func TestNextActionFlex_EmptyBody_Returns400(t *testing.T) {
	handler := NextActionFlex(testDB(t), rulePlanner())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/next_action_flex", strings.NewReader(""))
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty body, got %d", w.Code)
	}
}

func TestNextActionFlex_FlatPayload(t *testing.T) {
	handler := NextActionFlex(testDB(t), rulePlanner())

	w := postJSON(t, handler, "/api/v1/next_action_flex", map[string]any{
		"zoho_id":    "F1",
		"name":       "Flat Lead",
		"email":      "flat@example.com",
		"source":     "Website",
		"interests":  "cribs",
		"thread_key": "tk-flex",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	plan := decodePlan(t, w)
	assertShape(t, plan)
	if plan.Store["thread_key"] != "tk-flex" {
		t.Errorf("expected flat thread_key in store, got %v", plan.Store["thread_key"])
	}
	if plan.Store["zoho_id"] != "F1" {
		t.Errorf("expected zoho_id passthrough, got %v", plan.Store["zoho_id"])
	}
	// A singular interest must still reach the composer.
	if !strings.Contains(*plan.Message.Body, "cribs") {
		t.Errorf("expected interest in drafted body, got %q", *plan.Message.Body)
	}
}

func TestNextActionFlex_NestedPayload(t *testing.T) {
	handler := NextActionFlex(testDB(t), rulePlanner())

	w := postJSON(t, handler, "/api/v1/next_action_flex", map[string]any{
		"lead":  map[string]any{"zoho_id": "F2", "source": "Website"},
		"state": map[string]any{"preferred_channel": "wa"},
	})
	plan := decodePlan(t, w)

	if plan.Channel != "WhatsApp" {
		t.Errorf("expected WhatsApp from nested state, got %s", plan.Channel)
	}
}

func TestReshapeFlex_InterestForms(t *testing.T) {
	lead, _, _ := reshapeFlex(map[string]any{"zoho_id": "X", "interests": "cribs"})
	if len(lead.Interests) != 1 || lead.Interests[0] != "cribs" {
		t.Errorf("singular interest: got %v", lead.Interests)
	}

	lead, _, _ = reshapeFlex(map[string]any{"zoho_id": "X", "interests": []any{"cribs", "wardrobes"}})
	if len(lead.Interests) != 2 {
		t.Errorf("interest list: got %v", lead.Interests)
	}

	lead, _, _ = reshapeFlex(map[string]any{"zoho_id": "X", "interests": "  "})
	if lead.Interests != nil {
		t.Errorf("blank interest should be dropped, got %v", lead.Interests)
	}

	lead, _, _ = reshapeFlex(map[string]any{"zoho_id": "X"})
	if lead.Interests != nil {
		t.Errorf("absent interests should stay nil, got %v", lead.Interests)
	}
}

// ─── POST /api/v1/respond ─────────────────────────────────────────────────────

func TestRespond_MissingText_Returns400(t *testing.T) {
	handler := Respond(testDB(t), rulePlanner())

	w := postJSON(t, handler, "/api/v1/respond", map[string]any{
		"zoho_id": "R1",
		"channel": "WhatsApp",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestRespond_MissingChannel_Returns400(t *testing.T) {
	handler := Respond(testDB(t), rulePlanner())

	w := postJSON(t, handler, "/api/v1/respond", map[string]any{
		"zoho_id":       "R1",
		"incoming_text": "hello",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestRespond_PlansOnInboundChannel(t *testing.T) {
	handler := Respond(testDB(t), rulePlanner())

	w := postJSON(t, handler, "/api/v1/respond", map[string]any{
		"zoho_id":       "R2",
		"incoming_text": "Yes, still interested!",
		"channel":       "WhatsApp",
		"timestamp":     "2026-08-29T10:00:00Z",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	plan := decodePlan(t, w)
	if plan.Channel != "WhatsApp" {
		t.Errorf("expected a reply on the inbound channel, got %s", plan.Channel)
	}
	assertShape(t, plan)

	// The inbound reply is appended as a synthetic history entry before
	// planning, so the assembler sees it as the latest turn.
	if plan.Metadata["history_last"] != "Yes, still interested!" {
		t.Errorf("expected synthetic history entry, got %v", plan.Metadata["history_last"])
	}
}

func TestRespond_KeepsCallerPlanID(t *testing.T) {
	handler := Respond(testDB(t), rulePlanner())

	w := postJSON(t, handler, "/api/v1/respond", map[string]any{
		"plan_id":       "caller-plan-1",
		"zoho_id":       "R3",
		"incoming_text": "hi",
		"channel":       "Email",
	})
	plan := decodePlan(t, w)

	if plan.PlanID != "caller-plan-1" {
		t.Errorf("expected caller plan_id to survive, got %s", plan.PlanID)
	}
}

// ─── POST /api/v1/process_lead ────────────────────────────────────────────────

func TestProcessLead_MissingZohoID_Returns400(t *testing.T) {
	handler := ProcessLead()

	w := postJSON(t, handler, "/api/v1/process_lead", map[string]any{"email": "a@b.com"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestProcessLead_UsesExistingThreadKey(t *testing.T) {
	handler := ProcessLead()

	w := postJSON(t, handler, "/api/v1/process_lead", map[string]any{
		"zoho_id":  "P1",
		"email":    "a@b.com",
		"source":   "Website",
		"metadata": map[string]any{"thread_key": "existing-key"},
	})
	var out models.LeadOutput
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if got := out.Metadata.GetString("thread_key"); got != "existing-key" {
		t.Errorf("expected existing thread_key, got %q", got)
	}
}

func TestProcessLead_DerivesThreadKey(t *testing.T) {
	handler := ProcessLead()

	cases := []struct {
		email, source, want string
	}{
		{"a@b.com", "Website", "a@b.com-Website"},
		{"a@b.com", "", "a@b.com-Unknown"},
		{"", "Website", "Unknown-Website"},
		{"", "", ""},
	}
	for _, c := range cases {
		w := postJSON(t, handler, "/api/v1/process_lead", map[string]any{
			"zoho_id": "P2", "email": c.email, "source": c.source,
		})
		var out models.LeadOutput
		if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		if got := out.Metadata.GetString("thread_key"); got != c.want {
			t.Errorf("email=%q source=%q: expected %q, got %q", c.email, c.source, c.want, got)
		}
	}
}

// ─── POST /api/v1/lead (legacy) ──────────────────────────────────────────────

func TestLegacyLead_RequiresContact(t *testing.T) {
	handler := LegacyLead(testDB(t), rulePlanner())

	w := postJSON(t, handler, "/api/v1/lead", map[string]any{"zoho_id": "LG1"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without email or phone, got %d", w.Code)
	}
}

func TestLegacyLead_ReturnsDecision(t *testing.T) {
	handler := LegacyLead(testDB(t), rulePlanner())

	w := postJSON(t, handler, "/api/v1/lead", map[string]any{
		"zoho_id":  "LG2",
		"email":    "legacy@example.com",
		"source":   "Website",
		"interest": "nursery wardrobes",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var decision models.LeadDecision
	if err := json.NewDecoder(w.Body).Decode(&decision); err != nil {
		t.Fatal(err)
	}
	if decision.ZohoID != "LG2" {
		t.Errorf("expected zoho_id passthrough, got %s", decision.ZohoID)
	}
	if decision.Channel == "" {
		t.Error("expected a resolved channel")
	}
	if decision.Priority < 1 || decision.Priority > 10 {
		t.Errorf("priority out of range: %d", decision.Priority)
	}
	if decision.Notes == "" {
		t.Error("expected non-empty notes")
	}
	if !strings.Contains(decision.Message, "nursery wardrobes") {
		t.Errorf("expected flattened drafted message, got %q", decision.Message)
	}
}

// ─── GET /api/v1/plans/{zoho_id} ─────────────────────────────────────────────

func plansRouter(db *database.DB) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/plans/{zoho_id}", RecentPlans(db)).Methods(http.MethodGet)
	return r
}

func TestRecentPlans_EmptyForUnknownLead(t *testing.T) {
	r := plansRouter(testDB(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/plans/NOBODY", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var out struct {
		ZohoID string              `json:"zoho_id"`
		Plans  []models.PlanRecord `json:"plans"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Plans) != 0 {
		t.Errorf("expected empty plans list, got %d", len(out.Plans))
	}
}

func TestRecentPlans_ReturnsIssuedPlans(t *testing.T) {
	db := testDB(t)

	w := postJSON(t, NextAction(db, rulePlanner()), "/api/v1/next_action", map[string]any{
		"lead": map[string]any{"zoho_id": "PL1", "source": "Website"},
	})
	issued := decodePlan(t, w)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/plans/PL1", nil)
	rec := httptest.NewRecorder()
	plansRouter(db).ServeHTTP(rec, req)

	var out struct {
		Plans []models.PlanRecord `json:"plans"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Plans) != 1 {
		t.Fatalf("expected 1 recorded plan, got %d", len(out.Plans))
	}
	if out.Plans[0].PlanID != issued.PlanID {
		t.Errorf("expected recorded plan %s, got %s", issued.PlanID, out.Plans[0].PlanID)
	}
}
