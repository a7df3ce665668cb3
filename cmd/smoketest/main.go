// smoketest verifies a locally running API end to end.
// Run with: go run ./cmd/smoketest/main.go
// Start the server first (MOCK_LLM=true works fine for this).
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

const localAPI = "http://localhost:8080"

func main() {
	passed := 0
	failed := 0

	run := func(name string, fn func() error) {
		fmt.Printf("  %-55s", name)
		if err := fn(); err != nil {
			fmt.Printf("FAIL — %v\n", err)
			failed++
		} else {
			fmt.Printf("OK\n")
			passed++
		}
	}

	fmt.Println("\n── Local API ───────────────────────────────────────────────")
	run("GET /health returns 200 + {status:healthy}", checkHealth)

	fmt.Println("\n── Planning ────────────────────────────────────────────────")
	run("POST /next_action plans for a website lead", checkNextAction)
	run("POST /next_action without zoho_id returns 400", checkNextActionMissingID)
	run("POST /next_action_flex reshapes a flat payload", checkNextActionFlex)
	run("POST /respond plans after an inbound reply", checkRespond)
	run("POST /process_lead resolves a thread key", checkProcessLead)

	fmt.Printf("\n%d passed, %d failed\n\n", passed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func checkHealth() error {
	resp, err := get(localAPI + "/health")
	if err != nil {
		return fmt.Errorf("could not reach server (is it running?): %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if body["status"] != "healthy" {
		return fmt.Errorf("expected status=healthy, got %q", body["status"])
	}
	return nil
}

func checkNextAction() error {
	payload := map[string]any{
		"lead": map[string]any{
			"zoho_id": "SMOKE_001",
			"name":    "Smoke Test",
			"email":   "smoke@example.com",
			"source":  "Website",
		},
		"state":    map[string]any{"preferred_channel": "phone"},
		"metadata": map[string]any{"thread_key": "smoke-thread-1"},
	}

	plan, err := postPlan("/api/v1/next_action", payload)
	if err != nil {
		return err
	}
	if plan["channel"] != "Phone" {
		return fmt.Errorf("expected channel Phone, got %v", plan["channel"])
	}
	if plan["plan_id"] == "" || plan["plan_id"] == nil {
		return fmt.Errorf("expected a generated plan_id")
	}
	store, _ := plan["store"].(map[string]any)
	if store["thread_key"] != "smoke-thread-1" {
		return fmt.Errorf("expected thread_key passthrough, got %v", store["thread_key"])
	}
	return nil
}

func checkNextActionMissingID() error {
	body, _ := json.Marshal(map[string]any{"lead": map[string]any{"name": "No ID"}})
	resp, err := post("/api/v1/next_action", body)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		return fmt.Errorf("expected 400, got %d", resp.StatusCode)
	}
	return nil
}

func checkNextActionFlex() error {
	payload := map[string]any{
		"zoho_id":   "SMOKE_002",
		"name":      "Flex Test",
		"email":     "flex@example.com",
		"source":    "Harrods",
		"interests": "cribs", // singular string, must be coerced to a list
	}

	plan, err := postPlan("/api/v1/next_action_flex", payload)
	if err != nil {
		return err
	}
	if plan["channel"] != "Email" {
		return fmt.Errorf("expected channel Email for in-person default, got %v", plan["channel"])
	}
	return nil
}

func checkRespond() error {
	payload := map[string]any{
		"zoho_id":       "SMOKE_003",
		"incoming_text": "Yes, I'm still interested!",
		"channel":       "WhatsApp",
	}

	plan, err := postPlan("/api/v1/respond", payload)
	if err != nil {
		return err
	}
	if plan["channel"] != "WhatsApp" {
		return fmt.Errorf("expected reply on WhatsApp, got %v", plan["channel"])
	}
	msg, _ := plan["message"].(map[string]any)
	if msg["whatsapp_text"] == nil {
		return fmt.Errorf("expected chat-shaped message")
	}
	return nil
}

func checkProcessLead() error {
	payload := map[string]any{
		"zoho_id": "SMOKE_004",
		"email":   "smoke@example.com",
		"source":  "Website",
	}
	body, _ := json.Marshal(payload)
	resp, err := post("/api/v1/process_lead", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("expected 200, got %d", resp.StatusCode)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	meta, _ := out["metadata"].(map[string]any)
	if meta["thread_key"] != "smoke@example.com-Website" {
		return fmt.Errorf("expected derived thread_key, got %v", meta["thread_key"])
	}
	return nil
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func postPlan(path string, payload map[string]any) (map[string]any, error) {
	body, _ := json.Marshal(payload)
	resp, err := post(path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("expected 200, got %d", resp.StatusCode)
	}
	var plan map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&plan); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return plan, nil
}

func post(path string, body []byte) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, localAPI+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return http.DefaultClient.Do(req)
}

func get(url string) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return http.DefaultClient.Do(req)
}
