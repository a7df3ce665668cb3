package main

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"leadpilot/internal/config"
	"leadpilot/internal/database"
	"leadpilot/internal/handlers"
	"leadpilot/internal/llm"
	"leadpilot/internal/planner"
)

func main() {
	// 0. Load a local .env if one exists; real env vars win.
	_ = godotenv.Load()

	// 1. Load and validate all environment variables — fail fast if any are missing.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// 2. Load and compile the YAML system prompt.
	llm.LoadPrompt(cfg.PromptPath)

	// 3. Initialise the SQLite plan audit log and run migrations.
	db := database.Init(cfg.DBPath)

	// 4. Wire the planning engine. Mock mode stays on the deterministic path.
	var completer planner.Completer
	if !cfg.MockLLM {
		completer = llm.NewClient(cfg.DeepSeekAPIKey)
	} else {
		log.Println("planner: MOCK_LLM=true, using deterministic rule path")
	}
	p := planner.New(completer)

	// 5. Set up the router.
	r := mux.NewRouter()

	r.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/next_action", handlers.NextAction(db, p)).Methods(http.MethodPost)
	api.HandleFunc("/next_action_flex", handlers.NextActionFlex(db, p)).Methods(http.MethodPost)
	api.HandleFunc("/respond", handlers.Respond(db, p)).Methods(http.MethodPost)
	api.HandleFunc("/process_lead", handlers.ProcessLead()).Methods(http.MethodPost)
	api.HandleFunc("/lead", handlers.LegacyLead(db, p)).Methods(http.MethodPost)
	api.HandleFunc("/plans/{zoho_id}", handlers.RecentPlans(db)).Methods(http.MethodGet)

	// 6. Start the server.
	log.Printf("server: listening on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, r); err != nil {
		log.Fatalf("server: %v", err)
	}
}
