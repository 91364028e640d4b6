package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"walter-bridge/internal/assistant"
	"walter-bridge/internal/config"
	"walter-bridge/internal/db"
	"walter-bridge/internal/enrich"
	"walter-bridge/internal/inbound"
	"walter-bridge/internal/lookup"
	"walter-bridge/internal/metrics"
	"walter-bridge/internal/session"
	"walter-bridge/internal/store"
	"walter-bridge/internal/types"
	"walter-bridge/internal/vehicle"
)

// Answerer produces the assistant's reply to one visitor message.
type Answerer interface {
	Answer(ctx context.Context, conversationID, text string) (string, error)
}

type Server struct {
	router   *chi.Mux
	cfg      config.Config
	logger   *zap.Logger
	metrics  *metrics.Collector
	sessions *session.Manager
	answerer Answerer
	enricher *enrich.Enricher
	// configErr is set when required settings are missing; the webhook then
	// answers with the configuration fallback.
	configErr error
	closers   []func() error
}

// NewServer wires the webhook from cfg. Missing credentials do not fail
// startup; backends that are configured but unreachable do.
func NewServer(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
	}
	if cfg.MetricsEnabled {
		s.metrics = metrics.New()
	}

	if err := cfg.Validate(); err != nil {
		s.configErr = err
		logger.Error("assistant is not configured; answering with fallback", zap.Error(err))
	} else if err := s.buildAnswerer(ctx); err != nil {
		s.Close()
		return nil, err
	}

	if cfg.VehicleEnrichment {
		if err := s.buildEnricher(); err != nil {
			s.Close()
			return nil, err
		}
	}

	s.routes()
	return s, nil
}

func (s *Server) buildAnswerer(ctx context.Context) error {
	client := assistant.NewOpenAIClient(s.cfg.OpenAIAPIKey, s.cfg.OpenAIBaseURL)
	switch s.cfg.Mode {
	case config.ModeCompletion:
		s.answerer = assistant.NewCompletionAnswerer(client, s.cfg.Model, s.cfg.SystemPrompt)
		s.logger.Info("answering with chat completions", zap.String("model", s.cfg.Model))
		return nil
	case config.ModeAssistants:
	default:
		return fmt.Errorf("unknown assistant mode %q", s.cfg.Mode)
	}

	st, err := s.openStore(ctx)
	if err != nil {
		return err
	}
	threads := assistant.NewOpenAIThreads(client, s.cfg.AssistantID)
	s.sessions = session.NewManager(st, threads, s.cfg.ResetKeywords, s.logger.Named("session"), s.metrics)
	runner := assistant.NewRunner(threads, assistant.RunnerConfig{
		PollInterval:    s.cfg.PollInterval,
		MaxWait:         s.cfg.MaxWait,
		CancelOnTimeout: s.cfg.CancelOnTimeout,
	}, s.logger.Named("assistant"), s.metrics)
	s.answerer = assistant.NewThreadAnswerer(s.sessions, runner)
	s.logger.Info("answering with assistant threads",
		zap.String("assistant_id", s.cfg.AssistantID),
		zap.String("session_store", s.cfg.SessionStore))
	return nil
}

func (s *Server) openStore(ctx context.Context) (store.ThreadStore, error) {
	switch s.cfg.SessionStore {
	case "", "memory":
		return store.NewMemoryStore(), nil
	case "file":
		fs, err := store.NewFileStore(s.cfg.SessionFile)
		if err != nil {
			return nil, fmt.Errorf("open session file: %w", err)
		}
		return fs, nil
	case "redis":
		rs, err := store.NewRedisStore(ctx, s.cfg.RedisURL, s.cfg.SessionTTL)
		if err != nil {
			return nil, fmt.Errorf("connect redis session store: %w", err)
		}
		s.closers = append(s.closers, rs.Close)
		return rs, nil
	case "postgres":
		database, err := db.New(ctx, s.cfg.DatabaseURL, s.logger.Named("db"))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		s.closers = append(s.closers, database.Close)
		if err := database.RunMigrations(ctx, s.cfg.MigrationsDir); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return store.NewDatabaseStore(database), nil
	}
	return nil, fmt.Errorf("unknown session store %q", s.cfg.SessionStore)
}

func (s *Server) buildEnricher() error {
	rules := vehicle.DefaultRules()
	if s.cfg.VehicleRulesFile != "" {
		loaded, err := vehicle.LoadRules(s.cfg.VehicleRulesFile)
		if err != nil {
			return fmt.Errorf("load vehicle rules: %w", err)
		}
		rules = loaded
	}
	var lk enrich.Lookuper
	if s.cfg.LookupEnabled() {
		lk = lookup.NewClient(lookup.Config{
			BaseURL:   s.cfg.LookupBaseURL,
			PublicKey: s.cfg.LookupPublicKey,
			Token:     s.cfg.LookupToken,
			Timeout:   s.cfg.LookupTimeout,
		}, s.logger, s.metrics)
	} else {
		s.logger.Info("vehicle lookup disabled; LOOKUP_BASE_URL not set")
	}
	s.enricher = enrich.New(vehicle.NewExtractor(rules), lk, s.logger.Named("enrich"))
	return nil
}

func (s *Server) routes() {
	s.router.Use(middleware.RealIP)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{s.cfg.AllowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With", inbound.ConversationHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Get("/", s.handleRoot)
	s.router.Get(s.cfg.WebhookPath, s.handleHealth)
	s.router.Post(s.cfg.WebhookPath, s.handleWebhook)
	s.router.Delete("/conversations/{id}", s.handleResetConversation)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}
}

func (s *Server) Router() http.Handler { return s.router }

// Close releases store connections.
func (s *Server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Walter webhook is running."))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, types.StatusResponse{Status: "ok"})
}

func (s *Server) handleResetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.sessions == nil {
		writeJSON(w, http.StatusConflict, types.ErrorResponse{Error: "conversations are not tracked in this mode"})
		return
	}
	if err := s.sessions.Reset(r.Context(), id); err != nil {
		s.logger.Error("reset conversation", zap.String("conversation_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, types.ErrorResponse{Error: "could not reset conversation"})
		return
	}
	if c, err := r.Cookie(inbound.CookieName); err == nil && c.Value == id {
		ClearConversationCookie(w)
	}
	writeJSON(w, http.StatusOK, types.StatusResponse{Status: "reset"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
