package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/secrelay/sumologic-relay/internal/bus"
	"github.com/secrelay/sumologic-relay/internal/ctim"
	"github.com/secrelay/sumologic-relay/internal/enrich"
	"github.com/secrelay/sumologic-relay/internal/metrics"
	"github.com/secrelay/sumologic-relay/internal/relayerr"
	"github.com/secrelay/sumologic-relay/internal/store"
	"github.com/secrelay/sumologic-relay/internal/sumologic"
)

var serveBind string

// serveCmd runs the relay HTTP server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the enrichment relay HTTP server",
	Long: `Serve exposes the Threat Response relay endpoints:

  POST /observe/observables     sightings + judgements + verdicts
  POST /deliberate/observables  verdicts only
  POST /refer/observables       reference links (none for this backend)
  GET  /health                  Sumo Logic connectivity probe
  GET  /metrics                 Prometheus metrics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveBind, "bind", "", "bind address (overrides serve.bind)")
	rootCmd.AddCommand(serveCmd)
}

// relayServer wires the enricher and its side channels behind the HTTP mux.
type relayServer struct {
	cfg      Config
	enricher *enrich.Enricher
	logger   *log.Logger
}

func runServe(ctx context.Context) error {
	cfg := GetConfig()
	if serveBind != "" {
		cfg.Serve.Bind = serveBind
	}
	logger := log.New(os.Stderr, "[serve] ", log.LstdFlags)

	eventBus := bus.NewBus(cfg.Redis.URL, log.New(os.Stderr, "[bus] ", log.LstdFlags))
	defer eventBus.Close()

	var auditStore *store.Store
	if cfg.Database.Path != "" {
		var err error
		if auditStore, err = store.NewStore(cfg.Database.Path); err != nil {
			return fmt.Errorf("failed to open audit store: %w", err)
		}
		defer auditStore.Close()
	}

	modes := sumologic.NewModeRegistry(logger)
	if cfg.Modes.File != "" {
		if err := modes.LoadFile(cfg.Modes.File); err != nil {
			return err
		}
		go func() {
			if err := modes.Watch(ctx, cfg.Modes.File); err != nil && !errors.Is(err, context.Canceled) {
				logger.Printf("Modes watcher stopped: %v", err)
			}
		}()
	}

	server := &relayServer{
		cfg: cfg,
		enricher: enrich.NewEnricher(enrich.Options{
			Workers:       cfg.Enrich.Workers,
			EntitiesLimit: cfg.Limits.Entities,
			JobMaxTime:    cfg.Limits.JobMaxTime,
			Modes:         modes,
			Bus:           eventBus,
			Store:         auditStore,
			Metrics:       metrics.NewMetrics(),
			Logger:        logger,
		}),
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/observe/observables", server.handleEnrich(enrich.FlowObserve))
	mux.HandleFunc("/deliberate/observables", server.handleEnrich(enrich.FlowDeliberate))
	mux.HandleFunc("/refer/observables", server.handleRefer)
	mux.HandleFunc("/health", server.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         cfg.Serve.Bind,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // poll loops can legitimately run long
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("Relay listening on %s", cfg.Serve.Bind)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
		logger.Println("Received shutdown signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// authorize enforces the optional shared bearer token on the listener.
func (s *relayServer) authorize(w http.ResponseWriter, r *http.Request) bool {
	if s.cfg.Serve.Token == "" {
		return true
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") && strings.TrimPrefix(header, "Bearer ") == s.cfg.Serve.Token {
		return true
	}
	w.WriteHeader(http.StatusUnauthorized)
	return false
}

func (s *relayServer) credentials() (sumologic.Credentials, *relayerr.Error) {
	cfg := s.cfg.Sumo
	if cfg.Endpoint == "" || cfg.AccessID == "" || cfg.AccessKey == "" {
		return sumologic.Credentials{}, relayerr.New("authorization error",
			"Authorization failed: Sumo Logic credentials are not configured")
	}
	return sumologic.Credentials{
		Endpoint:  cfg.Endpoint,
		AccessID:  cfg.AccessID,
		AccessKey: cfg.AccessKey,
	}, nil
}

// readObservables parses and validates the request body: a JSON array of
// {type, value} objects, both fields required.
func readObservables(r *http.Request) ([]ctim.Observable, *relayerr.Error) {
	var observables []ctim.Observable
	if err := json.NewDecoder(r.Body).Decode(&observables); err != nil {
		return nil, relayerr.NewInvalidArgument(fmt.Sprintf("Invalid JSON payload: %v", err))
	}
	for i, observable := range observables {
		if observable.Type == "" {
			return nil, relayerr.NewInvalidArgument(fmt.Sprintf("{%d: {'type': ['Field may not be blank.']}}", i))
		}
		if observable.Value == "" {
			return nil, relayerr.NewInvalidArgument(fmt.Sprintf("{%d: {'value': ['Field may not be blank.']}}", i))
		}
	}
	return observables, nil
}

// handleEnrich serves /observe/observables and /deliberate/observables.
func (s *relayServer) handleEnrich(flow string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.authorize(w, r) {
			return
		}

		observables, entryErr := readObservables(r)
		if entryErr != nil {
			writeErrors(w, entryErr)
			return
		}
		creds, entryErr := s.credentials()
		if entryErr != nil {
			writeErrors(w, entryErr)
			return
		}

		result := s.enricher.Enrich(r.Context(), creds, observables, flow)
		writeJSON(w, result.Envelope())
	}
}

// handleRefer validates the request and returns an empty result: this backend
// exposes no reference links.
func (s *relayServer) handleRefer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.authorize(w, r) {
		return
	}
	if _, entryErr := readObservables(r); entryErr != nil {
		writeErrors(w, entryErr)
		return
	}
	writeJSON(w, map[string]interface{}{"data": []interface{}{}})
}

// handleHealth probes Sumo Logic with the configured credentials.
func (s *relayServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}
	creds, entryErr := s.credentials()
	if entryErr != nil {
		writeErrors(w, entryErr)
		return
	}

	client := sumologic.NewClient(creds, sumologic.ClientOptions{Logger: s.logger})
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	if err := client.Health(ctx); err != nil {
		writeErrors(w, relayerr.Wrap(err))
		return
	}
	writeJSON(w, map[string]interface{}{"data": map[string]string{"status": "ok"}})
}

func writeErrors(w http.ResponseWriter, entries ...*relayerr.Error) {
	writeJSON(w, map[string]interface{}{"errors": entries})
}

func writeJSON(w http.ResponseWriter, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Headers are gone at this point; nothing left to do but log.
		log.Printf("failed to encode response: %v", err)
	}
}
