package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/secrelay/sumologic-relay/internal/bus"
	"github.com/secrelay/sumologic-relay/internal/ctim"
	"github.com/secrelay/sumologic-relay/internal/enrich"
	"github.com/secrelay/sumologic-relay/internal/relayerr"
	"github.com/secrelay/sumologic-relay/internal/store"
	"github.com/secrelay/sumologic-relay/internal/sumologic"
)

var enrichDeliberate bool

// enrichCmd runs a one-shot enrichment from the command line.
var enrichCmd = &cobra.Command{
	Use:   "enrich <type> <value>",
	Short: "Enrich a single observable and print the result",
	Long: `Enrich runs one observable through the full pipeline and prints the relay
response envelope as JSON, e.g.:

  sumo-relay enrich domain cisco.com --endpoint https://api.us2.sumologic.com/api/v1`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEnrich(cmd, args[0], args[1])
	},
}

func init() {
	enrichCmd.Flags().BoolVar(&enrichDeliberate, "deliberate", false, "run the deliberate flow (verdict only)")
	rootCmd.AddCommand(enrichCmd)
}

func runEnrich(cmd *cobra.Command, observableType, observableValue string) error {
	cfg := GetConfig()
	logger := log.New(os.Stderr, "[enrich] ", log.LstdFlags)

	if cfg.Sumo.Endpoint == "" || cfg.Sumo.AccessID == "" || cfg.Sumo.AccessKey == "" {
		return fmt.Errorf("sumo.endpoint, sumo.access_id and sumo.access_key must be configured")
	}

	eventBus := bus.NewBus(cfg.Redis.URL, logger)
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
	}

	enricher := enrich.NewEnricher(enrich.Options{
		Workers:       cfg.Enrich.Workers,
		EntitiesLimit: cfg.Limits.Entities,
		JobMaxTime:    cfg.Limits.JobMaxTime,
		Modes:         modes,
		Bus:           eventBus,
		Store:         auditStore,
		Logger:        logger,
	})

	flow := enrich.FlowObserve
	if enrichDeliberate {
		flow = enrich.FlowDeliberate
	}
	logger.Printf("Running %s flow for %s %s", flow, ctim.HumanReadableType(observableType), observableValue)

	result := enricher.Enrich(cmd.Context(), sumologic.Credentials{
		Endpoint:  cfg.Sumo.Endpoint,
		AccessID:  cfg.Sumo.AccessID,
		AccessKey: cfg.Sumo.AccessKey,
	}, []ctim.Observable{{Type: observableType, Value: observableValue}}, flow)

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result.Envelope()); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	for _, entry := range result.Errors {
		if entry.Type == relayerr.TypeFatal {
			return fmt.Errorf("enrichment failed: %s", entry.Message)
		}
	}
	return nil
}
