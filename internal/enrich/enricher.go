// Package enrich orchestrates the enrichment of observables: it fans a batch
// out over a bounded worker pool, runs the search-job chain per observable and
// normalizes the results into CTIM entities. A fatal failure for one
// observable never aborts the others.
package enrich

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/secrelay/sumologic-relay/internal/bus"
	"github.com/secrelay/sumologic-relay/internal/ctim"
	"github.com/secrelay/sumologic-relay/internal/mapping"
	"github.com/secrelay/sumologic-relay/internal/metrics"
	"github.com/secrelay/sumologic-relay/internal/relayerr"
	"github.com/secrelay/sumologic-relay/internal/store"
	"github.com/secrelay/sumologic-relay/internal/sumologic"
)

// Flows select which entity kinds an enrichment call produces.
const (
	// FlowObserve runs both search modes: sightings plus judgement and
	// verdict, with the verdict referencing the judgement.
	FlowObserve = "observe"
	// FlowDeliberate runs only the intel lookup and yields a bare verdict.
	FlowDeliberate = "deliberate"
)

const defaultWorkers = 4
const defaultIntelCacheSize = 512

// Options configure an Enricher. Bus, Store and Metrics are optional.
type Options struct {
	Workers        int
	EntitiesLimit  int
	JobMaxTime     time.Duration
	Modes          *sumologic.ModeRegistry
	Bus            bus.Bus
	Store          *store.Store
	Metrics        *metrics.Metrics
	IntelCacheSize int
	Logger         *log.Logger
}

// Enricher runs enrichment batches against one Sumo Logic backend per call.
type Enricher struct {
	opts       Options
	modes      *sumologic.ModeRegistry
	intelCache *lru.Cache[string, *mapping.IntelPayload]
	logger     *log.Logger
}

// Result is one batch's outcome: entities grouped by kind, in the order of
// the observables that produced them, plus every warning and error collected
// along the way.
type Result struct {
	Sightings  []ctim.Sighting
	Judgements []ctim.Judgement
	Verdicts   []ctim.Verdict
	Errors     []*relayerr.Error
}

// observableResult is one worker's slot, merged in input order afterwards.
type observableResult struct {
	sightings  []ctim.Sighting
	judgements []ctim.Judgement
	verdicts   []ctim.Verdict
}

// NewEnricher builds an enricher.
func NewEnricher(opts Options) *Enricher {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.IntelCacheSize <= 0 {
		opts.IntelCacheSize = defaultIntelCacheSize
	}
	if opts.Modes == nil {
		opts.Modes = sumologic.NewModeRegistry(opts.Logger)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	cache, _ := lru.New[string, *mapping.IntelPayload](opts.IntelCacheSize)
	return &Enricher{
		opts:       opts,
		modes:      opts.Modes,
		intelCache: cache,
		logger:     logger,
	}
}

// Enrich processes a batch of observables with the given credentials and flow.
// Observables are independent and run concurrently on a bounded pool; output
// entity order follows input order.
func (e *Enricher) Enrich(ctx context.Context, creds sumologic.Credentials, observables []ctim.Observable, flow string) *Result {
	client := sumologic.NewClient(creds, sumologic.ClientOptions{Logger: e.logger})
	search := sumologic.NewSearchService(client, sumologic.ServiceOptions{
		JobMaxTime:    e.opts.JobMaxTime,
		EntitiesLimit: e.opts.EntitiesLimit,
		Logger:        e.logger,
	})

	collector := relayerr.NewCollector()
	slots := make([]observableResult, len(observables))

	sem := make(chan struct{}, e.opts.Workers)
	var wg sync.WaitGroup
	for i, observable := range observables {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, observable ctim.Observable) {
			defer wg.Done()
			defer func() { <-sem }()
			// Per-worker collector, merged at the end, so the audit trail
			// can attribute warnings to the observable that produced them.
			local := relayerr.NewCollector()
			slots[i] = e.enrichOne(ctx, search, observable, flow, local)
			collector.Add(local.Entries()...)
		}(i, observable)
	}
	wg.Wait()

	result := &Result{Errors: collector.Entries()}
	for _, slot := range slots {
		result.Sightings = append(result.Sightings, slot.sightings...)
		result.Judgements = append(result.Judgements, slot.judgements...)
		result.Verdicts = append(result.Verdicts, slot.verdicts...)
	}

	m := e.opts.Metrics
	m.IncEntities("sighting", len(result.Sightings))
	m.IncEntities("judgement", len(result.Judgements))
	m.IncEntities("verdict", len(result.Verdicts))
	for _, entry := range result.Errors {
		m.IncError(entry.Type)
	}
	return result
}

// enrichOne runs the full chain for a single observable. Fatal errors go to
// the collector and stop this observable only.
func (e *Enricher) enrichOne(ctx context.Context, search *sumologic.SearchService, observable ctim.Observable, flow string, collector *relayerr.Collector) observableResult {
	started := time.Now()
	var slot observableResult

	if flow == FlowObserve {
		slot.sightings = e.observeSightings(ctx, search, observable, collector)
	}

	payload, err := e.lookupIntel(ctx, search, observable, collector)
	if err != nil {
		collector.AddError(err)
	} else if payload != nil {
		judgementID := ""
		if flow == FlowObserve {
			judgement, err := mapping.Judgement(observable, payload)
			if err != nil {
				collector.AddError(err)
			} else {
				slot.judgements = append(slot.judgements, judgement)
				judgementID = judgement.ID
			}
		}
		verdict, err := mapping.Verdict(observable, payload, judgementID)
		if err != nil {
			collector.AddError(err)
		} else {
			slot.verdicts = append(slot.verdicts, verdict)
		}
	}

	e.finishObservable(ctx, observable, flow, slot, collector, time.Since(started))
	return slot
}

// observeSightings runs the broad message search and maps each hit.
func (e *Enricher) observeSightings(ctx context.Context, search *sumologic.SearchService, observable ctim.Observable, collector *relayerr.Collector) []ctim.Sighting {
	mode, ok := e.modes.Get(sumologic.ModeMessages)
	if !ok {
		collector.Add(relayerr.New(relayerr.CodeUnknown, "message search mode is not configured"))
		return nil
	}

	e.opts.Metrics.IncSearchJob(mode.Name)
	result, err := search.Run(ctx, mode, observable.Value)
	if err != nil {
		collector.AddError(err)
		return nil
	}
	e.opts.Metrics.IncJobState(result.State)
	collector.Add(result.Warnings...)

	sightings := make([]ctim.Sighting, 0, len(result.Messages))
	for _, message := range result.Messages {
		sighting, err := mapping.Sighting(observable, message)
		if err != nil {
			collector.AddError(err)
			continue
		}
		sightings = append(sightings, sighting)
	}
	return sightings
}

// lookupIntel runs the threat-intel search for one observable, serving
// repeated lookups from the in-process cache. A nil payload with nil error
// means the backend had no intel for this observable.
func (e *Enricher) lookupIntel(ctx context.Context, search *sumologic.SearchService, observable ctim.Observable, collector *relayerr.Collector) (*mapping.IntelPayload, error) {
	cacheKey := observable.Type + "|" + observable.Value
	if payload, ok := e.intelCache.Get(cacheKey); ok {
		e.opts.Metrics.CacheHit()
		return payload, nil
	}
	e.opts.Metrics.CacheMiss()

	mode, ok := e.modes.Get(sumologic.ModeIntel)
	if !ok {
		return nil, relayerr.New(relayerr.CodeUnknown, "intel search mode is not configured")
	}

	e.opts.Metrics.IncSearchJob(mode.Name)
	result, err := search.Run(ctx, mode, observable.Value)
	if err != nil {
		return nil, err
	}
	e.opts.Metrics.IncJobState(result.State)
	collector.Add(result.Warnings...)

	if len(result.Messages) == 0 {
		return nil, nil
	}
	payload, err := mapping.ParseIntel(result.Messages[0])
	if err != nil {
		return nil, err
	}
	e.intelCache.Add(cacheKey, payload)
	return payload, nil
}

// finishObservable emits the per-observable audit row, bus summary and
// duration metric. These are operational side channels; their failures are
// logged, never surfaced into the enrichment result.
func (e *Enricher) finishObservable(ctx context.Context, observable ctim.Observable, flow string, slot observableResult, collector *relayerr.Collector, elapsed time.Duration) {
	e.opts.Metrics.ObserveEnrichment(flow, elapsed.Seconds())

	warnings, fatals := 0, 0
	for _, entry := range collector.Entries() {
		if entry.Fatal() {
			fatals++
		} else {
			warnings++
		}
	}

	if e.opts.Store != nil {
		if _, err := e.opts.Store.AddEntry(ctx, store.AuditEntry{
			ObservableType:  observable.Type,
			ObservableValue: observable.Value,
			Flow:            flow,
			Sightings:       len(slot.sightings),
			Judgements:      len(slot.judgements),
			Verdicts:        len(slot.verdicts),
			Warnings:        warnings,
			Fatals:          fatals,
			Duration:        elapsed,
		}); err != nil {
			e.logger.Printf("Failed to record audit entry for %s %s: %v", observable.Type, observable.Value, err)
		}
	}

	if e.opts.Bus != nil {
		if err := e.opts.Bus.PublishEnrichment(ctx, bus.EnrichmentMessage{
			ObservableType:  observable.Type,
			ObservableValue: observable.Value,
			Flow:            flow,
			Sightings:       len(slot.sightings),
			Judgements:      len(slot.judgements),
			Verdicts:        len(slot.verdicts),
			Warnings:        warnings,
			Fatals:          fatals,
			DurationMS:      elapsed.Milliseconds(),
			Timestamp:       time.Now().Unix(),
		}); err != nil {
			e.logger.Printf("Failed to publish enrichment summary for %s %s: %v", observable.Type, observable.Value, err)
		}
	}
}
