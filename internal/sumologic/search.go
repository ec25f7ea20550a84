package sumologic

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/secrelay/sumologic-relay/internal/relayerr"
)

// Job states as reported by the Sumo Logic Search Job API. The backend owns
// all transitions; the relay only observes them.
const (
	StateNotStarted  = "NOT STARTED"
	StateGathering   = "GATHERING RESULTS"
	StateDone        = "DONE GATHERING RESULTS"
	StateForcePaused = "FORCE PAUSED"
	StateCancelled   = "CANCELLED"
)

// DefaultJobMaxTime is the wall-clock ceiling for one search job's poll loop.
// It is global across modes and measured from when polling begins; it is never
// reset by intermediate polls.
const DefaultJobMaxTime = 60 * time.Second

// DefaultEntitiesLimit caps how many messages one search returns.
const DefaultEntitiesLimit = 100

// RawMessage is one backend log record: field name to string value. Reserved
// fields use the underscore prefix convention (_messageid, _messagetime, ...).
type RawMessage map[string]string

// SearchResult is what one completed (or deadline-bounded) search yields.
type SearchResult struct {
	Messages     []RawMessage
	MessageCount int
	State        string
	Warnings     []*relayerr.Error
}

// SearchService drives the lifecycle of search jobs through a Client.
type SearchService struct {
	client     *Client
	jobMaxTime time.Duration
	limit      int
	logger     *log.Logger
}

// ServiceOptions tweak the search service; zero values pick the defaults.
type ServiceOptions struct {
	JobMaxTime    time.Duration
	EntitiesLimit int
	Logger        *log.Logger
}

// NewSearchService builds a search service on top of client.
func NewSearchService(client *Client, opts ServiceOptions) *SearchService {
	jobMaxTime := opts.JobMaxTime
	if jobMaxTime <= 0 {
		jobMaxTime = DefaultJobMaxTime
	}
	limit := opts.EntitiesLimit
	if limit < 1 || limit > DefaultEntitiesLimit {
		limit = DefaultEntitiesLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &SearchService{
		client:     client,
		jobMaxTime: jobMaxTime,
		limit:      limit,
		logger:     logger,
	}
}

// Limit returns the effective entities cap.
func (s *SearchService) Limit() int {
	return s.limit
}

type createJobResponse struct {
	ID string `json:"id"`
}

type jobStatusResponse struct {
	State        string `json:"state"`
	MessageCount int    `json:"messageCount"`
}

type messagesResponse struct {
	Messages []struct {
		Map map[string]string `json:"map"`
	} `json:"messages"`
}

// Run executes one search for observableValue in the given mode: submit the
// job, poll it until a terminal state or the wall-clock ceiling, fetch up to
// the entities cap worth of messages and delete the job best-effort.
//
// A job that never leaves NOT STARTED before the ceiling is a fatal error; one
// still in GATHERING RESULTS at the ceiling produces a warning and whatever
// partial results exist. CANCELLED and FORCE PAUSED abort immediately.
func (s *SearchService) Run(ctx context.Context, mode SearchMode, observableValue string) (*SearchResult, error) {
	jobID, err := s.createJob(ctx, mode, observableValue)
	if err != nil {
		return nil, err
	}
	s.logger.Printf("Created %s search job %s for %q", mode.Name, jobID, observableValue)
	defer s.deleteJob(jobID)

	pollStart := time.Now()

	status, err := s.checkStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if err := sleepContext(ctx, mode.FirstDelay); err != nil {
		return nil, err
	}

	result := &SearchResult{}
	for status.State != StateDone {
		if status.State == StateForcePaused || status.State == StateCancelled {
			return nil, relayerr.NewSearchJobWrongState(observableValue, status.State)
		}
		if time.Since(pollStart) > s.jobMaxTime {
			if status.State == StateNotStarted {
				return nil, relayerr.NewSearchJobNotStarted(observableValue, status.State)
			}
			result.Warnings = append(result.Warnings,
				relayerr.NewSearchJobDidNotFinish(observableValue, mode.Name))
			break
		}
		if err := sleepContext(ctx, mode.PollInterval); err != nil {
			return nil, err
		}
		if status, err = s.checkStatus(ctx, jobID); err != nil {
			return nil, err
		}
	}

	result.State = status.State
	result.MessageCount = status.MessageCount
	if status.MessageCount > s.limit {
		result.Warnings = append(result.Warnings,
			relayerr.NewMoreMessagesAvailable(observableValue))
	}

	messages, err := s.getMessages(ctx, jobID)
	if err != nil {
		return nil, err
	}
	result.Messages = messages
	return result, nil
}

func (s *SearchService) createJob(ctx context.Context, mode SearchMode, observableValue string) (string, error) {
	now := time.Now().UTC()
	body := map[string]string{
		"query": mode.BuildQuery(observableValue),
		"from":  now.Add(-mode.Lookback).Format(time.RFC3339),
		"to":    now.Format(time.RFC3339),
	}
	var created createJobResponse
	if err := s.client.execute(ctx, http.MethodPost, "search/jobs", body, &created, nil); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("search job creation returned no job id")
	}
	return created.ID, nil
}

func (s *SearchService) checkStatus(ctx context.Context, jobID string) (*jobStatusResponse, error) {
	var status jobStatusResponse
	if err := s.client.execute(ctx, http.MethodGet, "search/jobs/"+jobID, nil, &status, nil); err != nil {
		return nil, err
	}
	return &status, nil
}

func (s *SearchService) getMessages(ctx context.Context, jobID string) ([]RawMessage, error) {
	query := url.Values{
		"offset": {"0"},
		"limit":  {strconv.Itoa(s.limit)},
	}
	var page messagesResponse
	if err := s.client.execute(ctx, http.MethodGet, "search/jobs/"+jobID+"/messages", nil, &page, query); err != nil {
		return nil, err
	}
	messages := make([]RawMessage, 0, len(page.Messages))
	for _, m := range page.Messages {
		messages = append(messages, RawMessage(m.Map))
	}
	return messages, nil
}

// deleteJob removes a finished job. Cleanup only: failures are logged, never
// surfaced to the caller. Uses a fresh short-lived context so cleanup still
// runs when the request context is already cancelled.
func (s *SearchService) deleteJob(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.client.execute(ctx, http.MethodDelete, "search/jobs/"+jobID, nil, nil, nil); err != nil {
		s.logger.Printf("Failed to delete search job %s: %v", jobID, err)
	}
}

// sleepContext pauses for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
