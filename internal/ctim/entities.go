// Package ctim defines the normalized threat-intelligence entities the relay
// hands back to Threat Response: sightings, judgements and verdicts, plus the
// shared building blocks (observables, time windows, data tables, relations).
// Field names and types follow CTIM so downstream consumers can rely on them.
package ctim

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the CTIM schema version stamped on every entity.
const SchemaVersion = "1.1.5"

// Source identifies this integration as the provenance of emitted entities.
const Source = "Sumo Logic"

// TimeFormat renders instants with millisecond precision and a numeric UTC
// offset, e.g. "2021-04-29T18:15:53.842+00:00".
const TimeFormat = "2006-01-02T15:04:05.000-07:00"

// SentinelEndTime is the far-future end of the validity window for indicator
// types that do not expire (hashes, file paths, mutexes and the like).
const SentinelEndTime = "2525-01-01T00:00:00.000Z"

// ThirtyDays is the validity window for point-in-time network indicators.
const ThirtyDays = 30 * 24 * time.Hour

// Observable is a threat indicator: a type (domain, ip, sha256, ...) and a value.
type Observable struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ObservedTime records when an observable was seen.
type ObservedTime struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time,omitempty"`
}

// ValidTime bounds how long a judgement or verdict holds.
type ValidTime struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Column describes one column of a sighting data table.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// DataTable carries the non-reserved fields of a raw log message.
type DataTable struct {
	Columns []Column   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Relation is an edge between two observables seen in the same log event.
type Relation struct {
	Origin   string     `json:"origin"`
	Relation string     `json:"relation"`
	Source   Observable `json:"source"`
	Related  Observable `json:"related"`
}

// ExternalReference points at a report in the upstream intel source.
type ExternalReference struct {
	SourceName string `json:"source_name"`
	ExternalID string `json:"external_id"`
}

// Sighting asserts that an observable was seen in a specific log event.
type Sighting struct {
	ID               string       `json:"id"`
	Type             string       `json:"type"`
	SchemaVersion    string       `json:"schema_version"`
	Source           string       `json:"source"`
	Title            string       `json:"title"`
	Description      string       `json:"description"`
	ShortDescription string       `json:"short_description"`
	Confidence       string       `json:"confidence"`
	Count            int          `json:"count"`
	Internal         bool         `json:"internal"`
	ExternalIDs      []string     `json:"external_ids"`
	Observables      []Observable `json:"observables"`
	ObservedTime     ObservedTime `json:"observed_time"`
	Relations        []Relation   `json:"relations,omitempty"`
	Data             *DataTable   `json:"data,omitempty"`
}

// Judgement asserts a disposition for an observable, valid for a bounded window.
type Judgement struct {
	ID                 string              `json:"id"`
	Type               string              `json:"type"`
	SchemaVersion      string              `json:"schema_version"`
	Source             string              `json:"source"`
	Observable         Observable          `json:"observable"`
	Disposition        int                 `json:"disposition"`
	DispositionName    string              `json:"disposition_name"`
	Severity           string              `json:"severity"`
	Confidence         string              `json:"confidence"`
	Priority           int                 `json:"priority"`
	ValidTime          ValidTime           `json:"valid_time"`
	ExternalReferences []ExternalReference `json:"external_references,omitempty"`
}

// Verdict summarizes the current disposition for an observable. JudgementID is
// set only when the verdict was derived alongside a judgement.
type Verdict struct {
	Type            string     `json:"type"`
	Observable      Observable `json:"observable"`
	Disposition     int        `json:"disposition"`
	DispositionName string     `json:"disposition_name"`
	ValidTime       ValidTime  `json:"valid_time"`
	JudgementID     string     `json:"judgement_id,omitempty"`
}

// Disposition codes per CTIM.
const (
	DispositionMalicious  = 2
	DispositionSuspicious = 3
	DispositionUnknown    = 5
)

// FormatTime renders t in the relay's wire format (millisecond precision, UTC).
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// TransientJudgementID derives the stable id for a judgement from its seed
// tuple. The same (source, value, disposition, lastUpdated) always yields the
// same id, so re-enrichment is idempotent and downstream dedup works.
func TransientJudgementID(source, value string, disposition int, lastUpdated int64) string {
	seed := fmt.Sprintf("%s|%s|%d|%d", source, value, disposition, lastUpdated)
	return "transient:judgement-" + uuid.NewSHA1(uuid.NameSpaceX500, []byte(seed)).String()
}

// networkIndicatorTypes are point-in-time indicators whose judgements expire.
var networkIndicatorTypes = map[string]bool{
	"domain": true,
	"email":  true,
	"ip":     true,
	"ipv6":   true,
	"url":    true,
}

// ValidTimeFor computes the validity window for an observable type: network
// indicators expire 30 days after the intel was last updated, static artifact
// indicators never expire.
func ValidTimeFor(observableType string, lastUpdated time.Time) ValidTime {
	vt := ValidTime{StartTime: FormatTime(lastUpdated)}
	if networkIndicatorTypes[observableType] {
		vt.EndTime = FormatTime(lastUpdated.Add(ThirtyDays))
	} else {
		vt.EndTime = SentinelEndTime
	}
	return vt
}
