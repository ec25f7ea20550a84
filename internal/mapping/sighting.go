// Package mapping converts raw Sumo Logic search results into normalized CTIM
// entities. All functions are pure: the same raw input always yields the same
// entity, including its id.
package mapping

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/secrelay/sumologic-relay/internal/ctim"
	"github.com/secrelay/sumologic-relay/internal/sumologic"
)

// Reserved message fields (the underscore prefix convention).
const (
	fieldMessageID    = "_messageid"
	fieldMessageTime  = "_messagetime"
	fieldMessageCount = "_messagecount"
	fieldRaw          = "_raw"
	fieldCollector    = "_collector"
	fieldSource       = "_source"
	fieldSourceName   = "_sourcename"
	fieldSrcIP        = "src_ip"
	fieldDestIP       = "dest_ip"

	reservedPrefix = "_"
)

const sightingTitle = "Log message from last 30 days in Sumo Logic contains observable"

// Sighting maps one raw log message onto a CTIM sighting for the observable
// that matched it.
func Sighting(observable ctim.Observable, message sumologic.RawMessage) (ctim.Sighting, error) {
	messageID := message[fieldMessageID]
	if messageID == "" {
		return ctim.Sighting{}, fmt.Errorf("message has no %s field", fieldMessageID)
	}

	observedTime, err := messageStartTime(message)
	if err != nil {
		return ctim.Sighting{}, err
	}

	sighting := ctim.Sighting{
		ID:               messageID,
		Type:             "sighting",
		SchemaVersion:    ctim.SchemaVersion,
		Source:           ctim.Source,
		Title:            sightingTitle,
		Description:      fmt.Sprintf("```\n%s\n```", message[fieldRaw]),
		ShortDescription: shortDescription(message),
		Confidence:       "High",
		Count:            messageCount(message),
		Internal:         true,
		ExternalIDs:      []string{messageID},
		Observables:      []ctim.Observable{observable},
		ObservedTime:     ctim.ObservedTime{StartTime: observedTime},
		Data:             dataTable(message),
	}

	if message[fieldSrcIP] != "" && message[fieldDestIP] != "" {
		sighting.Relations = []ctim.Relation{{
			Origin:   message[fieldSource],
			Relation: "Connected_To",
			Source:   ctim.Observable{Type: "ip", Value: message[fieldSrcIP]},
			Related:  ctim.Observable{Type: "ip", Value: message[fieldDestIP]},
		}}
	}

	return sighting, nil
}

func shortDescription(message sumologic.RawMessage) string {
	return fmt.Sprintf("%s received a log from %s - %s containing the observable",
		message[fieldCollector], message[fieldSource], message[fieldSourceName])
}

// messageCount parses the repeat-count of the underlying log line, defaulting
// to 1 when absent or unparsable.
func messageCount(message sumologic.RawMessage) int {
	count, err := strconv.Atoi(message[fieldMessageCount])
	if err != nil || count < 1 {
		return 1
	}
	return count
}

// messageStartTime converts the epoch-milliseconds message timestamp into the
// wire instant format.
func messageStartTime(message sumologic.RawMessage) (string, error) {
	raw := message[fieldMessageTime]
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", fmt.Errorf("failed to parse message timestamp %q: %w", raw, err)
	}
	return ctim.FormatTime(time.UnixMilli(millis)), nil
}

// dataTable builds the tabular block from every non-reserved field that holds
// a non-empty value. Columns are sorted by name so output is deterministic.
func dataTable(message sumologic.RawMessage) *ctim.DataTable {
	names := make([]string, 0, len(message))
	for name, value := range message {
		if strings.HasPrefix(name, reservedPrefix) || value == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	table := &ctim.DataTable{
		Columns: make([]ctim.Column, 0, len(names)),
		Rows:    [][]string{make([]string, 0, len(names))},
	}
	for _, name := range names {
		table.Columns = append(table.Columns, ctim.Column{Name: name, Type: "string"})
		table.Rows[0] = append(table.Rows[0], message[name])
	}
	return table
}
