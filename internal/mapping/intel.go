package mapping

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/secrelay/sumologic-relay/internal/ctim"
	"github.com/secrelay/sumologic-relay/internal/sumologic"
)

// IntelPayload is the CrowdStrike-style intel record parsed out of the _raw
// field of an intel-lookup message.
type IntelPayload struct {
	MaliciousConfidence string   `json:"malicious_confidence"`
	LastUpdated         int64    `json:"last_updated"`
	Reports             []string `json:"reports"`
}

// dispositionEntry pairs a CTIM disposition code with its name.
type dispositionEntry struct {
	code int
	name string
}

var dispositions = map[string]dispositionEntry{
	"high":       {ctim.DispositionMalicious, "Malicious"},
	"medium":     {ctim.DispositionMalicious, "Malicious"},
	"low":        {ctim.DispositionSuspicious, "Suspicious"},
	"unverified": {ctim.DispositionUnknown, "Unknown"},
}

var severities = map[string]string{
	"high":       "High",
	"medium":     "Medium",
	"low":        "Low",
	"unverified": "Unknown",
}

// Disposition maps a malicious_confidence level onto its disposition code and
// name. Unrecognized levels are a mapping error, never a silent default:
// misclassifying threat severity is worse than failing loudly.
func Disposition(maliciousConfidence string) (int, string, error) {
	entry, ok := dispositions[maliciousConfidence]
	if !ok {
		return 0, "", fmt.Errorf("unknown malicious_confidence %q", maliciousConfidence)
	}
	return entry.code, entry.name, nil
}

// Severity maps a malicious_confidence level onto a severity label.
func Severity(maliciousConfidence string) (string, error) {
	severity, ok := severities[maliciousConfidence]
	if !ok {
		return "", fmt.Errorf("unknown malicious_confidence %q", maliciousConfidence)
	}
	return severity, nil
}

// ParseIntel extracts the intel payload from an intel-lookup message.
func ParseIntel(message sumologic.RawMessage) (*IntelPayload, error) {
	raw := message[fieldRaw]
	if raw == "" {
		return nil, fmt.Errorf("intel message has no %s field", fieldRaw)
	}
	var payload IntelPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse intel payload: %w", err)
	}
	if payload.MaliciousConfidence == "" {
		return nil, fmt.Errorf("intel payload has no malicious_confidence field")
	}
	if payload.LastUpdated <= 0 {
		return nil, fmt.Errorf("intel payload has no last_updated field")
	}
	return &payload, nil
}

// Judgement maps an intel payload onto a CTIM judgement for the observable.
// The id is a pure function of (source, value, disposition, last_updated).
func Judgement(observable ctim.Observable, payload *IntelPayload) (ctim.Judgement, error) {
	disposition, dispositionName, err := Disposition(payload.MaliciousConfidence)
	if err != nil {
		return ctim.Judgement{}, err
	}
	severity, err := Severity(payload.MaliciousConfidence)
	if err != nil {
		return ctim.Judgement{}, err
	}

	judgement := ctim.Judgement{
		ID:              ctim.TransientJudgementID(ctim.Source, observable.Value, disposition, payload.LastUpdated),
		Type:            "judgement",
		SchemaVersion:   ctim.SchemaVersion,
		Source:          ctim.Source,
		Observable:      observable,
		Disposition:     disposition,
		DispositionName: dispositionName,
		Severity:        severity,
		Confidence:      "High",
		Priority:        90,
		ValidTime:       ctim.ValidTimeFor(observable.Type, time.Unix(payload.LastUpdated, 0)),
	}
	for _, report := range payload.Reports {
		judgement.ExternalReferences = append(judgement.ExternalReferences, ctim.ExternalReference{
			SourceName: ctim.Source,
			ExternalID: report,
		})
	}
	return judgement, nil
}

// Verdict maps an intel payload onto a CTIM verdict. judgementID may be empty;
// it is set only when the verdict is derived alongside a judgement in the
// observe flow.
func Verdict(observable ctim.Observable, payload *IntelPayload, judgementID string) (ctim.Verdict, error) {
	disposition, dispositionName, err := Disposition(payload.MaliciousConfidence)
	if err != nil {
		return ctim.Verdict{}, err
	}
	return ctim.Verdict{
		Type:            "verdict",
		Observable:      observable,
		Disposition:     disposition,
		DispositionName: dispositionName,
		ValidTime:       ctim.ValidTimeFor(observable.Type, time.Unix(payload.LastUpdated, 0)),
		JudgementID:     judgementID,
	}, nil
}
