package mapping

import (
	"strings"
	"testing"
	"time"

	"github.com/secrelay/sumologic-relay/internal/ctim"
	"github.com/secrelay/sumologic-relay/internal/sumologic"
)

const intelLastUpdated = int64(1619529860)

func intelMessage(raw string) sumologic.RawMessage {
	return sumologic.RawMessage{
		"_messageid": "702686314684941316",
		"_raw":       raw,
	}
}

func crowdstrikeRaw(confidence string) string {
	return `{"malicious_confidence": "` + confidence + `", "last_updated": 1619529860, "reports": ["CSIT-17109"]}`
}

func TestParseIntel(t *testing.T) {
	payload, err := ParseIntel(intelMessage(crowdstrikeRaw("high")))
	if err != nil {
		t.Fatalf("ParseIntel error: %v", err)
	}
	if payload.MaliciousConfidence != "high" {
		t.Fatalf("unexpected confidence %q", payload.MaliciousConfidence)
	}
	if payload.LastUpdated != intelLastUpdated {
		t.Fatalf("unexpected last_updated %d", payload.LastUpdated)
	}
	if len(payload.Reports) != 1 || payload.Reports[0] != "CSIT-17109" {
		t.Fatalf("unexpected reports %v", payload.Reports)
	}
}

func TestParseIntelRejectsIncompletePayloads(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing raw", ""},
		{"not json", "<163>%ASA-3-710003: TCP access denied"},
		{"missing confidence", `{"last_updated": 1619529860}`},
		{"missing last_updated", `{"malicious_confidence": "high"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseIntel(intelMessage(tt.raw)); err == nil {
				t.Fatalf("expected error for %s", tt.name)
			}
		})
	}
}

func TestDispositionMapping(t *testing.T) {
	tests := []struct {
		confidence   string
		wantCode     int
		wantName     string
		wantSeverity string
	}{
		{"high", ctim.DispositionMalicious, "Malicious", "High"},
		{"medium", ctim.DispositionMalicious, "Malicious", "Medium"},
		{"low", ctim.DispositionSuspicious, "Suspicious", "Low"},
		{"unverified", ctim.DispositionUnknown, "Unknown", "Unknown"},
	}
	for _, tt := range tests {
		code, name, err := Disposition(tt.confidence)
		if err != nil {
			t.Fatalf("Disposition(%q) error: %v", tt.confidence, err)
		}
		if code != tt.wantCode || name != tt.wantName {
			t.Fatalf("Disposition(%q) = %d %q", tt.confidence, code, name)
		}
		severity, err := Severity(tt.confidence)
		if err != nil {
			t.Fatalf("Severity(%q) error: %v", tt.confidence, err)
		}
		if severity != tt.wantSeverity {
			t.Fatalf("Severity(%q) = %q", tt.confidence, severity)
		}
	}

	if _, _, err := Disposition("critical"); err == nil {
		t.Fatalf("unknown confidence must not map silently")
	}
	if _, err := Severity("critical"); err == nil {
		t.Fatalf("unknown confidence must not map silently")
	}
}

func TestJudgementFromIntel(t *testing.T) {
	observable := ctim.Observable{Type: "domain", Value: "cisco.com"}
	payload, err := ParseIntel(intelMessage(crowdstrikeRaw("high")))
	if err != nil {
		t.Fatalf("ParseIntel error: %v", err)
	}

	judgement, err := Judgement(observable, payload)
	if err != nil {
		t.Fatalf("Judgement error: %v", err)
	}

	if !strings.HasPrefix(judgement.ID, "transient:judgement-") {
		t.Fatalf("unexpected id %q", judgement.ID)
	}
	if judgement.Disposition != ctim.DispositionMalicious || judgement.DispositionName != "Malicious" {
		t.Fatalf("unexpected disposition %d %q", judgement.Disposition, judgement.DispositionName)
	}
	if judgement.Severity != "High" || judgement.Confidence != "High" || judgement.Priority != 90 {
		t.Fatalf("unexpected judgement %+v", judgement)
	}
	if judgement.ValidTime.StartTime != ctim.FormatTime(time.Unix(intelLastUpdated, 0)) {
		t.Fatalf("unexpected start time %q", judgement.ValidTime.StartTime)
	}
	// Network indicator types get a 30-day validity window.
	wantEnd := ctim.FormatTime(time.Unix(intelLastUpdated, 0).Add(30 * 24 * time.Hour))
	if judgement.ValidTime.EndTime != wantEnd {
		t.Fatalf("expected end time %q, got %q", wantEnd, judgement.ValidTime.EndTime)
	}
	if len(judgement.ExternalReferences) != 1 {
		t.Fatalf("expected one external reference, got %d", len(judgement.ExternalReferences))
	}
	ref := judgement.ExternalReferences[0]
	if ref.SourceName != ctim.Source || ref.ExternalID != "CSIT-17109" {
		t.Fatalf("unexpected reference %+v", ref)
	}
}

func TestJudgementIDIsDeterministic(t *testing.T) {
	observable := ctim.Observable{Type: "domain", Value: "cisco.com"}
	payload, _ := ParseIntel(intelMessage(crowdstrikeRaw("high")))

	first, err := Judgement(observable, payload)
	if err != nil {
		t.Fatalf("Judgement error: %v", err)
	}
	second, err := Judgement(observable, payload)
	if err != nil {
		t.Fatalf("Judgement error: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("same intel must yield the same id: %q vs %q", first.ID, second.ID)
	}

	lowered, _ := ParseIntel(intelMessage(crowdstrikeRaw("low")))
	third, err := Judgement(observable, lowered)
	if err != nil {
		t.Fatalf("Judgement error: %v", err)
	}
	if third.ID == first.ID {
		t.Fatalf("different disposition must yield a different id")
	}
}

func TestJudgementHashTypeGetsIndefiniteValidity(t *testing.T) {
	observable := ctim.Observable{
		Type:  "sha256",
		Value: "01ecd6aaa8a2a0e60e4e0ef3cf1b33d6e2359e8a8e3e247b54e359f1bee10b2b",
	}
	payload, _ := ParseIntel(intelMessage(crowdstrikeRaw("high")))

	judgement, err := Judgement(observable, payload)
	if err != nil {
		t.Fatalf("Judgement error: %v", err)
	}
	if judgement.ValidTime.EndTime != ctim.SentinelEndTime {
		t.Fatalf("hash indicators never expire, got %q", judgement.ValidTime.EndTime)
	}
}

func TestVerdictFromIntel(t *testing.T) {
	observable := ctim.Observable{Type: "domain", Value: "cisco.com"}
	payload, _ := ParseIntel(intelMessage(crowdstrikeRaw("high")))

	judgement, err := Judgement(observable, payload)
	if err != nil {
		t.Fatalf("Judgement error: %v", err)
	}
	verdict, err := Verdict(observable, payload, judgement.ID)
	if err != nil {
		t.Fatalf("Verdict error: %v", err)
	}

	if verdict.Type != "verdict" {
		t.Fatalf("unexpected type %q", verdict.Type)
	}
	if verdict.Disposition != judgement.Disposition || verdict.DispositionName != judgement.DispositionName {
		t.Fatalf("verdict and judgement disagree: %+v vs %+v", verdict, judgement)
	}
	if verdict.ValidTime != judgement.ValidTime {
		t.Fatalf("verdict and judgement validity windows disagree")
	}
	if verdict.JudgementID != judgement.ID {
		t.Fatalf("verdict should reference its judgement, got %q", verdict.JudgementID)
	}

	standalone, err := Verdict(observable, payload, "")
	if err != nil {
		t.Fatalf("Verdict error: %v", err)
	}
	if standalone.JudgementID != "" {
		t.Fatalf("deliberate-flow verdicts carry no judgement reference")
	}
}
