package bus

import (
	"bytes"
	"context"
	"log"
	"strings"
	"testing"
)

func TestNewBusFallsBackToNull(t *testing.T) {
	b := NewBus("", nil)
	if _, ok := b.(*NullBus); !ok {
		t.Fatalf("empty URL should yield a NullBus, got %T", b)
	}
	defer b.Close()

	if err := b.HealthCheck(context.Background()); err != nil {
		t.Fatalf("null bus health check failed: %v", err)
	}
}

func TestNullBusLogsInsteadOfPublishing(t *testing.T) {
	var buf bytes.Buffer
	b := NewNullBus(log.New(&buf, "", 0))

	err := b.PublishEnrichment(context.Background(), EnrichmentMessage{
		ObservableType:  "domain",
		ObservableValue: "cisco.com",
		Flow:            "observe",
	})
	if err != nil {
		t.Fatalf("PublishEnrichment error: %v", err)
	}
	if !strings.Contains(buf.String(), "cisco.com") {
		t.Fatalf("expected log line naming the observable, got %q", buf.String())
	}
}
