package metrics

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	// Exercising the observers must not panic after Init.
	ObserveProviderRequest(200)
	ObserveProviderRequest(417)
	ObserveCommentStored(true)
	ObserveCommentStored(false)
	ObserveAntiBotRetry()
	ObserveRun("completed")
	ObserveItem("error")
	ObserveGovernorDelay(2 * time.Second)
	SetQuarantinedProxies(3)
	ObserveAlert("anti_bot")
}

func TestHandlerServesMetrics(t *testing.T) {
	Init()
	ObserveProviderRequest(200)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200 from metrics handler, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("expected metrics payload")
	}
}
