package contactshield

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hyperengineering/exposure/internal/types"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestClient_Summary_Normalizes(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/contactshield/contactSketch" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{
			"numberOfHits": 1,
			"daysSinceLastHit": 2,
			"maxRiskValue": 100000,
			"attenuationDurations": [4]
		}`))
	}))

	summary, err := c.Summary(context.Background(), "tok")
	if err != nil {
		t.Fatal(err)
	}
	if summary.MaximumRiskScore != 4096 {
		t.Errorf("MaximumRiskScore = %d, want clamped 4096", summary.MaximumRiskScore)
	}
	if summary.AttenuationDurations[0] != 5 {
		t.Errorf("AttenuationDurations[0] = %d, want 5", summary.AttenuationDurations[0])
	}
}

func TestClient_Details_DayNumberConversion(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"contactDetails": [{
			"dayNumber": 18000,
			"totalRiskValue": 4096,
			"initialRiskLevel": 4,
			"attenuationRiskValue": 70,
			"durationMinutes": 31
		}]}`))
	}))

	details, err := c.Details(context.Background(), "tok")
	if err != nil {
		t.Fatal(err)
	}
	if len(details) != 1 {
		t.Fatalf("got %d details, want 1", len(details))
	}

	d := details[0]
	// dayNumber * 86400 seconds since epoch.
	want := time.Unix(18000*86400, 0).UTC()
	if !d.OccurredAt.Equal(want) {
		t.Errorf("OccurredAt = %v, want %v", d.OccurredAt, want)
	}
	if d.DurationMinutes != 30 {
		t.Errorf("DurationMinutes = %d, want rounded-then-clamped 30", d.DurationMinutes)
	}
}

func TestClient_IsRunning(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"contactShieldRunning": true}`))
	}))

	running, err := c.IsRunning(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !running {
		t.Error("expected running = true")
	}
}

func TestClient_ServiceHealth_UnknownCode(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "weird", "code": 907135003}`))
	}))

	health, err := c.ServiceHealth(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if health.Status != types.HealthUnknown {
		t.Errorf("status = %v, want unknown", health.Status)
	}
	if health.Code != 907135003 {
		t.Errorf("code = %d, want vendor code preserved", health.Code)
	}
}
