package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/finflow/finqueue/internal/api"
	"github.com/finflow/finqueue/internal/compute"
	"github.com/finflow/finqueue/internal/domain"
	"github.com/finflow/finqueue/internal/notify"
	"github.com/finflow/finqueue/internal/notify/adapter"
	"github.com/finflow/finqueue/internal/queue"
	"github.com/finflow/finqueue/internal/ratelimiter"
	"github.com/finflow/finqueue/internal/repository"
	"github.com/finflow/finqueue/internal/ws"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	reg := queue.NewRegistry()
	manager := queue.NewManager(repository.NewMemoryJobStore(), reg,
		queue.Defaults{MaxAttempts: 3, BackoffBase: time.Second},
		queue.Hooks{}, zap.NewNop())

	hub := ws.NewHub(zap.NewNop())
	svc := notify.NewService(manager, repository.NewMemoryNotifyStore(), hub,
		map[domain.Channel]adapter.Adapter{
			domain.ChannelPush:  adapter.New(domain.ChannelPush, "", 0, zap.NewNop()),
			domain.ChannelEmail: adapter.New(domain.ChannelEmail, "", 0, zap.NewNop()),
			domain.ChannelSMS:   adapter.New(domain.ChannelSMS, "", 0, zap.NewNop()),
		},
		ratelimiter.New(100), nil, zap.NewNop())

	compute.Register(reg)
	compute.RegisterReports(reg)
	svc.Register(reg)

	srv := httptest.NewServer(api.NewRouter(manager, svc, hub, prometheus.NewRegistry(), "memory", zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatal(err)
	}
}

func TestAPI_EnqueueStatusCancel(t *testing.T) {
	srv := newServer(t)

	resp := post(t, srv, "/api/v1/jobs/calculations", map[string]any{
		"type":    "compound-interest",
		"payload": map[string]any{"principal": 10000, "rate": 0.07, "time": 10},
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("enqueue status = %d, want 202", resp.StatusCode)
	}
	var accepted struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	decodeBody(t, resp, &accepted)
	if accepted.JobID == "" || accepted.Status != domain.AdmissionQueued {
		t.Fatalf("unexpected enqueue body: %+v", accepted)
	}

	resp, err := http.Get(srv.URL + "/api/v1/jobs/" + accepted.JobID + "/status")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status endpoint = %d, want 200", resp.StatusCode)
	}
	var status domain.JobStatus
	decodeBody(t, resp, &status)
	if status.Status != domain.StateWaiting {
		t.Fatalf("lifecycle state = %s, want waiting", status.Status)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/jobs/"+accepted.JobID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("cancel = %d, want 204", resp.StatusCode)
	}
	resp.Body.Close()

	resp, _ = http.Get(srv.URL + "/api/v1/jobs/" + accepted.JobID + "/status")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status after cancel = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

// TestAPI_EnqueueDistinguishesQueuedFromScheduled verifies the acceptance
// status reflects the delay: immediate jobs report "queued", delayed jobs
// report "scheduled".
func TestAPI_EnqueueDistinguishesQueuedFromScheduled(t *testing.T) {
	srv := newServer(t)

	var accepted struct {
		Status string `json:"status"`
	}

	resp := post(t, srv, "/api/v1/jobs/calculations", map[string]any{
		"type":    "compound-interest",
		"payload": map[string]any{"principal": 1, "rate": 0.1, "time": 1},
	})
	decodeBody(t, resp, &accepted)
	if accepted.Status != domain.AdmissionQueued {
		t.Fatalf("immediate job status = %q, want queued", accepted.Status)
	}

	resp = post(t, srv, "/api/v1/jobs/calculations", map[string]any{
		"type":          "compound-interest",
		"payload":       map[string]any{"principal": 1, "rate": 0.1, "time": 1},
		"delay_seconds": 60,
	})
	decodeBody(t, resp, &accepted)
	if accepted.Status != domain.AdmissionScheduled {
		t.Fatalf("delayed job status = %q, want scheduled", accepted.Status)
	}
}

func TestAPI_EnqueueValidationFailure(t *testing.T) {
	srv := newServer(t)

	resp := post(t, srv, "/api/v1/jobs/calculations", map[string]any{
		"type":    "compound-interest",
		"payload": map[string]any{"principal": -5, "rate": 0.07, "time": 10},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
}

func TestAPI_EnqueueUnknownTypeAndWrongQueue(t *testing.T) {
	srv := newServer(t)

	resp := post(t, srv, "/api/v1/jobs/calculations", map[string]any{
		"type":    "mystery-job",
		"payload": map[string]any{},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unknown type = %d, want 422", resp.StatusCode)
	}

	resp = post(t, srv, "/api/v1/jobs/reports", map[string]any{
		"type":    "compound-interest",
		"payload": map[string]any{"principal": 1, "rate": 0.1, "time": 1},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("queue mismatch = %d, want 422", resp.StatusCode)
	}
}

func TestAPI_SendNotification(t *testing.T) {
	srv := newServer(t)

	resp := post(t, srv, "/api/v1/notifications/send", map[string]any{
		"type":       "security_alert",
		"title":      "New login",
		"message":    "Sign-in from a new device",
		"channels":   []string{"push", "email"},
		"recipients": []string{"u1"},
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if body["job_id"] == "" {
		t.Fatal("response missing job_id")
	}
	if body["status"] != domain.AdmissionQueued {
		t.Fatalf("status = %q, want queued", body["status"])
	}

	// A future scheduled_for is acknowledged as scheduled.
	resp = post(t, srv, "/api/v1/notifications/send", map[string]any{
		"type":          "system",
		"title":         "Maintenance",
		"message":       "Planned downtime tonight",
		"channels":      []string{"email"},
		"recipients":    []string{"u1"},
		"scheduled_for": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
	decodeBody(t, resp, &body)
	if body["status"] != domain.AdmissionScheduled {
		t.Fatalf("scheduled status = %q, want scheduled", body["status"])
	}

	// Invalid channel is rejected synchronously.
	resp = post(t, srv, "/api/v1/notifications/send", map[string]any{
		"type":       "security_alert",
		"title":      "x",
		"message":    "y",
		"channels":   []string{"pigeon"},
		"recipients": []string{"u1"},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("invalid channel = %d, want 422", resp.StatusCode)
	}
}

func TestAPI_PreferencesLifecycle(t *testing.T) {
	srv := newServer(t)

	// First read materialises the defaults.
	resp, err := http.Get(srv.URL + "/api/v1/preferences/u1")
	if err != nil {
		t.Fatal(err)
	}
	var prefs domain.Preferences
	decodeBody(t, resp, &prefs)
	if !prefs.Types[domain.TypeSecurityAlert].SMS {
		t.Fatal("defaults should enable SMS for security alerts")
	}

	update := map[string]any{
		"types": map[string]any{
			"budget_alert": map[string]any{"push": true, "email": false, "min_amount": 50},
		},
	}
	raw, _ := json.Marshal(update)
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/preferences/u1", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	resp, _ = http.Get(srv.URL + "/api/v1/preferences/u1")
	decodeBody(t, resp, &prefs)
	if prefs.Types[domain.TypeBudgetAlert].Email {
		t.Fatal("updated preference not persisted")
	}
}

func TestAPI_DeviceRegistration(t *testing.T) {
	srv := newServer(t)

	resp := post(t, srv, "/api/v1/devices/register", map[string]any{
		"user_id": "u1", "device_id": "d1", "token": "tok", "platform": "ios",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register = %d, want 201", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/devices/d1?user_id=u1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unregister = %d, want 204", resp.StatusCode)
	}

	// Missing fields map to 422.
	resp = post(t, srv, "/api/v1/devices/register", map[string]any{"user_id": "u1"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("bad register = %d, want 422", resp.StatusCode)
	}
}

func TestAPI_StatsAndHealth(t *testing.T) {
	srv := newServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health = %d", resp.StatusCode)
	}
	var health map[string]string
	decodeBody(t, resp, &health)
	if health["status"] != "ok" || health["store"] != "memory" {
		t.Fatalf("unexpected health body: %v", health)
	}

	resp, err = http.Get(srv.URL + "/api/v1/stats")
	if err != nil {
		t.Fatal(err)
	}
	var stats struct {
		Queues map[string]map[string]int `json:"queues"`
	}
	decodeBody(t, resp, &stats)
	if len(stats.Queues) != len(domain.Queues()) {
		t.Fatalf("stats cover %d queues, want %d", len(stats.Queues), len(domain.Queues()))
	}

	resp, err = http.Get(srv.URL + "/api/v1/queues/calculations/stats")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("queue stats = %d", resp.StatusCode)
	}
}
