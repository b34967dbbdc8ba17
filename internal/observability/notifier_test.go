package observability

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/weektrack/pkg/models"
)

func TestSlackNotifier_NothingToSend(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, time.UTC)
	if err := n.NotifyReminders(context.Background(), nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := n.NotifyAlerts(context.Background(), []Alert{}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if called {
		t.Fatal("expected no HTTP request")
	}
}

func TestSlackNotifier_Reminders(t *testing.T) {
	var body []byte
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, time.UTC)
	err := n.NotifyReminders(context.Background(), []models.Reminder{
		{EventID: 3, Time: time.Date(2026, 10, 13, 14, 0, 0, 0, time.UTC), Label: "Sprint review"},
		{EventID: 7, Time: time.Date(2026, 10, 13, 15, 30, 0, 0, time.UTC)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if contentType != "application/json" {
		t.Errorf("Content-Type = %s", contentType)
	}

	var msg slackMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(msg.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(msg.Blocks))
	}
	text := msg.Blocks[1].Text.Text
	for _, want := range []string{"Sprint review", "Tue 14:00", "event 7", "Tue 15:30"} {
		if !strings.Contains(text, want) {
			t.Errorf("reminder text %q missing %q", text, want)
		}
	}
}

func TestSlackNotifier_Alerts(t *testing.T) {
	var msg slackMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&msg)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	alerts := []Alert{
		{ID: "persist-failed", Severity: SeverityHigh, Message: "2 saves failed"},
		{ID: "repairs", Severity: SeverityLow, Message: "30 repairs"},
	}
	if err := NewSlackNotifier(srv.URL, nil).NotifyAlerts(context.Background(), alerts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// header, section, divider, section
	if len(msg.Blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(msg.Blocks))
	}
	if msg.Blocks[2].Type != "divider" {
		t.Errorf("block 2 type = %s", msg.Blocks[2].Type)
	}
	if !strings.Contains(msg.Blocks[1].Text.Text, "[HIGH]") {
		t.Errorf("section text = %q", msg.Blocks[1].Text.Text)
	}
}

func TestSlackNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := NewSlackNotifier(srv.URL, time.UTC).NotifyReminders(context.Background(),
		[]models.Reminder{{EventID: 1, Time: time.Now()}})
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("err = %v, want status 403", err)
	}
}
