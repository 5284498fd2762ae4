package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/iconidentify/lectura/internal/domain"
	"github.com/iconidentify/lectura/internal/service"
)

func newTestEventHandler(t *testing.T) (*EventHandler, *service.EventService) {
	t.Helper()
	svc, err := service.NewEventService(service.EventServiceConfig{RingBufferSize: 100}, testLogger())
	if err != nil {
		t.Fatalf("NewEventService: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return NewEventHandler(svc, testLogger()), svc
}

func TestEventList(t *testing.T) {
	h, svc := newTestEventHandler(t)

	svc.EmitInfo(domain.EventCategoryDownload, "session", "segment fetched", nil)
	svc.EmitError(domain.EventCategoryMerge, "reconstructor", "concat failed", nil)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	h.List(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp EventListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 2 || len(resp.Events) != 2 {
		t.Errorf("Total = %d, len = %d, want 2", resp.Total, len(resp.Events))
	}
	// Newest first.
	if resp.Events[0].Message != "concat failed" {
		t.Errorf("Events[0].Message = %q", resp.Events[0].Message)
	}
}

func TestEventList_SeverityFilter(t *testing.T) {
	h, svc := newTestEventHandler(t)

	svc.EmitInfo(domain.EventCategoryDownload, "session", "fetched", nil)
	svc.EmitError(domain.EventCategoryMerge, "reconstructor", "failed", nil)

	req := httptest.NewRequest(http.MethodGet, "/events?severity=error", nil)
	w := httptest.NewRecorder()
	h.List(w, req)

	var resp EventListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || resp.Events[0].Severity != "error" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestEventRecent(t *testing.T) {
	h, svc := newTestEventHandler(t)

	for i := 0; i < 5; i++ {
		svc.EmitInfo(domain.EventCategorySystem, "test", "msg", nil)
	}

	req := httptest.NewRequest(http.MethodGet, "/events/recent?limit=3", nil)
	w := httptest.NewRecorder()
	h.Recent(w, req)

	var resp RecentEventsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Events) != 3 {
		t.Errorf("len(Events) = %d, want 3", len(resp.Events))
	}
}

func TestEventStats(t *testing.T) {
	h, svc := newTestEventHandler(t)

	svc.EmitInfo(domain.EventCategorySystem, "test", "one", nil)
	svc.EmitError(domain.EventCategorySystem, "test", "two", nil)

	req := httptest.NewRequest(http.MethodGet, "/events/stats", nil)
	w := httptest.NewRecorder()
	h.Stats(w, req)

	var resp EventStatsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 2 || resp.BySeverity["error"] != 1 || resp.BySeverity["info"] != 1 {
		t.Errorf("unexpected stats: %+v", resp)
	}
	if resp.BufferSize != 100 {
		t.Errorf("BufferSize = %d, want 100", resp.BufferSize)
	}
}

func TestEventCategories(t *testing.T) {
	h, _ := newTestEventHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/events/categories", nil)
	w := httptest.NewRecorder()
	h.Categories(w, req)

	var resp map[string][]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	categories := resp["categories"]
	if len(categories) != 7 {
		t.Fatalf("len(categories) = %d, want 7", len(categories))
	}
	want := map[string]bool{
		"download": true, "merge": true, "clips": true,
		"transcription": true, "notes": true, "network": true, "system": true,
	}
	for _, c := range categories {
		if !want[c] {
			t.Errorf("unexpected category %q", c)
		}
	}
}
