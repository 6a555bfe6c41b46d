package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHTTPSinkPostsSnapshot(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL)
	data := map[string]string{"full_name": "דנה לוי", "timestamp": "2026-01-01T00:00:00Z"}
	if err := sink.Send(context.Background(), data); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got["full_name"] != "דנה לוי" {
		t.Fatalf("payload mismatch: %v", got)
	}
}

func TestHTTPSinkReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL)
	if err := sink.Send(context.Background(), map[string]string{"k": "v"}); err == nil {
		t.Fatalf("expected error on 500 response")
	}
}

func TestHTTPSinkWithoutURLIsNoop(t *testing.T) {
	sink := NewHTTPSink("")
	if err := sink.Send(context.Background(), map[string]string{"k": "v"}); err != nil {
		t.Fatalf("unconfigured sink must acknowledge silently: %v", err)
	}
}

type flakySink struct {
	err   error
	calls int32
}

func (f *flakySink) Send(_ context.Context, _ map[string]string) error {
	atomic.AddInt32(&f.calls, 1)
	return f.err
}

func TestDispatcherDeliversToAllSinksDespiteFailures(t *testing.T) {
	bad := &flakySink{err: errors.New("down")}
	good := &flakySink{}
	d := NewDispatcher(bad, good)
	d.Timeout = time.Second

	d.Deliver(map[string]string{"k": "v"})

	if atomic.LoadInt32(&bad.calls) != 1 || atomic.LoadInt32(&good.calls) != 1 {
		t.Fatalf("every sink must be attempted: bad=%d good=%d", bad.calls, good.calls)
	}
}
