package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/supabase-community/supabase-go"
)

// Sink receives the finalized collected-data snapshot of a scripted call.
type Sink interface {
	Send(ctx context.Context, data map[string]string) error
}

// HTTPSink posts the snapshot as JSON to a configured endpoint. With no URL
// configured it acknowledges and does nothing.
type HTTPSink struct {
	URL    string
	Client *http.Client
}

func NewHTTPSink(url string) *HTTPSink {
	return &HTTPSink{URL: url, Client: &http.Client{Timeout: 15 * time.Second}}
}

func (s *HTTPSink) Send(ctx context.Context, data map[string]string) error {
	if s.URL == "" {
		log.Println("webhook: no url configured, skipping delivery")
		return nil
	}
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("webhook: delivery failed: status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}

// SupabaseArchiver stores a copy of each snapshot as a JSON object in a
// storage bucket, one file per call.
type SupabaseArchiver struct {
	client *supabase.Client
	bucket string
	now    func() time.Time
}

func NewSupabaseArchiver(url, serviceRoleKey, bucket string) (*SupabaseArchiver, error) {
	client, err := supabase.NewClient(url, serviceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("webhook: create supabase client: %w", err)
	}
	return &SupabaseArchiver{client: client, bucket: bucket, now: time.Now}, nil
}

func (a *SupabaseArchiver) Send(_ context.Context, data map[string]string) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("webhook: marshal snapshot: %w", err)
	}
	key := fmt.Sprintf("calls/%s.json", a.now().UTC().Format("20060102-150405.000"))
	if _, err := a.client.Storage.UploadFile(a.bucket, key, bytes.NewReader(body)); err != nil {
		return fmt.Errorf("webhook: upload %s: %w", key, err)
	}
	log.Printf("webhook: archived snapshot %s", key)
	return nil
}

// Dispatcher fans a snapshot out to every configured sink. It satisfies the
// flow engine's fire-and-forget delivery contract: failures are logged, never
// propagated, and never block the session's return to idle.
type Dispatcher struct {
	Sinks   []Sink
	Timeout time.Duration
}

func NewDispatcher(sinks ...Sink) *Dispatcher {
	return &Dispatcher{Sinks: sinks, Timeout: 20 * time.Second}
}

func (d *Dispatcher) Deliver(data map[string]string) {
	ctx, cancel := context.WithTimeout(context.Background(), d.Timeout)
	defer cancel()
	for _, sink := range d.Sinks {
		if err := sink.Send(ctx, data); err != nil {
			log.Printf("webhook: %v", err)
		}
	}
}
