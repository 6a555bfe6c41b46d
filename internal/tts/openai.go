package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// OpenAIClient is the primary speech output channel: the hosted speech
// endpoint, streamed over HTTP.
type OpenAIClient struct {
	APIKey string
	Voice  string
	Speed  float64
}

func NewOpenAIClient(apiKey, voice string, speed float64) *OpenAIClient {
	if voice == "" {
		// natural female voice that handles Hebrew well
		voice = "nova"
	}
	if speed <= 0 {
		speed = 0.95
	}
	return &OpenAIClient{APIKey: apiKey, Voice: voice, Speed: speed}
}

// Stream requests synthesis for text and streams the audio body in chunks.
func (c *OpenAIClient) Stream(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	audioCh := make(chan []byte, 4096)
	errCh := make(chan error, 1)
	go func() {
		defer close(audioCh)
		defer close(errCh)
		if c.APIKey == "" {
			errCh <- fmt.Errorf("openai tts: api key missing")
			return
		}
		if err := c.httpStream(ctx, text, audioCh); err != nil {
			errCh <- err
		}
	}()
	return audioCh, errCh
}

func (c *OpenAIClient) httpStream(ctx context.Context, text string, audioCh chan<- []byte) error {
	u := url.URL{
		Scheme: "https",
		Host:   "api.openai.com",
		Path:   "/v1/audio/speech",
	}

	body := map[string]any{
		"model": "tts-1",
		"voice": c.Voice,
		"input": text,
		"speed": c.Speed,
	}
	buf, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 0}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("openai tts stream error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("openai tts status=%d body=%s", resp.StatusCode, string(b))
	}

	chunk := make([]byte, 4096)
	for {
		n, rerr := resp.Body.Read(chunk)
		if n > 0 {
			out := make([]byte, n)
			copy(out, chunk[:n])
			select {
			case audioCh <- out:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return nil
			}
			return fmt.Errorf("openai tts read error: %w", rerr)
		}
	}
}
