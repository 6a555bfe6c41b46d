package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

const (
	realtimeURL   = "wss://api.openai.com/v1/realtime?model=" + realtimeModel
	realtimeModel = "gpt-4o-realtime-preview-2024-12-17"
	voice         = "verse"
)

// Events are the duplex session's callbacks toward the display and audio
// layers.
type Events struct {
	// OnUserTranscript delivers the transcription of a completed user turn.
	OnUserTranscript func(text string)
	// OnAssistantText delivers the assistant's full reply text once a
	// response completes.
	OnAssistantText func(text string)
	// OnAudio delivers decoded 24kHz pcm16 reply audio chunks.
	OnAudio func(pcm []byte)
	// OnSpeakingChange fires when reply audio starts and ends.
	OnSpeakingChange func(speaking bool)
	// OnClosed fires once when the session ends; err is nil on clean close.
	OnClosed func(err error)
}

// Client runs one duplex voice session against the OpenAI Realtime API:
// uplink microphone audio, downlink reply audio and transcripts. Turn-taking
// is delegated to server-side voice activity detection, so the session has
// no listening/processing state machine of its own.
type Client struct {
	apiKey       string
	instructions string
	events       Events

	mu       sync.Mutex
	conn     *websocket.Conn
	closed   bool
	speaking bool
}

func NewClient(apiKey, instructions string, events Events) *Client {
	return &Client{apiKey: apiKey, instructions: instructions, events: events}
}

type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	Modalities              []string           `json:"modalities"`
	Instructions            string             `json:"instructions"`
	Voice                   string             `json:"voice"`
	InputAudioFormat        string             `json:"input_audio_format"`
	OutputAudioFormat       string             `json:"output_audio_format"`
	InputAudioTranscription transcriptionModel `json:"input_audio_transcription"`
	TurnDetection           turnDetection      `json:"turn_detection"`
	Temperature             float64            `json:"temperature"`
	MaxResponseOutputTokens int                `json:"max_response_output_tokens"`
}

type transcriptionModel struct {
	Model string `json:"model"`
}

type turnDetection struct {
	Type            string  `json:"type"`
	Threshold       float64 `json:"threshold"`
	PrefixPaddingMS int     `json:"prefix_padding_ms"`
	SilenceMS       int     `json:"silence_duration_ms"`
}

type audioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type serverEvent struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
	Delta      string `json:"delta"`
	Error      *struct {
		Message string `json:"message"`
	} `json:"error"`
	Response *struct {
		Output []struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"output"`
	} `json:"response"`
}

// Connect opens the session, configures it for Hebrew voice duplex, and
// starts the downlink reader.
func (c *Client) Connect(ctx context.Context) error {
	if c.apiKey == "" {
		return fmt.Errorf("realtime: api key missing")
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.apiKey)
	header.Set("OpenAI-Beta", "realtime-v1")
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, realtimeURL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("realtime: dial failed: status=%d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("realtime: dial failed: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	update := sessionUpdate{
		Type: "session.update",
		Session: sessionConfig{
			Modalities:              []string{"text", "audio"},
			Instructions:            c.instructions,
			Voice:                   voice,
			InputAudioFormat:        "pcm16",
			OutputAudioFormat:       "pcm16",
			InputAudioTranscription: transcriptionModel{Model: "whisper-1"},
			TurnDetection: turnDetection{
				Type:            "server_vad",
				Threshold:       0.5,
				PrefixPaddingMS: 300,
				SilenceMS:       500,
			},
			Temperature:             0.7,
			MaxResponseOutputTokens: 150,
		},
	}
	if err := c.writeJSON(update); err != nil {
		_ = conn.Close()
		return fmt.Errorf("realtime: configure session: %w", err)
	}
	log.Println("realtime: session configured")

	go c.readLoop(conn)
	return nil
}

// AppendAudio uplinks one chunk of 24kHz pcm16 microphone audio.
func (c *Client) AppendAudio(pcm []byte) error {
	return c.writeJSON(audioAppend{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(pcm),
	})
}

// Close ends the session. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.closed {
		return fmt.Errorf("realtime: session not open")
	}
	return c.conn.WriteJSON(v)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			wasClosed := c.closed
			c.closed = true
			c.mu.Unlock()
			_ = conn.Close()
			if c.events.OnClosed != nil {
				if wasClosed {
					c.events.OnClosed(nil)
				} else {
					c.events.OnClosed(err)
				}
			}
			return
		}
		c.handleEvent(data)
	}
}

func (c *Client) handleEvent(data []byte) {
	var ev serverEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Printf("realtime: bad event: %v", err)
		return
	}
	switch ev.Type {
	case "conversation.item.input_audio_transcription.completed":
		if c.events.OnUserTranscript != nil && ev.Transcript != "" {
			c.events.OnUserTranscript(ev.Transcript)
		}
	case "response.audio.delta":
		pcm, err := base64.StdEncoding.DecodeString(ev.Delta)
		if err != nil {
			log.Printf("realtime: decode audio delta: %v", err)
			return
		}
		c.setSpeaking(true)
		if c.events.OnAudio != nil {
			c.events.OnAudio(pcm)
		}
	case "response.done":
		c.setSpeaking(false)
		if text := responseText(&ev); text != "" && c.events.OnAssistantText != nil {
			c.events.OnAssistantText(text)
		}
	case "error":
		if ev.Error != nil {
			log.Printf("realtime: server error: %s", ev.Error.Message)
		}
	}
}

func (c *Client) setSpeaking(speaking bool) {
	c.mu.Lock()
	changed := c.speaking != speaking
	c.speaking = speaking
	c.mu.Unlock()
	if changed && c.events.OnSpeakingChange != nil {
		c.events.OnSpeakingChange(speaking)
	}
}

func responseText(ev *serverEvent) string {
	if ev.Response == nil {
		return ""
	}
	var out string
	for _, o := range ev.Response.Output {
		for _, content := range o.Content {
			if content.Type == "text" {
				out += content.Text
			}
		}
	}
	return out
}
