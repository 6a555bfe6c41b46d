package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/roy2392/natalie-voice-agent-demo/internal/agent"
	"github.com/roy2392/natalie-voice-agent-demo/internal/config"
	"github.com/roy2392/natalie-voice-agent-demo/internal/conversation"
	"github.com/roy2392/natalie-voice-agent-demo/internal/scenario"
	"github.com/roy2392/natalie-voice-agent-demo/internal/transcript"
	"github.com/roy2392/natalie-voice-agent-demo/internal/tts"
)

type stubRecognizer struct {
	starts int32
	utter  chan string
	errs   chan transcript.ErrorCode
}

func newStubRecognizer() *stubRecognizer {
	return &stubRecognizer{utter: make(chan string, 1), errs: make(chan transcript.ErrorCode, 1)}
}

func (s *stubRecognizer) Start(_ context.Context) error {
	atomic.AddInt32(&s.starts, 1)
	return nil
}
func (s *stubRecognizer) Stop()                     {}
func (s *stubRecognizer) Utterances() <-chan string { return s.utter }

func (s *stubRecognizer) Errors() <-chan transcript.ErrorCode { return s.errs }
func (s *stubRecognizer) SendPCM16KLE(_ []byte) error         { return nil }

type stubGenerator struct{}

func (stubGenerator) Generate(_ context.Context, _ string, _ []conversation.Message) (string, error) {
	return "ok", nil
}

type sayRecorder struct {
	mu    sync.Mutex
	lines []string
}

func newTestServer() (*Server, *sayRecorder, *stubRecognizer) {
	rec := newStubRecognizer()
	history := conversation.NewHistory()
	out := tts.NewOutput(nil, nil, nil)
	a := agent.New(rec, stubGenerator{}, out, history, nil, agent.Events{}, nil)

	lib := &scenario.Library{Scenarios: map[string]*scenario.Scenario{
		"outbound_satisfaction": {
			Name:        "סקר שביעות רצון",
			Description: "שיחת מעקב לאחר טיפול",
			Flow: []scenario.Step{
				{Step: 1, Type: "question", AgentSays: "שלום, האם אתם מרוצים?", QuestionID: "satisfied", Validation: "yes_no"},
				{Step: 2, Type: "statement", AgentSays: "תודה.", EndCall: true},
			},
			DataCollection: map[string]string{"satisfied": ""},
		},
	}}
	says := &sayRecorder{}
	flow := scenario.NewEngine(lib, scenario.Actions{
		Say: func(text string) {
			says.mu.Lock()
			says.lines = append(says.lines, text)
			says.mu.Unlock()
		},
		Listen:       func() {},
		ResetHistory: history.Clear,
	}, nil, nil)
	a.SetFlow(flow)

	cfg := &config.Config{HTTPAddress: ":0", OpenAIModel: "gpt-4o", TTSVoice: "nova", SpeechLang: "he-IL"}
	srv := New(Deps{
		Config:     cfg,
		Agent:      a,
		Flow:       flow,
		Library:    lib,
		Recognizer: rec,
		Hub:        NewHub(),
	})
	return srv, says, rec
}

func doRequest(srv *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	srv.Echo.ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer()
	rr := doRequest(srv, http.MethodGet, "/healthz")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestConfigEndpoint(t *testing.T) {
	srv, _, _ := newTestServer()
	rr := doRequest(srv, http.MethodGet, "/api/config")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if cc := rr.Header().Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("config must not be cached, got %q", cc)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["OPENAI_MODEL"] != "gpt-4o" {
		t.Fatalf("expected public model setting, got %v", body)
	}
	if _, leaked := body["OPENAI_API_KEY"]; leaked {
		t.Fatalf("secrets must never be served: %v", body)
	}
}

func TestScenarioListing(t *testing.T) {
	srv, _, _ := newTestServer()
	rr := doRequest(srv, http.MethodGet, "/api/scenarios")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var infos []scenarioInfo
	if err := json.Unmarshal(rr.Body.Bytes(), &infos); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(infos) != 1 || infos[0].ID != "outbound_satisfaction" || infos[0].Steps != 2 {
		t.Fatalf("unexpected listing: %v", infos)
	}
}

func TestSelectScenario(t *testing.T) {
	srv, says, _ := newTestServer()

	rr := doRequest(srv, http.MethodPost, "/api/scenarios/nope/select")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown scenario must 404, got %d", rr.Code)
	}

	rr = doRequest(srv, http.MethodPost, "/api/scenarios/outbound_satisfaction/select")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	says.mu.Lock()
	defer says.mu.Unlock()
	if len(says.lines) != 1 || says.lines[0] != "שלום, האם אתם מרוצים?" {
		t.Fatalf("step 1 must be spoken on select: %v", says.lines)
	}
}

func TestListenAndStop(t *testing.T) {
	srv, _, rec := newTestServer()

	rr := doRequest(srv, http.MethodPost, "/api/listen")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if atomic.LoadInt32(&rec.starts) != 1 {
		t.Fatalf("capture must start")
	}

	rr = doRequest(srv, http.MethodPost, "/api/stop")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(rr.Body.Bytes(), &body)
	if body["state"] != "idle" {
		t.Fatalf("stop must force idle, got %v", body)
	}
}

func TestStartCallWithoutLauncher(t *testing.T) {
	srv, _, _ := newTestServer()
	rr := doRequest(srv, http.MethodPost, "/api/calls")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without telephony, got %d", rr.Code)
	}
}

func TestRealtimeWithoutFactory(t *testing.T) {
	srv, _, _ := newTestServer()
	rr := doRequest(srv, http.MethodGet, "/ws/realtime")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without realtime, got %d", rr.Code)
	}
}
