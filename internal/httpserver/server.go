package httpserver

import (
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/roy2392/natalie-voice-agent-demo/internal/agent"
	"github.com/roy2392/natalie-voice-agent-demo/internal/config"
	"github.com/roy2392/natalie-voice-agent-demo/internal/realtime"
	"github.com/roy2392/natalie-voice-agent-demo/internal/scenario"
	"github.com/roy2392/natalie-voice-agent-demo/internal/telephony"
	"github.com/roy2392/natalie-voice-agent-demo/internal/transcript"
)

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	Config     *config.Config
	Agent      *agent.Agent
	Flow       *scenario.Engine
	Library    *scenario.Library
	Recognizer transcript.Recognizer
	Launcher   *telephony.Launcher
	Hub        *Hub
	// Realtime builds a fresh duplex session; nil when the capability is
	// not configured.
	Realtime func(events realtime.Events) *realtime.Client
}

// Server is the browser-facing HTTP and WebSocket surface.
type Server struct {
	Echo *echo.Echo
	deps Deps
}

// New builds the configured echo instance with all routes registered.
func New(deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{Echo: e, deps: deps}

	e.GET("/healthz", s.handleHealthz)
	e.GET("/api/config", s.handleConfig)
	e.GET("/api/scenarios", s.handleScenarios)
	e.POST("/api/scenarios/:id/select", s.handleSelectScenario)
	e.POST("/api/listen", s.handleListen)
	e.POST("/api/stop", s.handleStop)
	e.POST("/api/calls", s.handleStartCall)
	e.GET("/ws/audio", s.handleAudioSocket)
	e.GET("/ws/realtime", s.handleRealtimeSocket)
	e.Static("/", "web")

	if deps.Config != nil && deps.Config.TwilioAuthToken != "" {
		token := deps.Config.TwilioAuthToken
		e.POST("/twilio/voice", s.handleInboundCall, telephony.SignatureMiddleware(func() string { return token }))
	}

	return s
}

// handleInboundCall answers a validated inbound call with the opening line
// of the first available scenario.
func (s *Server) handleInboundCall(c echo.Context) error {
	params, _ := c.Get("twilioParams").(map[string]string)
	log.Printf("httpserver: inbound call sid=%s from=%s", params["CallSid"], params["From"])

	greeting := "שלום וברוכים הבאים לנטלי. אנא המתינו לנציג."
	if ids := s.deps.Library.IDs(); len(ids) > 0 {
		if sc := s.deps.Library.Scenarios[ids[0]]; len(sc.Flow) > 0 {
			greeting = sc.Flow[0].AgentSays
		}
	}
	doc, err := telephony.VoiceResponse(greeting)
	if err != nil {
		return c.String(http.StatusInternalServerError, "twiml error")
	}
	return c.Blob(http.StatusOK, "text/xml", []byte(doc))
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// handleConfig exposes the public settings. Secrets never leave the server;
// missing fields are omitted rather than fatal.
func (s *Server) handleConfig(c echo.Context) error {
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.JSON(http.StatusOK, s.deps.Config.Public())
}

type scenarioInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Steps       int    `json:"steps"`
}

func (s *Server) handleScenarios(c echo.Context) error {
	out := make([]scenarioInfo, 0, len(s.deps.Library.Scenarios))
	for _, id := range s.deps.Library.IDs() {
		sc := s.deps.Library.Scenarios[id]
		out = append(out, scenarioInfo{ID: id, Name: sc.Name, Description: sc.Description, Steps: len(sc.Flow)})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleSelectScenario(c echo.Context) error {
	id := c.Param("id")
	if err := s.deps.Flow.SelectScenario(id); err != nil {
		if errors.Is(err, scenario.ErrUnknownScenario) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown scenario"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if err := s.deps.Flow.ExecuteStep(); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "started", "scenario": id})
}

func (s *Server) handleListen(c echo.Context) error {
	s.deps.Agent.Listen()
	return c.JSON(http.StatusOK, map[string]string{"state": s.deps.Agent.State().String()})
}

func (s *Server) handleStop(c echo.Context) error {
	s.deps.Agent.Stop()
	s.deps.Flow.Reset()
	return c.JSON(http.StatusOK, map[string]string{"state": s.deps.Agent.State().String()})
}

type startCallRequest struct {
	To       string `json:"to"`
	Scenario string `json:"scenario"`
}

// handleStartCall places an outbound call that opens with step 1 of the
// chosen scenario.
func (s *Server) handleStartCall(c echo.Context) error {
	if s.deps.Launcher == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "telephony not configured"})
	}
	var req startCallRequest
	if err := c.Bind(&req); err != nil || req.To == "" || req.Scenario == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "to and scenario are required"})
	}
	sc, ok := s.deps.Library.Scenarios[req.Scenario]
	if !ok || len(sc.Flow) == 0 {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown scenario"})
	}
	sid, err := s.deps.Launcher.StartCall(req.To, sc.Flow[0].AgentSays)
	if err != nil {
		log.Printf("httpserver: start call: %v", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "call failed"})
	}
	return c.JSON(http.StatusOK, map[string]string{"sid": sid})
}

// handleAudioSocket bridges the browser: uplink binary frames carry 16kHz
// pcm16 microphone audio, downlink carries reply audio and display events.
func (s *Server) handleAudioSocket(c echo.Context) error {
	conn, err := s.deps.Hub.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	s.deps.Hub.attach(conn)
	defer s.deps.Hub.detach(conn)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("httpserver: audio socket: %v", err)
			}
			return nil
		}
		if msgType == websocket.BinaryMessage {
			if err := s.deps.Recognizer.SendPCM16KLE(data); err != nil {
				log.Printf("httpserver: forward audio: %v", err)
			}
		}
	}
}

// handleRealtimeSocket bridges the browser to a duplex realtime session:
// uplink binary frames carry 24kHz pcm16 microphone audio, downlink carries
// reply audio as binary frames and transcripts as JSON text frames.
func (s *Server) handleRealtimeSocket(c echo.Context) error {
	if s.deps.Realtime == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "realtime not configured"})
	}
	conn, err := s.deps.Hub.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	var writeMu sync.Mutex
	writeJSON := func(v any) {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.WriteJSON(v)
	}

	session := s.deps.Realtime(realtime.Events{
		OnUserTranscript: func(text string) {
			writeJSON(map[string]string{"type": "user", "text": text})
		},
		OnAssistantText: func(text string) {
			writeJSON(map[string]string{"type": "assistant", "text": text})
		},
		OnAudio: func(pcm []byte) {
			writeMu.Lock()
			defer writeMu.Unlock()
			_ = conn.WriteMessage(websocket.BinaryMessage, pcm)
		},
		OnSpeakingChange: func(speaking bool) {
			state := "listening"
			if speaking {
				state = "speaking"
			}
			writeJSON(map[string]string{"type": "status", "state": state})
		},
		OnClosed: func(err error) {
			if err != nil {
				log.Printf("httpserver: realtime session: %v", err)
			}
			_ = conn.Close()
		},
	})
	if err := session.Connect(c.Request().Context()); err != nil {
		log.Printf("httpserver: realtime connect: %v", err)
		writeJSON(map[string]string{"type": "notice", "text": "שגיאה בהתחברות"})
		return nil
	}
	defer session.Close()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return nil
		}
		if msgType == websocket.BinaryMessage {
			if err := session.AppendAudio(data); err != nil {
				return nil
			}
		}
	}
}
