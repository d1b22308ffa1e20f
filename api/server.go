// Package api is the HTTP/WebSocket front end. Routes are thin
// pass-throughs: each builds a request event, publishes it, and awaits the
// reply future with a deadline.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"penny.bot/bus"
)

const (
	transcribeTimeout = 2 * time.Minute
	generateTimeout   = 5 * time.Minute
	playbackTimeout   = 10 * time.Second
	memoryTimeout     = 10 * time.Second
)

type Server struct {
	bus    *bus.Bus
	log    *log.Logger
	hub    *Hub
	router *chi.Mux
	http   *http.Server

	upgrader websocket.Upgrader
}

func NewServer(b *bus.Bus, logger *log.Logger, port int) *Server {
	s := &Server{
		bus: b,
		log: logger,
		hub: NewHub(logger),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/transcribe/", s.handleTranscribe)
	r.Post("/generate_music/", s.handleGenerateMusic)
	r.Post("/play_in_discord/", s.handlePlayInDiscord)
	r.Get("/ws", s.handleWebSocket)

	r.Post("/memory/", s.handleMemoryAdd)
	r.Get("/memory/search", s.handleMemorySearch)
	r.Delete("/memory/{id}", s.handleMemoryDelete)

	s.router = r
	s.http = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}
	return s
}

// Start registers the broadcast fan-out handler and serves until Shutdown.
func (s *Server) Start() error {
	s.bus.Subscribe(bus.TypeTranscriptBroadcast, s.handleTranscriptBroadcast)

	s.log.Info("http", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil &&
		!errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Router exposes the mux for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub exposes the listener set for tests and for the websocket read loop.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) handleTranscriptBroadcast(ctx context.Context, ev bus.Event) {
	bc := ev.(bus.TranscriptBroadcast)
	frame, err := json.Marshal(map[string]string{
		"type":     "transcription",
		"username": bc.Speaker,
		"text":     bc.Text,
	})
	if err != nil {
		s.log.Error("failed to encode broadcast frame", "error", err)
		return
	}
	s.hub.Broadcast(websocket.TextMessage, frame)
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	data, ok := s.readAudioUpload(w, r)
	if !ok {
		return
	}

	reply := bus.NewFuture[string]()
	s.bus.Publish(r.Context(), bus.TranscriptionRequest{
		Audio: data,
		Reply: reply,
	})

	ctx, cancel := context.WithTimeout(r.Context(), transcribeTimeout)
	defer cancel()
	text, err := reply.Await(ctx)
	if err != nil {
		s.replyError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"transcription": text})
}

func (s *Server) handleGenerateMusic(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Prompt   string `json:"prompt"`
		Duration int    `json:"duration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if payload.Duration <= 0 {
		payload.Duration = 30
	}

	reply := bus.NewFuture[[]byte]()
	s.bus.Publish(r.Context(), bus.GenerationRequest{
		Prompt:   payload.Prompt,
		Duration: payload.Duration,
		Reply:    reply,
	})

	ctx, cancel := context.WithTimeout(r.Context(), generateTimeout)
	defer cancel()
	wav, err := reply.Await(ctx)
	if err != nil {
		s.replyError(w, err)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().
		Set("Content-Disposition", `attachment; filename="generated_music.wav"`)
	w.Write(wav)
}

func (s *Server) handlePlayInDiscord(w http.ResponseWriter, r *http.Request) {
	data, ok := s.readAudioUpload(w, r)
	if !ok {
		return
	}

	reply := bus.NewFuture[struct{}]()
	s.bus.Publish(r.Context(), bus.PlaybackRequest{
		Audio: data,
		Reply: reply,
	})

	ctx, cancel := context.WithTimeout(r.Context(), playbackTimeout)
	defer cancel()
	if _, err := reply.Await(ctx); err != nil {
		s.replyError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "audio_playback_initiated",
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	s.hub.Add(conn)
	s.log.Info("listener connected", "remote", conn.RemoteAddr())

	// Drain inbound frames; client-to-server traffic is ignored. The read
	// loop's only job is noticing the disconnect.
	go func() {
		defer func() {
			s.hub.Remove(conn)
			conn.Close()
			s.log.Info("listener disconnected", "remote", conn.RemoteAddr())
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleMemoryAdd(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text     string            `json:"text"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(payload.Text) == "" {
		s.writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	reply := bus.NewFuture[string]()
	s.bus.Publish(r.Context(), bus.MemoryAddRequest{
		Text:     payload.Text,
		Metadata: payload.Metadata,
		Reply:    reply,
	})

	ctx, cancel := context.WithTimeout(r.Context(), memoryTimeout)
	defer cancel()
	id, err := reply.Await(ctx)
	if err != nil {
		s.replyError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleMemorySearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		s.writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	reply := bus.NewFuture[[]bus.MemoryEntry]()
	s.bus.Publish(r.Context(), bus.MemoryQueryRequest{
		Query: query,
		Limit: limit,
		Reply: reply,
	})

	ctx, cancel := context.WithTimeout(r.Context(), memoryTimeout)
	defer cancel()
	entries, err := reply.Await(ctx)
	if err != nil {
		s.replyError(w, err)
		return
	}
	if entries == nil {
		entries = []bus.MemoryEntry{}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"memories": entries})
}

func (s *Server) handleMemoryDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	reply := bus.NewFuture[struct{}]()
	s.bus.Publish(r.Context(), bus.MemoryDeleteRequest{ID: id, Reply: reply})

	ctx, cancel := context.WithTimeout(r.Context(), memoryTimeout)
	defer cancel()
	if _, err := reply.Await(ctx); err != nil {
		s.replyError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// readAudioUpload pulls the multipart "file" field and rejects anything
// that is not an audio upload before a request event is ever published.
func (s *Server) readAudioUpload(
	w http.ResponseWriter,
	r *http.Request,
) ([]byte, bool) {
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing file upload")
		return nil, false
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "audio/") {
		s.writeError(w, http.StatusBadRequest, "invalid audio file")
		return nil, false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read upload")
		return nil, false
	}
	return data, true
}

// replyError maps an awaited-future failure onto an HTTP status: a deadline
// means no answer (504), anything else is a service failure (502).
func (s *Server) replyError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		status = http.StatusGatewayTimeout
	}
	s.writeError(w, status, err.Error())
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to encode response", "error", err)
	}
}
