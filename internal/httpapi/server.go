package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/pixel/internal/config"
	"github.com/antoniostano/pixel/internal/history"
	"github.com/antoniostano/pixel/internal/memory"
	"github.com/antoniostano/pixel/internal/observability"
	"github.com/antoniostano/pixel/internal/protocol"
)

// MessageHandler runs the decision pipeline for one inbound message.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg protocol.UserMessage) (protocol.AssistantReply, error)
}

type Server struct {
	cfg      config.Config
	handler  MessageHandler
	store    *history.Sharded
	memory   *memory.Store
	metrics  *observability.Metrics
	stages   *observability.StageWindow
	upgrader websocket.Upgrader
}

func New(cfg config.Config, handler MessageHandler, store *history.Sharded, mem *memory.Store, metrics *observability.Metrics, stages *observability.StageWindow) *Server {
	return &Server{
		cfg:     cfg,
		handler: handler,
		store:   store,
		memory:  mem,
		metrics: metrics,
		stages:  stages,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from
				// the same origin, so another site cannot drive a chat on
				// the user's behalf if the service is exposed beyond
				// localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/messages", s.handleMessage)
	r.Get("/v1/chat/ws", s.handleChatWS)
	r.Get("/v1/history/stats", s.handleHistoryStats)
	r.Get("/v1/shards", s.handleShardStates)
	r.Get("/v1/history/activity/{user_id}", s.handleUserActivity)
	r.Get("/v1/memory/{user_id}", s.handleGetMemory)
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"shards": s.shardCount(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	// With shard URLs configured, readiness means at least one shard
	// registered. Without any, the in-memory window is all we need.
	if len(s.cfg.ShardURLs) > 0 && s.shardCount() == 0 {
		respondError(w, http.StatusServiceUnavailable, "no_shards", "no storage shards registered")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"shards": s.shardCount(),
	})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg protocol.UserMessage
	if err := decodeJSON(r, &msg); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	msg.Type = protocol.TypeUserMessage
	if err := msg.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_message", err.Error())
		return
	}

	reply, err := s.handler.HandleMessage(r.Context(), msg)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "pipeline_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, reply)
}

func (s *Server) handleHistoryStats(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondJSON(w, http.StatusOK, map[string]any{"shards": map[string]int{}})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"shards": s.store.Stats(r.Context())})
}

func (s *Server) handleUserActivity(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "user_id"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "invalid_user_id", "missing user id")
		return
	}
	if s.store == nil {
		respondError(w, http.StatusNotFound, "record_not_found", "no stored record for user")
		return
	}
	status, found, err := s.store.UserActivity(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "shard_error", err.Error())
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "record_not_found", "no stored record for user")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":  userID,
		"activity": status,
	})
}

func (s *Server) handleShardStates(w http.ResponseWriter, _ *http.Request) {
	if s.store == nil {
		respondJSON(w, http.StatusOK, map[string]any{"states": map[string]string{}})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"states": s.store.States()})
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "user_id"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "invalid_user_id", "missing user id")
		return
	}
	rec, ok := s.memory.GetMemory(userID)
	if !ok {
		respondError(w, http.StatusNotFound, "memory_not_found", "no memory for user")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 256)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					s.metrics.WSWriteErrors.WithLabelValues("write_json").Inc()
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
				}
			}
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.enqueue(outbound, protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Retryable: false,
				Detail:    err.Error(),
			})
			continue
		}

		msg, ok := parsed.(protocol.UserMessage)
		if !ok {
			continue
		}
		s.metrics.WSMessages.WithLabelValues("inbound", string(msg.Type)).Inc()

		reply, err := s.handler.HandleMessage(ctx, msg)
		if err != nil {
			s.enqueue(outbound, protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				UserID:    msg.UserID,
				Code:      "pipeline_error",
				Source:    "engine",
				Retryable: true,
				Detail:    err.Error(),
			})
			continue
		}
		if reply.Silent {
			continue
		}
		s.enqueue(outbound, reply)
	}

	cancel()
	<-writerDone
}

// enqueue keeps websocket writes single-threaded; a saturated outbound
// queue drops the event rather than blocking the read loop.
func (s *Server) enqueue(outbound chan<- any, msg any) {
	select {
	case outbound <- msg:
	default:
		s.metrics.WSWriteErrors.WithLabelValues("drop_full").Inc()
	}
}

func (s *Server) shardCount() int {
	if s.store == nil {
		return 0
	}
	return s.store.ShardCount()
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.UserMessage:
		return m.Type, true
	case protocol.AssistantReply:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
