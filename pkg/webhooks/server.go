// Package webhooks exposes buffer steppers over HTTP, JSON-RPC and a
// websocket notification stream.
package webhooks

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	hosterr "klipper-buffer-stepper/pkg/errors"
	"klipper-buffer-stepper/pkg/history"
	"klipper-buffer-stepper/pkg/log"
)

const (
	defaultHistoryLimit = 50
	statusInterval      = 250 * time.Millisecond
)

// Server serves the buffer stepper API.
type Server struct {
	host    Host
	metrics http.Handler
	logger  *log.Logger

	router     *mux.Router
	handler    http.Handler
	httpServer *http.Server
	addr       string

	wsUpgrader websocket.Upgrader
	wsClients  map[string]*WSClient
	wsClientMu sync.RWMutex

	stop      chan struct{}
	stopOnce  sync.Once
	startTime time.Time
}

// Config holds server configuration.
type Config struct {
	// HTTP address to listen on (e.g., ":7126")
	Addr string
	Host Host
	// Optional /metrics handler
	Metrics http.Handler
}

// New creates the server and its routes. Call Start to listen.
func New(cfg Config) *Server {
	s := &Server{
		host:      cfg.Host,
		metrics:   cfg.Metrics,
		addr:      cfg.Addr,
		logger:    log.GetLogger("webhooks"),
		wsClients: make(map[string]*WSClient),
		stop:      make(chan struct{}),
		startTime: time.Now(),
	}
	s.wsUpgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	s.router = s.routes()
	s.handler = corsMiddleware(s.router)
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/jsonrpc", s.handleJSONRPC).Methods(http.MethodPost)
	r.HandleFunc("/websocket", s.handleWebSocket)

	api := r.PathPrefix("/api/buffer_stepper").Subrouter()
	api.HandleFunc("/list", s.handleList).Methods(http.MethodGet)
	api.HandleFunc("/status", s.handleStatusAll).Methods(http.MethodGet)
	api.HandleFunc("/status/{name}", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/command", s.handleCommand).Methods(http.MethodPost)
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/{name}/sensor", s.handleSensor).Methods(http.MethodPost)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	return r
}

// Handler returns the routed handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens and serves until Stop is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.WithField("addr", s.addr).Info("API server starting")

	go s.statusBroadcastLoop()

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop closes all clients and the listener.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() { close(s.stop) })

	s.wsClientMu.Lock()
	for _, client := range s.wsClients {
		client.Close()
	}
	s.wsClients = make(map[string]*WSClient)
	s.wsClientMu.Unlock()

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// JSON-RPC 2.0 structures

type jsonRPCRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
	ID      any            `json:"id,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonRPCError `json:"error,omitempty"`
	ID      any           `json:"id,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
)

type rpcError struct {
	code int
	msg  string
}

func (e *rpcError) Error() string { return e.msg }

func errorCode(err error) int {
	if e, ok := err.(*rpcError); ok {
		return e.code
	}
	return codeServerError
}

func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var req jsonRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONRPCError(w, nil, codeParseError, "Parse error")
		return
	}
	result, err := s.dispatchMethod(r.Context(), req.Method, req.Params, nil)
	if err != nil {
		writeJSONRPCError(w, req.ID, errorCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, jsonRPCResponse{JSONRPC: "2.0", Result: result, ID: req.ID})
}

func (s *Server) dispatchMethod(ctx context.Context, method string, params map[string]any, client *WSClient) (any, error) {
	switch method {
	case "server.info":
		return s.methodServerInfo(), nil
	case "buffer_stepper.list":
		return map[string]any{"steppers": s.host.Steppers()}, nil
	case "buffer_stepper.status":
		return s.methodStatus(ctx, params)
	case "buffer_stepper.command":
		return s.methodCommand(ctx, params)
	case "buffer_stepper.history":
		return s.methodHistory(ctx, params)
	case "buffer_stepper.sensor":
		return s.methodSensor(params)
	case "buffer_stepper.subscribe":
		if client == nil {
			return nil, &rpcError{codeInvalidParams, "subscribe requires a websocket connection"}
		}
		client.subscribed.Store(true)
		return s.statusAll(ctx)
	default:
		return nil, &rpcError{codeMethodNotFound, "Method not found: " + method}
	}
}

func (s *Server) methodServerInfo() map[string]any {
	s.wsClientMu.RLock()
	clients := len(s.wsClients)
	s.wsClientMu.RUnlock()
	return map[string]any{
		"steppers":          s.host.Steppers(),
		"websocket_count":   clients,
		"uptime_seconds":    time.Since(s.startTime).Seconds(),
		"metrics_available": s.metrics != nil,
	}
}

func (s *Server) statusAll(ctx context.Context) (map[string]any, error) {
	out := make(map[string]any)
	for _, name := range s.host.Steppers() {
		st, err := s.host.Status(ctx, name)
		if err != nil {
			return nil, err
		}
		out[name] = st
	}
	return out, nil
}

func (s *Server) methodStatus(ctx context.Context, params map[string]any) (any, error) {
	name, _ := params["stepper"].(string)
	if name == "" {
		return s.statusAll(ctx)
	}
	return s.host.Status(ctx, name)
}

func (s *Server) methodCommand(ctx context.Context, params map[string]any) (any, error) {
	script, _ := params["script"].(string)
	if script == "" {
		return nil, &rpcError{codeInvalidParams, "missing script"}
	}
	if err := s.host.RunScript(ctx, script); err != nil {
		return nil, err
	}
	return "ok", nil
}

func (s *Server) methodHistory(ctx context.Context, params map[string]any) (any, error) {
	name, _ := params["stepper"].(string)
	limit := defaultHistoryLimit
	if v, ok := params["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}
	moves, err := s.host.History(ctx, name, limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"moves": moves}, nil
}

func (s *Server) methodSensor(params map[string]any) (any, error) {
	name, _ := params["stepper"].(string)
	on, ok := params["triggered"].(bool)
	if name == "" || !ok {
		return nil, &rpcError{codeInvalidParams, "stepper and triggered are required"}
	}
	if err := s.host.Inject(name, on); err != nil {
		return nil, err
	}
	return "ok", nil
}

// REST endpoints

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"result": map[string]any{"steppers": s.host.Steppers()}})
}

func (s *Server) handleStatusAll(w http.ResponseWriter, r *http.Request) {
	status, err := s.statusAll(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": status})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	st, err := s.host.Status(r.Context(), name)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": st})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Script string `json:"script"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.host.RunScript(r.Context(), body.Script); err != nil {
		status := http.StatusInternalServerError
		if hosterr.IsGCode(err) {
			status = http.StatusBadRequest
		}
		writeJSONError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": "ok"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := defaultHistoryLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, &rpcError{codeInvalidParams, "invalid limit " + v})
			return
		}
		limit = n
	}
	moves, err := s.host.History(r.Context(), q.Get("stepper"), limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	if moves == nil {
		moves = []history.Move{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": map[string]any{"moves": moves}})
}

func (s *Server) handleSensor(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Triggered *bool `json:"triggered"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Triggered == nil {
		writeJSONError(w, http.StatusBadRequest, &rpcError{codeInvalidParams, "triggered is required"})
		return
	}
	if err := s.host.Inject(mux.Vars(r)["name"], *body.Triggered); err != nil {
		writeJSONError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": "ok"})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// JSON response helpers

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{
		"error": jsonRPCError{Code: errorCode(err), Message: err.Error()},
	})
}

func writeJSONRPCError(w http.ResponseWriter, id any, code int, message string) {
	writeJSON(w, http.StatusOK, jsonRPCResponse{
		JSONRPC: "2.0",
		Error:   &jsonRPCError{Code: code, Message: message},
		ID:      id,
	})
}

// Notifications

// Broadcast sends a notification to every connected client.
func (s *Server) Broadcast(method string, params ...any) {
	s.broadcast(false, notification{JSONRPC: "2.0", Method: method, Params: params})
}

func (s *Server) broadcast(subscribedOnly bool, msg any) {
	s.wsClientMu.RLock()
	defer s.wsClientMu.RUnlock()
	for _, client := range s.wsClients {
		if subscribedOnly && !client.subscribed.Load() {
			continue
		}
		client.Send(msg)
	}
}

// NotifyGCodeResponse forwards an operator-facing response line.
func (s *Server) NotifyGCodeResponse(msg string) {
	s.Broadcast("notify_gcode_response", msg)
}

// NotifyMove tells subscribed clients about a committed move.
func (s *Server) NotifyMove(m history.Move) {
	s.broadcast(true, notification{JSONRPC: "2.0", Method: "notify_buffer_move", Params: []any{m}})
}

func (s *Server) statusBroadcastLoop() {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.broadcastStatusUpdates()
		}
	}
}

func (s *Server) broadcastStatusUpdates() {
	if !s.hasSubscribers() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), statusInterval)
	defer cancel()
	status, err := s.statusAll(ctx)
	if err != nil {
		s.logger.WithError(err).Debug("status update skipped")
		return
	}
	eventtime := time.Since(s.startTime).Seconds()
	s.broadcast(true, notification{
		JSONRPC: "2.0",
		Method:  "notify_status_update",
		Params:  []any{status, eventtime},
	})
}

func (s *Server) hasSubscribers() bool {
	s.wsClientMu.RLock()
	defer s.wsClientMu.RUnlock()
	for _, c := range s.wsClients {
		if c.subscribed.Load() {
			return true
		}
	}
	return false
}
