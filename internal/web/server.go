package web

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ioptimizer-go/internal/optimizer"
	"ioptimizer-go/internal/statistics"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Server exposes the optimizer over HTTP. At most one batch runs at a time.
type Server struct {
	log        *logrus.Logger
	replacer   *optimizer.Replacer
	router     *mux.Router
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.RWMutex

	// Current batch state
	operationMutex sync.RWMutex
	isRunning      bool
	cancel         context.CancelFunc
	currentStats   *statistics.Statistics
	lastReport     *optimizer.Report
	lastError      string
	batches        sync.WaitGroup
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// OptimizeRequest mirrors the CLI flags.
type OptimizeRequest struct {
	Input           string `json:"input"`
	Filter          string `json:"filter"`
	Recursive       bool   `json:"recursive"`
	Lossy           bool   `json:"lossy"`
	Backup          bool   `json:"backup"`
	OverwriteBackup bool   `json:"overwrite_backup"`
}

func (r OptimizeRequest) options() optimizer.Options {
	return optimizer.Options{
		Input:           r.Input,
		Filter:          r.Filter,
		Recursive:       r.Recursive,
		Lossy:           r.Lossy,
		Backup:          r.Backup,
		OverwriteBackup: r.OverwriteBackup,
	}
}

type DirectoryInfo struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	IsDirectory  bool   `json:"is_directory"`
	Size         int64  `json:"size"`
	ModifiedTime string `json:"modified_time"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewServer(log *logrus.Logger, replacer *optimizer.Replacer) *Server {
	s := &Server{
		log:       log,
		replacer:  replacer,
		router:    mux.NewRouter(),
		wsClients: make(map[*websocket.Conn]bool),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: checkOrigin,
		},
	}

	s.setupRoutes()
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// checkOrigin accepts clients without an Origin header and pages served from
// the local machine. Other sites must not drive in-place rewrites.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// decodeJSON reads a JSON request body. Form posts and other content types are
// refused so a cross-site form cannot start a batch.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		s.writeError(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
		return false
	}
	if !checkOrigin(r) {
		s.writeError(w, "Origin not allowed", http.StatusForbidden)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/scan", s.handleScan).Methods("POST")
	api.HandleFunc("/optimize", s.handleOptimize).Methods("POST")
	api.HandleFunc("/stop", s.handleStop).Methods("POST")
	api.HandleFunc("/report", s.handleReport).Methods("GET")
	api.HandleFunc("/directories", s.handleListDirectories).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

// Stop cancels a running batch, waits for it to finish the current file and
// shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.operationMutex.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.operationMutex.Unlock()
	s.batches.Wait()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	running := s.isRunning
	stats := s.currentStats
	lastError := s.lastError
	s.operationMutex.RUnlock()

	var statsData interface{}
	if stats != nil {
		statsData = map[string]interface{}{
			"summary": stats.GetSummary(),
			"files":   stats.Snapshot(),
		}
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"running":    running,
			"statistics": statsData,
			"last_error": lastError,
		},
	})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	runner := optimizer.NewRunner(s.replacer, s.log)
	entries, err := runner.Scan(req.options())
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    entries,
	})
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	opts := req.options()
	if err := opts.Validate(); err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.operationMutex.Lock()
	if s.isRunning {
		s.operationMutex.Unlock()
		s.writeError(w, "Operation already in progress", http.StatusConflict)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	report := optimizer.NewReport()
	s.isRunning = true
	s.cancel = cancel
	s.currentStats = report.Stats
	s.lastError = ""
	s.batches.Add(1)
	s.operationMutex.Unlock()

	go s.runOptimizeAsync(ctx, opts, report)

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Optimization started",
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if !checkOrigin(r) {
		s.writeError(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	s.operationMutex.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.operationMutex.Unlock()

	s.broadcastWSMessage("operation_stopped", map[string]interface{}{
		"message": "Operation stopped by user",
	})

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Operation stopped",
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	report := s.lastReport
	s.operationMutex.RUnlock()

	if report == nil {
		s.writeJSON(w, APIResponse{Success: true})
		return
	}

	lines := make([]map[string]interface{}, 0, len(report.Lines))
	for _, l := range report.Lines {
		lines = append(lines, lineData(l))
	}
	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"lines":   lines,
			"summary":    report.Stats.GetSummary(),
			"files":      report.Stats.Snapshot(),
			"file_types": report.Stats.GetFileTypeBreakdown(),
			"errors":     report.Stats.GetErrorSummary(),
		},
	})
}

func (s *Server) handleListDirectories(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "."
	}

	// Security check - prevent directory traversal
	path = filepath.Clean(path)
	if strings.Contains(path, "..") {
		s.writeError(w, "Invalid path", http.StatusBadRequest)
		return
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		s.writeError(w, fmt.Sprintf("Failed to read directory: %v", err), http.StatusInternalServerError)
		return
	}

	var directories []DirectoryInfo
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}

		directories = append(directories, DirectoryInfo{
			Path:         filepath.Join(path, entry.Name()),
			Name:         entry.Name(),
			IsDirectory:  entry.IsDir(),
			Size:         info.Size(),
			ModifiedTime: info.ModTime().Format(time.RFC3339),
		})
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    directories,
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	// Keep connection alive
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) runOptimizeAsync(ctx context.Context, opts optimizer.Options, report *optimizer.Report) {
	defer s.batches.Done()

	s.broadcastWSMessage("optimize_started", map[string]interface{}{
		"input":     opts.Input,
		"filter":    opts.Filter,
		"recursive": opts.Recursive,
		"lossy":     opts.Lossy,
		"backup":    opts.Backup,
	})

	runner := optimizer.NewRunnerWithLineHook(s.replacer, s.log, func(line optimizer.Line) {
		s.broadcastWSMessage("line", lineData(line))
	})

	err := runner.RunInto(ctx, opts, report)

	s.operationMutex.Lock()
	s.isRunning = false
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = nil
	s.lastReport = report
	if err != nil {
		s.lastError = err.Error()
	}
	s.operationMutex.Unlock()

	if err != nil {
		s.broadcastWSMessage("optimize_error", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	s.broadcastWSMessage("optimize_completed", map[string]interface{}{
		"statistics": report.Stats.GetSummary(),
	})
}

func lineData(l optimizer.Line) map[string]interface{} {
	return map[string]interface{}{
		"kind":            l.Kind,
		"path":            l.Path,
		"backup_path":     l.BackupPath,
		"original_size":   l.OriginalSize,
		"compressed_size": l.CompressedSize,
		"text":            l.String(),
	}
}

func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	message := WSMessage{
		Type: messageType,
		Data: data,
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	// A connection allows one writer at a time, so writes hold the exclusive lock.
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()

	for conn := range s.wsClients {
		if err := conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			delete(s.wsClients, conn)
			conn.Close()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}
