// Package execctl exposes the spec §6 executor operations
// (execute/execute_stream/resume_from_checkpoint/enqueue_command/get_state/
// update_state) to out-of-process observers and HIL approvers over HTTP.
// gRPC/Connect were considered (spec §6's "external API" framing and the
// teacher's own gRPC-adjacent showcases) but dropped: both need
// .proto-generated stubs, and no proto toolchain is available here to hand-
// write correct codegen. This package instead follows the plain
// net/http.ServeMux + JSON handler shape the teacher itself uses for its
// showcase API servers (showcases/trading_agents/backend/main.go):
// encoding/json request/response bodies, with chunked newline-delimited
// JSON taking the place of a streaming RPC for execute_stream/resume.
package execctl

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/smallnest/dagrag/commands"
	"github.com/smallnest/dagrag/dag"
	"github.com/smallnest/dagrag/events"
	"github.com/smallnest/dagrag/executor"
	"github.com/smallnest/dagrag/internal/auth"
	"github.com/smallnest/dagrag/internal/obslog"
	"github.com/smallnest/dagrag/internal/obsmetrics"
)

// Server adapts one Executor to HTTP.
type Server struct {
	Executor *executor.Executor
	Logger   obslog.Logger
	Metrics  *obsmetrics.Metrics
	Issuer   *auth.Issuer // nil disables bearer-token enforcement on /commands
}

// NewServer constructs a Server. logger and metrics may be obslog.NoOp{}
// and nil respectively for callers that don't want observability wired.
func NewServer(exec *executor.Executor, logger obslog.Logger, metrics *obsmetrics.Metrics, issuer *auth.Issuer) *Server {
	if logger == nil {
		logger = obslog.NoOp{}
	}
	return &Server{Executor: exec, Logger: logger, Metrics: metrics, Issuer: issuer}
}

// Routes builds the HTTP handler tree (grounded on the teacher's plain
// http.NewServeMux + corsMiddleware shape).
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/execute", s.handleExecute)
	mux.HandleFunc("/stream", s.handleExecuteStream)
	mux.HandleFunc("/resume", s.handleResume)
	mux.HandleFunc("/state", s.handleState)
	mux.HandleFunc("/commands", s.handleCommand)
	if s.Metrics != nil {
		mux.Handle("/metrics", s.Metrics.Handler())
	}
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// executeRequest is the shared body shape for /execute, /stream: a DAG's
// task list plus the workflow id to run it under.
type executeRequest struct {
	WorkflowID string     `json:"workflow_id"`
	Tasks      []dag.Task `json:"tasks"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}
	d, err := dag.New(req.Tasks)
	if err != nil {
		http.Error(w, "invalid dag: "+err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	result, err := s.Executor.Execute(r.Context(), d, req.WorkflowID)
	s.Logger.Info("execute completed", "workflow_id", req.WorkflowID, "success", result.Success, "elapsed", time.Since(start).String())
	if err != nil && !result.RequiresApproval {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleExecuteStream runs the DAG and streams newline-delimited JSON
// events to the caller as they're published, terminating the connection
// once the terminal StreamResult is delivered (spec §6 "lazy sequence +
// terminal WorkflowState").
func (s *Server) handleExecuteStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}
	d, err := dag.New(req.Tasks)
	if err != nil {
		http.Error(w, "invalid dag: "+err.Error(), http.StatusBadRequest)
		return
	}

	evCh, resCh := s.Executor.ExecuteStream(r.Context(), d, req.WorkflowID)
	s.streamEventsAndResult(w, evCh, resCh)
}

// resumeRequest is /resume's body: which checkpoint to resume from, and the
// DAG to resume it against (a replanned DAG may differ from the one that
// produced the checkpoint, per spec §4.3).
type resumeRequest struct {
	CheckpointID string     `json:"checkpoint_id"`
	Tasks        []dag.Task `json:"tasks"`
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}
	d, err := dag.New(req.Tasks)
	if err != nil {
		http.Error(w, "invalid dag: "+err.Error(), http.StatusBadRequest)
		return
	}

	evCh, resCh, err := s.Executor.ResumeFromCheckpoint(r.Context(), d, req.CheckpointID)
	if err != nil {
		http.Error(w, "resume failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.streamEventsAndResult(w, evCh, resCh)
}

// streamEventsAndResult writes evCh as newline-delimited JSON objects
// (each tagged `"type":"event"`) as they arrive, then writes the terminal
// StreamResult tagged `"type":"result"` once resCh delivers it, flushing
// after every write so the caller observes events as they happen rather
// than buffered until the connection closes.
func (s *Server) streamEventsAndResult(w http.ResponseWriter, evCh <-chan events.Event, resCh <-chan executor.StreamResult) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Transfer-Encoding", "chunked")
	flusher, canFlush := w.(http.Flusher)

	enc := json.NewEncoder(w)
	for ev := range evCh {
		_ = enc.Encode(struct {
			Type string `json:"type"`
			events.Event
		}{Type: "event", Event: ev})
		if canFlush {
			flusher.Flush()
		}
	}

	result := <-resCh
	errMsg := ""
	if result.Err != nil {
		errMsg = result.Err.Error()
	}
	_ = enc.Encode(struct {
		Type    string `json:"type"`
		Speedup float64 `json:"speedup"`
		State   any    `json:"state"`
		Error   string `json:"error,omitempty"`
	}{Type: "result", Speedup: result.Result.Speedup, State: result.State, Error: errMsg})
	if canFlush {
		flusher.Flush()
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		state, err := s.Executor.GetState()
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, state)
	case http.MethodPatch:
		var patch map[string]any
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			http.Error(w, "invalid request: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.Executor.UpdateState(patch); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// commandRequest is /commands' body: a commands.Command. The approval
// token that resolve_decision needs (internal/auth token shape) travels in
// the Authorization header, not in this body.
type commandRequest struct {
	commands.Command
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.Kind == commands.KindResolveDecision && s.Issuer != nil {
		token := bearerToken(r)
		if _, err := s.Issuer.ParseApprovalToken(token, req.DecisionID); err != nil {
			http.Error(w, "unauthorized: "+err.Error(), http.StatusUnauthorized)
			return
		}
	}

	if err := s.Executor.EnqueueCommand(req.Command); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
