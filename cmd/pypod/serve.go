package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for chunk execution",
	Long: `Start an HTTP server exposing the evaluator over REST.

Endpoints:
  POST /evaluate   Execute a chunk: {"code":"...", "input":["line",...], "timeout":"30s"}
  GET  /packages   Load cache snapshot
  GET  /health     Health and readiness

The interpreter is shared and stateful: variables and loaded packages
persist across requests. Requests execute one at a time.`,
	Run: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().Duration("timeout", 30*time.Second, "Default execution timeout")
	rootCmd.AddCommand(serveCmd)
}

// switchHost routes evaluator output to the sink of whichever request is
// currently executing. Requests are serialized, so at most one sink is bound
// at a time.
type switchHost struct {
	mu    sync.Mutex
	sink  func(string)
	input []string
}

func (h *switchHost) SendOutput(text string) {
	h.mu.Lock()
	sink := h.sink
	h.mu.Unlock()
	if sink != nil {
		sink(text)
	}
}

func (h *switchHost) TryRequestInput() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.input) == 0 {
		return "", false
	}
	line := h.input[0]
	h.input = h.input[1:]
	return line, true
}

func (h *switchHost) bind(sink func(string), input []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sink = sink
	h.input = input
}

func (h *switchHost) unbind() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sink = nil
	h.input = nil
}

type evaluateRequest struct {
	Code    string   `json:"code"`
	Input   []string `json:"input,omitempty"`
	Timeout string   `json:"timeout,omitempty"`
}

type evaluateResponse struct {
	Output     string `json:"output"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

func runServe(cmd *cobra.Command, args []string) {
	port, _ := cmd.Flags().GetInt("port")
	defaultTimeout, _ := cmd.Flags().GetDuration("timeout")

	host := &switchHost{}
	ev := buildEvaluator(cfg, host)
	defer ev.Close()

	var execMu sync.Mutex

	mux := http.NewServeMux()

	mux.HandleFunc("/evaluate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req evaluateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Code == "" {
			http.Error(w, "code required", http.StatusBadRequest)
			return
		}

		timeout := defaultTimeout
		if req.Timeout != "" {
			if d, err := time.ParseDuration(req.Timeout); err == nil {
				timeout = d
			}
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		execMu.Lock()
		var out strings.Builder
		var outMu sync.Mutex
		host.bind(func(text string) {
			outMu.Lock()
			out.WriteString(text)
			outMu.Unlock()
		}, req.Input)

		start := time.Now()
		err := ev.EvaluateChunk(ctx, req.Code)
		duration := time.Since(start)

		host.unbind()
		execMu.Unlock()

		resp := evaluateResponse{
			Output:     out.String(),
			DurationMs: duration.Milliseconds(),
		}
		if err != nil {
			resp.Error = err.Error()
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	mux.HandleFunc("/packages", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		stats, ok := ev.PackageStats()
		if !ok {
			http.Error(w, "interpreter not initialized", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"loaded": stats.Loaded,
			"failed": stats.Failed,
		})
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"ready":  ev.Ready(),
		})
	})

	addr := fmt.Sprintf(":%d", port)
	fmt.Fprintf(os.Stderr, "pypod server listening on %s\n", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
