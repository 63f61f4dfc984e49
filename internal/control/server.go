// Package control exposes a loopback-only, unauthenticated HTTP
// surface for inspecting and toggling the running daemon. The
// loopback binding itself is the trust boundary: no API keys, no
// RBAC, no session state.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Provider is the subset of internal/lifecycle.Manager that the
// control surface needs. Kept as an interface so this package never
// imports dnsproxy or blocklist directly.
type Provider interface {
	Uptime() time.Duration
	PID() int
	IsRunning() bool
	IsBlocking() bool
	DomainsInList() int
	QueryStats() (seen, blocked, allowed, forwardErrors uint64)
	BlockingMethod() string
	Toggle(enable bool) (bool, error)
}

// Server is the loopback control HTTP endpoint.
type Server struct {
	provider Provider
	http     *http.Server
}

// New builds a Server bound to 127.0.0.1:port. Call Start to begin
// serving.
func New(provider Provider, port int) *Server {
	s := &Server{provider: provider}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.loopbackOnly(s.handleHealth))
	mux.HandleFunc("/status", s.loopbackOnly(s.handleStatus))
	mux.HandleFunc("/toggle", s.loopbackOnly(s.handleToggle))
	mux.HandleFunc("/stats", s.loopbackOnly(s.handleStats))

	s.http = &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start begins serving and blocks until Shutdown is called or the
// listener fails. Intended to be run in its own goroutine.
func (s *Server) Start() error {
	logrus.WithField("addr", s.http.Addr).Info("control interface listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// loopbackOnly rejects any request whose RemoteAddr does not resolve
// to a loopback IP, even though the listener itself is already bound
// to 127.0.0.1 — a defense against a misconfigured reverse proxy or a
// future rebind.
func (s *Server) loopbackOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "no-store")

		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		host = strings.Trim(host, "[]")
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

type healthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
	PID    int    `json:"pid"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Uptime: s.provider.Uptime().String(),
		PID:    s.provider.PID(),
	})
}

type statusResponse struct {
	IsRunning      bool   `json:"isRunning"`
	IsBlocking     bool   `json:"isBlocking"`
	DomainsInList  int    `json:"domainsInList"`
	QueriesSeen    uint64 `json:"queriesSeen"`
	QueriesBlocked uint64 `json:"queriesBlocked"`
	QueriesAllowed uint64 `json:"queriesAllowed"`
	BlockingMethod string `json:"blockingMethod"`
	Uptime         string `json:"uptime"`
}

func (s *Server) statusSnapshot() statusResponse {
	seen, blocked, allowed, _ := s.provider.QueryStats()
	return statusResponse{
		IsRunning:      s.provider.IsRunning(),
		IsBlocking:     s.provider.IsBlocking(),
		DomainsInList:  s.provider.DomainsInList(),
		QueriesSeen:    seen,
		QueriesBlocked: blocked,
		QueriesAllowed: allowed,
		BlockingMethod: s.provider.BlockingMethod(),
		Uptime:         s.provider.Uptime().String(),
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.statusSnapshot())
}

// statsResponse is the full statistics snapshot: the counters, list
// size, blocking method and uptime from statusResponse plus the
// forward-error counter, without the isRunning/isBlocking flags.
type statsResponse struct {
	QueriesSeen    uint64 `json:"queriesSeen"`
	QueriesBlocked uint64 `json:"queriesBlocked"`
	QueriesAllowed uint64 `json:"queriesAllowed"`
	ForwardErrors  uint64 `json:"forwardErrors"`
	DomainsInList  int    `json:"domainsInList"`
	BlockingMethod string `json:"blockingMethod"`
	Uptime         string `json:"uptime"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	seen, blocked, allowed, forwardErrors := s.provider.QueryStats()
	writeJSON(w, http.StatusOK, statsResponse{
		QueriesSeen:    seen,
		QueriesBlocked: blocked,
		QueriesAllowed: allowed,
		ForwardErrors:  forwardErrors,
		DomainsInList:  s.provider.DomainsInList(),
		BlockingMethod: s.provider.BlockingMethod(),
		Uptime:         s.provider.Uptime().String(),
	})
}

type toggleRequest struct {
	Enable bool `json:"enable"`
}

type toggleResponse struct {
	IsBlocking bool `json:"isBlocking"`
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	newState, err := s.provider.Toggle(req.Enable)
	if err != nil {
		logrus.WithError(err).Error("toggle failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{IsBlocking: newState})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
