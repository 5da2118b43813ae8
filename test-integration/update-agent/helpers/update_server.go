// Package helpers provides the fixtures shared by the update agent integration tests.
package helpers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
)

// UpdateServer is a fake update service answering check requests and serving packages
type UpdateServer struct {
	*httptest.Server

	mu       sync.Mutex
	offer    map[string]any
	payload  []byte
	checks   int
	queries  []string
	failNext int
}

// NewUpdateServer starts a fake update service that reports no update until Offer is called
func NewUpdateServer() *UpdateServer {
	s := &UpdateServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/updates/check", s.handleCheck)
	mux.HandleFunc("/packages/", s.handlePackage)
	s.Server = httptest.NewServer(mux)
	return s
}

// Offer makes the server announce a package with the given label and content.
// It returns the package hash the agent is expected to record.
func (s *UpdateServer) Offer(label, appVersion string, payload []byte, mandatory bool) string {
	sum := sha256.Sum256(payload)
	hash := hex.EncodeToString(sum[:])

	s.mu.Lock()
	defer s.mu.Unlock()
	s.payload = payload
	s.offer = map[string]any{
		"isAvailable": true,
		"label":       label,
		"appVersion":  appVersion,
		"packageHash": hash,
		"packageSize": len(payload),
		"downloadUrl": s.URL + "/packages/" + hash,
		"isMandatory": mandatory,
	}
	return hash
}

// FailNext makes the next n check requests answer 503
func (s *UpdateServer) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

// CheckCount returns the number of check requests received
func (s *UpdateServer) CheckCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checks
}

// LastQuery returns the raw query of the most recent check request
func (s *UpdateServer) LastQuery() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queries) == 0 {
		return ""
	}
	return s.queries[len(s.queries)-1]
}

func (s *UpdateServer) handleCheck(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.checks++
	s.queries = append(s.queries, r.URL.RawQuery)
	fail := s.failNext > 0
	if fail {
		s.failNext--
	}
	info := map[string]any{"isAvailable": false}
	if s.offer != nil && r.URL.Query().Get("packageHash") != s.offer["packageHash"] {
		info = s.offer
	}
	s.mu.Unlock()

	if fail {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"updateInfo": info})
}

func (s *UpdateServer) handlePackage(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	payload := s.payload
	s.mu.Unlock()

	if payload == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(payload)
}
