// Command coffee-server is a local target for trying run files: a small
// Coffee API with a login endpoint that hands out bearer tokens.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type coffee struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type server struct {
	mu      sync.Mutex
	coffees []coffee
	tokens  map[string]bool

	// failRate is the fraction of requests answered with 503
	failRate float64
	jitter   time.Duration
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	failRate := flag.Float64("fail-rate", 0, "fraction of requests that fail with 503")
	jitter := flag.Duration("jitter", 0, "maximum random delay added to each response")
	flag.Parse()

	s := &server{
		coffees:  []coffee{{1, "Flat White"}, {2, "Cortado"}, {3, "Long Black"}},
		tokens:   make(map[string]bool),
		failRate: *failRate,
		jitter:   *jitter,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/Login", s.login)
	mux.HandleFunc("GET /api/v1/Coffees", s.listCoffees)
	mux.HandleFunc("POST /api/v1/Coffees", s.createCoffee)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "healthy")
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           s.chaos(mux),
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 2 * time.Second,
	}

	log.Printf("Starting coffee server on %s", *addr)
	log.Printf("Endpoints: POST /api/v1/Login, GET|POST /api/v1/Coffees, GET /health")
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}

// chaos adds the configured jitter and failure rate to every request.
func (s *server) chaos(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.jitter > 0 {
			time.Sleep(rand.N(s.jitter))
		}
		if s.failRate > 0 && rand.Float64() < s.failRate {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Username == "" {
		http.Error(w, "username and password required", http.StatusBadRequest)
		return
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = true
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"token": token})
}

func (s *server) listCoffees(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := append([]coffee(nil), s.coffees...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *server) createCoffee(w http.ResponseWriter, r *http.Request) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	authorised := ok && s.tokens[token]
	s.mu.Unlock()
	if !authorised {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	n, err := io.Copy(io.Discard, r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	c := coffee{ID: len(s.coffees) + 1, Name: "Custom Brew"}
	s.coffees = append(s.coffees, c)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{"coffee": c, "received": n})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
