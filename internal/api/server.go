package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"odysseywalk/pkg/version"
)

// Handlers groups the endpoint handlers served by NewServer.
// Nil handlers leave their routes unregistered.
type Handlers struct {
	Tour       *TourHandler
	Audio      *AudioHandler
	Ask        *AskHandler
	Stats      *StatsHandler
	Stream     *StreamHandler
	Visibility *VisibilityHandler
	Metrics    http.Handler
}

// NewServer creates and configures the HTTP server.
// shutdown is called after POST /api/shutdown has been answered.
func NewServer(addr string, h Handlers, shutdown func()) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      NewMux(h, shutdown),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewMux registers every route on a fresh ServeMux.
func NewMux(h Handlers, shutdown func()) *http.ServeMux {
	mux := http.NewServeMux()

	// 1. Health
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)

	// 2. Tour
	if h.Tour != nil {
		mux.HandleFunc("GET /api/status", h.Tour.HandleStatus)
		mux.HandleFunc("GET /api/tour", h.Tour.HandleTour)
		mux.HandleFunc("GET /api/route/bounds", h.Tour.HandleBounds)
		mux.HandleFunc("POST /api/tour/jump", h.Tour.HandleJump)
		mux.HandleFunc("POST /api/tour/{action}", h.Tour.HandleAction)
		mux.HandleFunc("POST /api/mode", h.Tour.HandleMode)
		mux.HandleFunc("POST /api/voice", h.Tour.HandleVoice)
	}

	// 3. Audio
	if h.Audio != nil {
		mux.HandleFunc("POST /api/audio/{action}", h.Audio.HandleControl)
	}

	// 4. Questions
	if h.Ask != nil {
		mux.HandleFunc("POST /api/ask", h.Ask.HandleAsk)
		mux.HandleFunc("POST /api/ask/audio", h.Ask.HandleAskAudio)
	}

	// 5. Stats
	if h.Stats != nil {
		mux.Handle("GET /api/stats", h.Stats)
		mux.HandleFunc("GET /api/events", h.Stats.HandleEvents)
	}
	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics)
	}

	// 6. Live stream and UI lifecycle
	if h.Stream != nil {
		mux.Handle("GET /api/ws", h.Stream)
	}
	if h.Visibility != nil {
		mux.HandleFunc("POST /api/visibility", h.Visibility.HandleVisibility)
	}

	// 7. Shutdown
	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		if shutdown == nil {
			return
		}
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	return mux
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}
