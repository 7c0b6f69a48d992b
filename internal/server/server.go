package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/timetable/internal/config"
	"github.com/dukerupert/timetable/internal/display"
	"github.com/dukerupert/timetable/internal/handler"
	"github.com/dukerupert/timetable/internal/importer"
	"github.com/dukerupert/timetable/internal/middleware"
	"github.com/dukerupert/timetable/internal/refresh"
	"github.com/dukerupert/timetable/internal/review"
	"github.com/dukerupert/timetable/internal/schedule"
	"github.com/dukerupert/timetable/internal/store"
	ws "github.com/dukerupert/timetable/internal/websocket"
)

// Upload limits applied per client IP to POST /api/imports.
const (
	uploadLimit  = 10
	uploadWindow = time.Minute
)

type Server struct {
	db             *sql.DB
	hub            *ws.Hub
	blockStore     *store.BlockStore
	gate           *review.Gate
	refresher      *refresh.Refresher
	display        *display.Publisher
	blockH         *handler.BlockHandler
	importH        *handler.ImportHandler
	statusH        *handler.StatusHandler
	uploadLimiter  *middleware.Limiter
	clientKey      func(*http.Request) string
	originPatterns []string
	logger         *slog.Logger
}

func New(db *sql.DB, cfg *config.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))
	blockStore := store.NewBlockStore(db, logger.With("component", "store"))
	gate := review.NewGate(blockStore, cfg.Review.TTL, logger.With("component", "review"))

	// Live surfaces receive the status as a retained message. It is
	// recomputed whenever a client attaches so the replay is never stale.
	refresher := refresh.New(blockStore, func(st schedule.Status) {
		hub.BroadcastRetained(ws.Message{
			Type:   "status_updated",
			Entity: "status",
			Action: "updated",
			Data:   st,
		})
	}, hub.Attached, cfg.Location, logger.With("component", "refresh"))
	blockStore.Subscribe(refresher.Notify)
	hub.OnAttach(func() {
		if _, err := refresher.Refresh(); err != nil {
			logger.Error("refresh on attach", "error", err)
		}
	})

	var pub *display.Publisher
	if cfg.Display.Path != "" {
		pub = display.New(blockStore, cfg.Display.Path, cfg.Display.Cron, cfg.Location, logger.With("component", "display"))
	}

	limiter := middleware.NewLimiter(uploadLimit, uploadWindow)
	refresher.OnTick(func() {
		if n := gate.Sweep(); n > 0 {
			logger.Debug("expired import proposals", "count", n)
		}
		limiter.Sweep()
	})

	clientKey := middleware.RealIP
	if cfg.TrustProxy {
		clientKey = middleware.ForwardedIP
	}

	normalizer := importer.New(logger.With("component", "importer"))
	maxBytes := cfg.MaxUploadMB << 20

	return &Server{
		db:             db,
		hub:            hub,
		blockStore:     blockStore,
		gate:           gate,
		refresher:      refresher,
		display:        pub,
		blockH:         handler.NewBlockHandler(blockStore, hub, logger.With("component", "block")),
		importH:        handler.NewImportHandler(normalizer, gate, hub, maxBytes, logger.With("component", "import")),
		statusH:        handler.NewStatusHandler(refresher, pub, logger.With("component", "status")),
		uploadLimiter:  limiter,
		clientKey:      clientKey,
		originPatterns: cfg.WSOrigins,
		logger:         logger,
	}
}

// Refresher returns the live status refresher for lifecycle management.
func (s *Server) Refresher() *refresh.Refresher {
	return s.refresher
}

// Display returns the display publisher, or nil when none is configured.
func (s *Server) Display() *display.Publisher {
	return s.display
}

// BlockStore returns the canonical block store.
func (s *Server) BlockStore() *store.BlockStore {
	return s.blockStore
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.originPatterns, s.logger.With("component", "websocket")))

	// Block API routes
	mux.HandleFunc("GET /api/blocks", s.blockH.List)
	mux.HandleFunc("POST /api/blocks", s.blockH.Create)
	mux.HandleFunc("DELETE /api/blocks", s.blockH.DeleteAll)
	mux.HandleFunc("GET /api/blocks/{id}", s.blockH.Get)
	mux.HandleFunc("PUT /api/blocks/{id}", s.blockH.Update)
	mux.HandleFunc("DELETE /api/blocks/{id}", s.blockH.Delete)

	// Import review routes
	mux.Handle("POST /api/imports", middleware.Limit(s.uploadLimiter, s.clientKey)(http.HandlerFunc(s.importH.Upload)))
	mux.HandleFunc("GET /api/imports/{id}", s.importH.Get)
	mux.HandleFunc("POST /api/imports/{id}/accept", s.importH.Accept)
	mux.HandleFunc("POST /api/imports/{id}/reject", s.importH.Reject)

	// Status routes
	mux.HandleFunc("GET /api/now", s.statusH.Now)
	mux.HandleFunc("POST /api/status/refresh", s.statusH.Refresh)
	mux.HandleFunc("POST /api/display/refresh", s.statusH.RefreshDisplay)

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		status = "unavailable"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}
