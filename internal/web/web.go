package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bluele/gcache"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"campusmap/internal/assistant"
	"campusmap/internal/calendar"
	"campusmap/internal/cluster"
	"campusmap/internal/events"
	appLog "campusmap/internal/log"
	"campusmap/internal/model"
	"campusmap/internal/shuttle"
	"campusmap/internal/store"
)

const maxChatBody = 64 << 10

// Asker answers event questions. *assistant.Client satisfies it.
type Asker interface {
	Ask(ctx context.Context, events []model.Event, history []assistant.Message) (assistant.Reply, error)
}

// Options wires the server to its data.
type Options struct {
	Snapshots *store.Memory
	Directory []model.Building
	Routes    []model.ShuttleRoute
	// Assistant is nil when no API key is configured; /api/chat then
	// answers 503.
	Assistant Asker
	// Location is the reference zone for civil dates.
	Location    *time.Location
	CORSOrigins []string
	Now         func() time.Time
}

// Server provides the campus map HTTP API.
type Server struct {
	opts     Options
	router   chi.Router
	stops    []shuttle.StopEntry
	clusters gcache.Cache
}

// NewServer constructs a new Server.
func NewServer(opts Options) *Server {
	if opts.Snapshots == nil {
		opts.Snapshots = &store.Memory{}
	}
	if opts.Location == nil {
		opts.Location = calendar.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Routes == nil {
		opts.Routes = []model.ShuttleRoute{}
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}

	s := &Server{
		opts:  opts,
		stops: shuttle.IndexStops(opts.Routes),
		// Keys include the snapshot id, so entries from an older snapshot
		// are never served; they just age out.
		clusters: gcache.New(256).LRU().Expiration(10 * time.Minute).Build(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/events", s.handleEvents)
		r.Head("/events", s.handleEvents)
		r.Get("/events/facets", s.handleFacets)
		r.Get("/events/clusters", s.handleClusters)
		r.Get("/shuttles", s.handleShuttles)
		r.Get("/shuttles/stops", s.handleStops)
		r.Post("/chat", s.handleChat)
	})
	s.router = r
}

// StartServer serves s on listen until ctx is cancelled, then shuts down
// gracefully.
func StartServer(ctx context.Context, listen string, s *Server) error {
	srv := &http.Server{
		Addr:              listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	ScrapedAt *time.Time    `json:"scrapedAt"`
	Events    []model.Event `json:"events"`
}

// handleEvents returns the current snapshot, optionally filtered.
//
// GET /api/events?date=YYYY-MM-DD&q=text&location=name&tag=name
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := events.Filter{
		Search:   q.Get("q"),
		Date:     strings.TrimSpace(q.Get("date")),
		Location: q.Get("location"),
		Tag:      q.Get("tag"),
	}
	if f.Date != "" && !calendar.ValidDate(f.Date) {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	snap, _ := s.opts.Snapshots.Load()
	writeJSON(w, http.StatusOK, eventsResponse{
		ScrapedAt: snap.ScrapedAt,
		Events:    events.Apply(snap.Events, f, s.opts.Location),
	})
}

type facetsResponse struct {
	Locations []string `json:"locations"`
	Tags      []string `json:"tags"`
}

func (s *Server) handleFacets(w http.ResponseWriter, _ *http.Request) {
	snap, _ := s.opts.Snapshots.Load()
	writeJSON(w, http.StatusOK, facetsResponse{
		Locations: events.UniqueLocations(snap.Events),
		Tags:      events.UniqueTags(snap.Events),
	})
}

type clustersResponse struct {
	Date     string               `json:"date"`
	Mode     string               `json:"mode"`
	Clusters []model.EventCluster `json:"clusters"`
}

// handleClusters groups the events of one civil date for the map.
//
// GET /api/events/clusters?date=YYYY-MM-DD&mode=directory|exact
//   - date: defaults to today in the reference zone
//   - mode: "directory" resolves places through the building directory,
//     "exact" groups only events with their own coordinates
func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date := strings.TrimSpace(q.Get("date"))
	if date == "" {
		date = calendar.Today(s.opts.Now(), s.opts.Location)
	} else if !calendar.ValidDate(date) {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	mode := strings.ToLower(strings.TrimSpace(q.Get("mode")))
	switch mode {
	case "":
		mode = "directory"
	case "directory", "exact":
	default:
		writeError(w, http.StatusBadRequest, "mode must be directory or exact")
		return
	}

	snap, _ := s.opts.Snapshots.Load()
	key := snap.ID.String() + "|" + date + "|" + mode
	if cached, err := s.clusters.Get(key); err == nil {
		writeJSON(w, http.StatusOK, clustersResponse{Date: date, Mode: mode, Clusters: cached.([]model.EventCluster)})
		return
	}

	var clusters []model.EventCluster
	if mode == "exact" {
		clusters = cluster.GroupByExactLocation(calendar.FilterOnDate(snap.Events, date, s.opts.Location))
	} else {
		clusters = cluster.ForDate(snap.Events, s.opts.Directory, date, s.opts.Location)
	}
	if err := s.clusters.Set(key, clusters); err != nil {
		appLog.Debug("cluster cache set failed", "key", key, "err", err)
	}
	writeJSON(w, http.StatusOK, clustersResponse{Date: date, Mode: mode, Clusters: clusters})
}

func (s *Server) handleShuttles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"routes": s.opts.Routes})
}

func (s *Server) handleStops(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"stops": s.stops})
}

type chatRequest struct {
	Messages []assistant.Message `json:"messages"`
}

// handleChat forwards the conversation to the event assistant.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages are required")
		return
	}
	if s.opts.Assistant == nil {
		writeError(w, http.StatusServiceUnavailable, "assistant is not configured")
		return
	}

	snap, _ := s.opts.Snapshots.Load()
	reply, err := s.opts.Assistant.Ask(r.Context(), snap.Events, req.Messages)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, reply)
	case errors.Is(err, assistant.ErrNoQuestion):
		writeError(w, http.StatusBadRequest, "conversation has no user message")
	case errors.Is(err, assistant.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "assistant is not configured")
	default:
		appLog.Error("api chat: assistant failed", err, "messages", len(req.Messages))
		writeError(w, http.StatusBadGateway, "assistant request failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
