package portal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sweeney/proxiswitch/internal/settings"
	"github.com/sweeney/proxiswitch/internal/status"
)

// SettingsStore is the slice of the settings store the portal needs.
// Implemented by *settings.Store.
type SettingsStore interface {
	Values() settings.Values
	Update(settings.Values) error
}

// errBadField marks a form value that did not parse.
var errBadField = errors.New("invalid form value")

// Server serves the settings page over HTTP.
type Server struct {
	httpServer       *http.Server
	ln               net.Listener
	store            SettingsStore
	tracker          *status.Tracker
	onPasswordChange func()
	log              *zap.Logger
}

// NewServer creates a Server backed by the given store and tracker.
// onPasswordChange fires after a save that alters the access point
// password; the portal uses it to schedule its own shutdown.
func NewServer(addr string, store SettingsStore, tracker *status.Tracker, onPasswordChange func(), log *zap.Logger) *Server {
	s := &Server{
		store:            store,
		tracker:          tracker,
		onPasswordChange: onPasswordChange,
		log:              log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/save", s.handleSave)
	mux.HandleFunc("/status.json", s.handleJSON)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Start listens on the configured address and serves on a new goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	s.ln = ln

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("portal http server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address. Only valid after Start.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderIndex(w, pageData{
		Snap:   s.tracker.Snapshot(),
		Values: s.store.Values(),
		Saved:  r.URL.Query().Get("saved") == "1",
	})
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form", http.StatusBadRequest)
		return
	}

	prev := s.store.Values()
	vals, err := parseSettingsForm(r.PostForm, prev)
	if err == nil {
		err = s.store.Update(vals)
	}
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, errBadField) || errors.Is(err, settings.ErrInvalid) {
			code = http.StatusBadRequest
		}
		s.log.Warn("settings update rejected", zap.Error(err))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(code)
		renderIndex(w, pageData{
			Snap:   s.tracker.Snapshot(),
			Values: s.store.Values(),
			Error:  err.Error(),
		})
		return
	}

	s.log.Info("settings saved")
	if vals.APPassword != prev.APPassword {
		s.log.Info("access point password changed, closing portal")
		if s.onPasswordChange != nil {
			s.onPasswordChange()
		}
	}
	http.Redirect(w, r, "/?saved=1", http.StatusSeeOther)
}

// parseSettingsForm reads the editable fields from the form on top of the
// previous values. Pairing and the startup counter are not form fields;
// the store preserves them on Update regardless.
func parseSettingsForm(form url.Values, prev settings.Values) (settings.Values, error) {
	vals := prev

	for _, f := range []struct {
		name string
		dst  *int
	}{
		{"near_rssi", &vals.MaxNearRSSI},
		{"close_rssi", &vals.CloseRSSI},
	} {
		n, err := strconv.Atoi(strings.TrimSpace(form.Get(f.name)))
		if err != nil {
			return prev, fmt.Errorf("%w: %s", errBadField, f.name)
		}
		*f.dst = n
	}

	for _, f := range []struct {
		name string
		dst  *int64
	}{
		{"max_not_seen_ms", &vals.MaxNotSeenMillis},
		{"learn_duration_ms", &vals.LearnDurationMillis},
		{"wifi_on_ms", &vals.WifiOnThresholdMillis},
		{"wifi_off_ms", &vals.WifiOffThresholdMillis},
		{"learn_ms", &vals.LearnThresholdMillis},
		{"factory_reset_ms", &vals.FactoryThresholdMillis},
	} {
		n, err := strconv.ParseInt(strings.TrimSpace(form.Get(f.name)), 10, 64)
		if err != nil {
			return prev, fmt.Errorf("%w: %s", errBadField, f.name)
		}
		*f.dst = n
	}

	vals.APPassword = form.Get("ap_password")
	return vals, nil
}
