package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/satindergrewal/tempo/internal/auth"
	"github.com/satindergrewal/tempo/internal/config"
	"github.com/satindergrewal/tempo/internal/player"
	"github.com/satindergrewal/tempo/internal/session"
	"github.com/satindergrewal/tempo/internal/settings"
	"github.com/satindergrewal/tempo/internal/stream"
	"github.com/satindergrewal/tempo/internal/userdata"
	"github.com/satindergrewal/tempo/internal/web"
)

func main() {
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Println("tempo starting up...")

	store := userdata.NewStore(cfg.DataDir)
	clk := clockwork.NewRealClock()
	library := userdata.NewLibrary(store, userdata.NewFiles(cfg.FilesDir), clk)
	sessions := session.NewManager(session.Config{
		Player: player.Config{
			HandoffGrace:   cfg.HandoffGrace,
			SaveDebounce:   cfg.SaveDebounce,
			ReportInterval: cfg.ReportInterval,
			OutputGain:     cfg.OutputGain,
		},
		IdleTimeout: cfg.SessionIdle,
	}, store, clk)

	// Idle detection: close sessions nobody is using
	go sessions.Run(ctx)

	mux, peers := newMux(cfg, store, library, sessions, clk)
	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: auth.Middleware(mux)}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		server.Close()
	}()

	log.Printf("tempo live on %s (data in %s)", addr, cfg.DataDir)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}

	peers.Close()

	// Persist pending settings before exit
	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	sessions.Close(closeCtx)
}

func newMux(cfg config.Config, store *userdata.Store, library *userdata.Library, sessions *session.Manager, clk clockwork.Clock) (*http.ServeMux, *stream.WebRTCHandler) {
	mux := http.NewServeMux()

	// Web UI
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(web.IndexHTML)
	})

	resolveBroadcaster := func(r *http.Request) (*stream.Broadcaster, func(), error) {
		s, release, err := acquire(r, sessions)
		if err != nil {
			return nil, nil, err
		}
		return s.Broadcaster(), release, nil
	}

	// Audio streams and control channel
	peers := stream.NewWebRTCHandler(resolveBroadcaster, cfg.OpusBitrate)
	mux.Handle("/stream", stream.NewHTTPHandler(resolveBroadcaster, cfg.MP3Bitrate))
	mux.Handle("/offer", peers)
	mux.Handle("/ws", stream.NewControlHandler(func(r *http.Request) (stream.Controller, func(), error) {
		s, release, err := acquire(r, sessions)
		if err != nil {
			return nil, nil, err
		}
		return s.Player(), release, nil
	}))

	// API endpoints
	mux.HandleFunc("/api/user-data", func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.UserID(r.Context())
		if !ok {
			http.Error(w, errNoUser.Error(), http.StatusUnauthorized)
			return
		}

		switch r.Method {
		case http.MethodGet:
			d, err := store.MarkFirstLoad(id, clk.Now())
			if err != nil {
				writeError(w, id, "fetch user data", err)
				return
			}
			writeJSON(w, d)

		case http.MethodPost:
			// A multipart body is a library upload
			if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
				name, raw, ok := readUpload(w, r, cfg.MaxUploadSize)
				if !ok {
					return
				}
				_, d, err := library.Add(id, name, raw)
				if err != nil {
					writeError(w, id, "store upload", err)
					return
				}
				writeJSON(w, d)
				return
			}

			var req struct {
				Operation             string             `json:"operation"`
				FileID                string             `json:"fileId"`
				NewName               string             `json:"newName"`
				AudioPlaybackSettings *settings.Settings `json:"audioPlaybackSettings"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request", http.StatusBadRequest)
				return
			}

			switch req.Operation {
			case "delete":
				d, err := library.Delete(id, req.FileID)
				if err != nil {
					writeError(w, id, "delete file", err)
					return
				}
				writeJSON(w, d)

			case "rename":
				d, err := library.Rename(id, req.FileID, req.NewName)
				if err != nil {
					writeError(w, id, "rename file", err)
					return
				}
				writeJSON(w, d)

			case "load":
				f, raw, err := library.Open(id, req.FileID)
				if err != nil {
					writeError(w, id, "open file", err)
					return
				}
				s, release, err := sessions.Acquire(id)
				if err != nil {
					writeError(w, id, "start session", err)
					return
				}
				defer release()
				if err := s.Player().LoadFile(raw); err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				writeLoaded(w, s, f.ID, f.Name)

			case "":
				if req.AudioPlaybackSettings == nil {
					http.Error(w, "invalid request", http.StatusBadRequest)
					return
				}
				s, release, err := sessions.Acquire(id)
				if err != nil {
					writeError(w, id, "start session", err)
					return
				}
				defer release()
				if err := s.Player().ApplySettings(*req.AudioPlaybackSettings); err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				d, err := store.Get(id)
				if err != nil {
					writeError(w, id, "fetch user data", err)
					return
				}
				d.AudioPlaybackSettings = s.Player().Settings()
				writeJSON(w, d)

			default:
				http.Error(w, fmt.Sprintf("unknown operation %q", req.Operation), http.StatusBadRequest)
			}

		default:
			http.Error(w, "GET or POST required", http.StatusMethodNotAllowed)
		}
	})

	// Upload straight into the player, keeping a library copy
	mux.HandleFunc("/api/upload", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		s, release, err := acquire(r, sessions)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err, http.StatusUnauthorized))
			return
		}
		defer release()

		name, raw, ok := readUpload(w, r, cfg.MaxUploadSize)
		if !ok {
			return
		}
		if err := s.Player().LoadFile(raw); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, _, err := library.Add(s.UserID(), name, raw)
		if err != nil {
			writeError(w, s.UserID(), "store upload", err)
			return
		}
		writeLoaded(w, s, f.ID, name)
	})

	return mux, peers
}

var errNoUser = errors.New("no user token")

// acquire returns the request user's session, held until release.
func acquire(r *http.Request, sessions *session.Manager) (*session.Session, func(), error) {
	id, ok := auth.UserID(r.Context())
	if !ok {
		return nil, nil, errNoUser
	}
	return sessions.Acquire(id)
}

// readUpload reads the "file" form field. On failure it has already
// written the response.
func readUpload(w http.ResponseWriter, r *http.Request, limit int64) (string, []byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	f, hdr, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid upload: "+err.Error(), http.StatusBadRequest)
		return "", nil, false
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		http.Error(w, "upload too large", http.StatusRequestEntityTooLarge)
		return "", nil, false
	}
	return hdr.Filename, raw, true
}

func writeLoaded(w http.ResponseWriter, s *session.Session, fileID, name string) {
	dur := s.Player().Transport().Duration()
	log.Printf("Loaded %s for %s (%v)", name, s.UserID(), dur.Round(time.Millisecond))
	writeJSON(w, map[string]any{
		"ok":         true,
		"id":         fileID,
		"name":       name,
		"durationMs": dur.Milliseconds(),
	})
}

// statusFor maps store and library errors to HTTP codes.
func statusFor(err error, fallback int) int {
	switch {
	case errors.Is(err, userdata.ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, userdata.ErrInvalidUser), errors.Is(err, userdata.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return fallback
}

func writeError(w http.ResponseWriter, userID, what string, err error) {
	status := statusFor(err, http.StatusInternalServerError)
	if status == http.StatusInternalServerError {
		log.Printf("Failed to %s for %s: %v", what, userID, err)
		http.Error(w, "failed to "+what, status)
		return
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
