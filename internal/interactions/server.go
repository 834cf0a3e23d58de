// Package interactions accepts signed interaction callbacks from the chat
// platform: the button presses (approve, reject, stop, retry) attached to
// delivered build notifications.
//
// Every request is verified against the application's ed25519 public key
// before any payload parsing happens. Button presses are answered with a
// deferred ephemeral reply, executed against the build controller, and the
// reply is then edited with the outcome.
package interactions

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"buildrelay/internal/actions"
	logx "buildrelay/pkg/logx"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	headerSignature = "X-Signature-Ed25519"
	headerTimestamp = "X-Signature-Timestamp"
)

// Interaction wire types (the subset we handle).
const (
	interactionPing      = 1
	interactionComponent = 3
)

// Response callback types.
const (
	responsePong          = 1
	responseDeferredReply = 5
)

const flagEphemeral = 64

type Config struct {
	Enabled bool
	Addr    string
	// PublicKey is the hex-encoded ed25519 verification key.
	PublicKey string
	// AppID targets the deferred-reply edit after an action completes.
	AppID string

	ActionTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = 30 * time.Second
	}
	return c
}

// Responder edits the deferred interaction reply once the action ran.
type Responder interface {
	EditOriginalResponse(ctx context.Context, appID, interactionToken, content string) error
}

type Server struct {
	cfg        Config
	pubkey     ed25519.PublicKey
	controller actions.Controller
	responder  Responder
	log        logx.Logger

	mu       sync.Mutex
	ln       net.Listener
	srv      *http.Server
	actionWG sync.WaitGroup
}

func New(cfg Config, controller actions.Controller, responder Responder, log logx.Logger) (*Server, error) {
	cfg = cfg.withDefaults()

	key, err := hex.DecodeString(cfg.PublicKey)
	if err != nil || len(key) != ed25519.PublicKeySize {
		return nil, errors.New("interactions: public key must be a hex-encoded ed25519 key")
	}

	return &Server{
		cfg:        cfg,
		pubkey:     ed25519.PublicKey(key),
		controller: controller,
		responder:  responder,
		log:        log,
	}, nil
}

func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("interactions: listen %s: %w", s.cfg.Addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Ready!"))
	})
	mux.HandleFunc("POST /", s.handleInteraction)

	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.ln = ln
	s.srv = srv

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("interactions server stopped with error", logx.Err(err))
		}
	}()

	s.log.Info("interactions server listening", logx.String("addr", ln.Addr().String()))
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.ln = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.actionWG.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
	case <-done:
	}
	return err
}

// Addr reports the bound listen address (useful when Addr used port 0).
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

type interactionRequest struct {
	Type          int    `json:"type"`
	Token         string `json:"token"`
	ApplicationID string `json:"application_id"`
	GuildID       string `json:"guild_id"`
	Data          struct {
		CustomID      string `json:"custom_id"`
		ComponentType int    `json:"component_type"`
	} `json:"data"`
}

type interactionResponse struct {
	Type int `json:"type"`
	Data *struct {
		Flags int `json:"flags,omitempty"`
	} `json:"data,omitempty"`
}

func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, `{"error":"Invalid request"}`, http.StatusBadRequest)
		return
	}

	sig := r.Header.Get(headerSignature)
	ts := r.Header.Get(headerTimestamp)
	if sig == "" || ts == "" {
		http.Error(w, `{"error":"Invalid request"}`, http.StatusBadRequest)
		return
	}
	if !s.verify(ts, body, sig) {
		s.log.Error("unauthorized interaction")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var in interactionRequest
	if err := json.Unmarshal(body, &in); err != nil {
		http.Error(w, `{"error":"Invalid request"}`, http.StatusBadRequest)
		return
	}

	switch in.Type {
	case interactionPing:
		s.respond(w, interactionResponse{Type: responsePong})

	case interactionComponent:
		kind, ref, err := actions.DecodeCustomID(in.Data.CustomID)
		if err != nil {
			s.log.Warn("unknown component pressed", logx.String("custom_id", in.Data.CustomID), logx.Err(err))
			http.Error(w, `{"error":"Invalid request"}`, http.StatusBadRequest)
			return
		}

		// Acknowledge within the platform deadline, then run the action
		// and edit the reply with the outcome.
		resp := interactionResponse{Type: responseDeferredReply}
		resp.Data = &struct {
			Flags int `json:"flags,omitempty"`
		}{Flags: flagEphemeral}
		s.respond(w, resp)

		s.runAction(kind, ref, in)

	default:
		s.log.Warn("unknown interaction type", logx.Int("type", in.Type))
		http.Error(w, `{"error":"Invalid request"}`, http.StatusBadRequest)
	}
}

func (s *Server) runAction(kind actions.Kind, ref actions.Ref, in interactionRequest) {
	s.actionWG.Add(1)
	go func() {
		defer s.actionWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ActionTimeout)
		defer cancel()

		content, err := actions.Execute(ctx, s.controller, kind, ref)
		if err != nil {
			s.log.Error("action failed",
				logx.String("kind", string(kind)),
				logx.String("build", ref.BuildID),
				logx.Err(err))
			content = fmt.Sprintf("Failed to %s build ``%s``.", kind, ref.BuildID)
		}

		appID := s.cfg.AppID
		if appID == "" {
			appID = in.ApplicationID
		}
		if err := s.responder.EditOriginalResponse(ctx, appID, in.Token, content); err != nil {
			s.log.Warn("followup edit failed", logx.Err(err))
		}
	}()
}

func (s *Server) verify(timestamp string, body []byte, sigHex string) bool {
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	msg := make([]byte, 0, len(timestamp)+len(body))
	msg = append(msg, timestamp...)
	msg = append(msg, body...)
	return ed25519.Verify(s.pubkey, msg, sig)
}

func (s *Server) respond(w http.ResponseWriter, resp interactionResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Warn("interaction response write failed", logx.Err(err))
	}
}
