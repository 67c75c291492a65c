// Package httpapi is the CRUD-over-HTTP surface around the collaboration
// core: account signup/login and document metadata. It talks to the core
// only through the Snapshot Store, to seed new documents with the empty
// default.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bgadrian/docroom"
	"github.com/bgadrian/docroom/auth"
	"github.com/bgadrian/docroom/metastore"
)

const tokenCookie = "access_token"

// Server holds the HTTP API handlers.
type Server struct {
	meta      *metastore.Store
	snapshots *docroom.SnapshotStore
	tokens    *auth.TokenIssuer
	logger    zerolog.Logger
}

func New(meta *metastore.Store, snapshots *docroom.SnapshotStore, tokens *auth.TokenIssuer, logger zerolog.Logger) *Server {
	return &Server{
		meta:      meta,
		snapshots: snapshots,
		tokens:    tokens,
		logger:    logger.With().Str("component", "httpapi").Logger(),
	}
}

// Routes returns a mux with every API route registered.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/signup", s.handleSignup)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)
	mux.HandleFunc("GET /api/documents", s.withUser(s.handleListDocuments))
	mux.HandleFunc("POST /api/documents", s.withUser(s.handleCreateDocument))
	mux.HandleFunc("DELETE /api/documents/{id}", s.withUser(s.handleDeleteDocument))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	creds.Username = strings.TrimSpace(creds.Username)
	if creds.Username == "" || creds.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	hashed, err := auth.HashPassword(creds.Password)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to hash password")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := s.meta.CreateUser(r.Context(), creds.Username, hashed); err != nil {
		if errors.Is(err, metastore.ErrUsernameTaken) {
			writeError(w, http.StatusBadRequest, "username already registered")
			return
		}
		s.logger.Error().Err(err).Msg("failed to create user")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "user created"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.meta.UserByName(r.Context(), creds.Username)
	if err != nil || !auth.VerifyPassword(user.HashedPassword, creds.Password) {
		writeError(w, http.StatusUnauthorized, "incorrect username or password")
		return
	}

	token, err := s.tokens.Issue(user.Username)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to issue token")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged in"})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// withUser resolves the access token cookie into a username and rejects
// anonymous requests.
func (s *Server) withUser(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(tokenCookie)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		username, err := s.tokens.Verify(cookie.Value)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		next(w, r, username)
	}
}

type documentResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request, username string) {
	docs, err := s.meta.ListDocuments(r.Context(), username)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list documents")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentResponse{ID: d.ID, Title: d.Title, UpdatedAt: d.UpdatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request, username string) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	docID := "doc_" + uuid.NewString()
	if err := s.meta.CreateDocument(r.Context(), docID, req.Title, username); err != nil {
		s.logger.Error().Err(err).Msg("failed to create document")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	//seed the snapshot history so the first join hydrates something real
	if _, err := s.snapshots.Append(r.Context(), docID, docroom.EmptyContent); err != nil {
		s.logger.Error().Err(err).Str("doc", docID).Msg("failed to seed initial snapshot")
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": docID, "title": req.Title})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request, username string) {
	docID := r.PathValue("id")
	err := s.meta.DeleteDocument(r.Context(), docID, username)
	switch {
	case errors.Is(err, metastore.ErrNotFound):
		writeError(w, http.StatusNotFound, "document not found")
	case errors.Is(err, metastore.ErrNotOwner):
		writeError(w, http.StatusForbidden, "not authorized to delete this document")
	case err != nil:
		s.logger.Error().Err(err).Msg("failed to delete document")
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"message": "document deleted"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
