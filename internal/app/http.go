package app

import (
	"bufio"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"progress/api/internal/auth"
	"progress/api/internal/blob"
	"progress/api/internal/rbac"
	"progress/api/internal/search"
)

const maxUploadBytes = 10 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) forbid(w http.ResponseWriter, session Session, action rbac.Action) {
	log.Printf("forbidden: user=%q role=%q action=%s", session.UserID, session.Role, action)
	writeError(w, http.StatusForbidden, CodeForbidden, "Forbidden", nil)
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	isRead := r.Method == http.MethodGet || r.Method == http.MethodHead

	if isRead && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if isRead && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if isRead && r.URL.Path == "/" {
		http.Redirect(w, r, "/admin/dashboard", http.StatusFound)
		return
	}

	if isRead && strings.HasPrefix(r.URL.Path, "/files/") {
		s.handleFile(w, r, strings.TrimPrefix(r.URL.EscapedPath(), "/files/"))
		return
	}

	parts := splitPath(r.URL.Path)

	// Admin console pages: /admin/{dashboard,clients,analytics,profile}
	if isRead && len(parts) >= 1 && parts[0] == "admin" {
		s.handleAdminPage(w, r, parts[1:])
		return
	}

	// Browser page of a client: /client/{id}[/updates/{uid}/(seen|comments)]
	if len(parts) >= 2 && parts[0] == "client" {
		s.handleClientPage(w, r, parts[1], parts[2:])
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup":
		s.handleAuthSignUp(w, r)
		return
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin":
		s.handleAuthSignIn(w, r)
		return
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/refresh":
		s.handleAuthRefresh(w, r)
		return
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/logout":
		s.handleAuthLogout(w, r)
		return
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/reset-password/request":
		s.handleAuthRequestReset(w, r)
		return
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/reset-password":
		s.handleAuthResetPassword(w, r)
		return
	case r.Method == http.MethodGet && r.URL.Path == "/api/session":
		s.handleSession(w, r)
		return
	}

	// Public API: /api/public/clients/{id}/...
	if len(parts) >= 4 && parts[0] == "api" && parts[1] == "public" && parts[2] == "clients" {
		s.handlePublicClient(w, r, parts[3], parts[4:])
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/live/dashboard" {
		session, ok := s.requireSessionToken(w, r, liveToken(r))
		if !ok {
			return
		}
		if !s.service.Can(session, rbac.ActionRead) {
			s.forbid(w, session, rbac.ActionRead)
			return
		}
		s.serveDashboardLive(w, r)
		return
	}

	if len(parts) >= 2 && parts[0] == "api" {
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		s.handleAdmin(w, r, session, parts[1:])
		return
	}

	writeError(w, http.StatusNotFound, CodeNotFound, "Not found", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	checks["blob"] = map[string]any{"status": "ok"}
	if err := s.service.PingBlobs(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["blob"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleFile(w http.ResponseWriter, r *http.Request, rawKey string) {
	key, err := url.PathUnescape(rawKey)
	if err != nil || !blob.ValidKey(key) || s.service.blobs == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "Not found", nil)
		return
	}
	body, info, err := s.service.blobs.Open(r.Context(), key)
	if errors.Is(err, blob.ErrNotFound) {
		writeError(w, http.StatusNotFound, CodeNotFound, "Not found", nil)
		return
	}
	if err != nil {
		log.Printf("open blob %s: %v", key, err)
		writeError(w, http.StatusInternalServerError, CodeServerError, "Failed to load file.", nil)
		return
	}
	defer body.Close()

	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, body); err != nil {
		log.Printf("stream blob %s: %v", key, err)
	}
}

func (s *HTTPServer) handleAdminPage(w http.ResponseWriter, r *http.Request, rest []string) {
	if len(rest) == 0 {
		http.Redirect(w, r, "/admin/dashboard", http.StatusFound)
		return
	}
	section, ok := findAdminSection(rest[0])
	if !ok || len(rest) > 1 {
		writeError(w, http.StatusNotFound, CodeNotFound, "Not found", nil)
		return
	}
	page, err := renderAdminPage(section)
	if err != nil {
		log.Printf("render admin page %s: %v", section.Name, err)
		writeError(w, http.StatusInternalServerError, CodeServerError, "Failed to render page.", nil)
		return
	}
	writeHTML(w, http.StatusOK, page)
}

// handleClientPage serves the read-only progress page and the two form posts
// it makes. Visitors need no session.
func (s *HTTPServer) handleClientPage(w http.ResponseWriter, r *http.Request, clientID string, rest []string) {
	if len(rest) == 0 && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
		page, err := s.service.ClientPageHTML(r.Context(), clientID)
		if err != nil {
			status, _, message, _ := mapError(err)
			writeHTML(w, status, "<!DOCTYPE html><html><body><h1>"+html.EscapeString(message)+"</h1></body></html>")
			return
		}
		writeHTML(w, http.StatusOK, page)
		return
	}

	if len(rest) == 3 && rest[0] == "updates" && r.Method == http.MethodPost {
		updateID := rest[1]
		var err error
		switch rest[2] {
		case "seen":
			err = s.service.CheckUpdateOwner(r.Context(), clientID, updateID)
			if err == nil {
				_, err = s.service.MarkSeen(r.Context(), updateID)
			}
		case "comments":
			r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
			if parseErr := r.ParseForm(); parseErr != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid form body", nil)
				return
			}
			err = s.service.CheckUpdateOwner(r.Context(), clientID, updateID)
			if err == nil {
				_, err = s.service.AddComment(r.Context(), updateID, r.PostForm.Get("comment"))
			}
		default:
			writeError(w, http.StatusNotFound, CodeNotFound, "Not found", nil)
			return
		}
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		http.Redirect(w, r, "/client/"+url.PathEscape(clientID), http.StatusSeeOther)
		return
	}

	writeError(w, http.StatusNotFound, CodeNotFound, "Not found", nil)
}

func (s *HTTPServer) handlePublicClient(w http.ResponseWriter, r *http.Request, clientID string, rest []string) {
	session := visitor

	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		report, err := s.service.ClientReport(r.Context(), clientID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reportJSON(report))
		return

	case len(rest) == 1 && rest[0] == "live" && r.Method == http.MethodGet:
		if _, err := s.service.GetClient(r.Context(), clientID); err != nil {
			writeServiceError(w, err)
			return
		}
		s.serveClientLive(w, r, clientID)
		return

	case len(rest) == 1 && rest[0] == "report" && r.Method == http.MethodGet:
		if !s.service.Can(session, rbac.ActionExport) {
			s.forbid(w, session, rbac.ActionExport)
			return
		}
		result, err := s.service.ExportReport(r.Context(), clientID, r.URL.Query().Get("format"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
		return

	case len(rest) == 3 && rest[0] == "updates" && r.Method == http.MethodPost:
		updateID := rest[1]
		switch rest[2] {
		case "open":
			update, err := s.service.OpenUpdate(r.Context(), clientID, updateID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, updateJSON(update))
			return
		case "seen":
			if !s.service.Can(session, rbac.ActionAcknowledge) {
				s.forbid(w, session, rbac.ActionAcknowledge)
				return
			}
			if err := s.service.CheckUpdateOwner(r.Context(), clientID, updateID); err != nil {
				writeServiceError(w, err)
				return
			}
			update, err := s.service.MarkSeen(r.Context(), updateID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, updateJSON(update))
			return
		case "comments":
			if !s.service.Can(session, rbac.ActionComment) {
				s.forbid(w, session, rbac.ActionComment)
				return
			}
			var body struct {
				Comment string `json:"comment"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if err := s.service.CheckUpdateOwner(r.Context(), clientID, updateID); err != nil {
				writeServiceError(w, err)
				return
			}
			comments, err := s.service.AddComment(r.Context(), updateID, body.Comment)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"id": updateID, "comments": comments})
			return
		}
	}

	writeError(w, http.StatusNotFound, CodeNotFound, "Not found", nil)
}

// handleAdmin serves /api/... for signed-in administrators. parts excludes
// the leading "api".
func (s *HTTPServer) handleAdmin(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	action := rbac.ActionRead
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		action = rbac.ActionWrite
	}
	if !s.service.Can(session, action) {
		s.forbid(w, session, action)
		return
	}
	ctx := r.Context()
	query := r.URL.Query()

	switch parts[0] {
	case "dashboard":
		if len(parts) == 1 && r.Method == http.MethodGet {
			view, err := s.service.Dashboard(ctx)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, dashboardJSON(view))
			return
		}

	case "analytics":
		if len(parts) == 1 && r.Method == http.MethodGet {
			summary, err := s.service.Analytics(ctx)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, summary)
			return
		}

	case "search":
		if len(parts) == 1 && r.Method == http.MethodGet {
			resp, err := s.service.SearchClients(ctx, search.Query{
				Text:   query.Get("q"),
				Status: search.Status(query.Get("status")),
				Limit:  queryInt(query, "limit", 20),
				Offset: queryInt(query, "offset", 0),
			})
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, resp)
			return
		}

	case "clients":
		s.handleClients(w, r, parts[1:])
		return

	case "profile":
		s.handleProfile(w, r, session, parts[1:])
		return

	case "team":
		if len(parts) == 1 && r.Method == http.MethodGet {
			page, err := s.service.TeamMembers(ctx, queryInt(query, "page", 1))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			items := make([]map[string]any, 0, len(page.Items))
			for _, user := range page.Items {
				items = append(items, userJSON(user))
			}
			writeJSON(w, http.StatusOK, pageJSON(items, page.Page, page.TotalPages, page.Total))
			return
		}
	}

	writeError(w, http.StatusNotFound, CodeNotFound, "Not found", nil)
}

func (s *HTTPServer) handleClients(w http.ResponseWriter, r *http.Request, parts []string) {
	ctx := r.Context()

	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			query := r.URL.Query()
			page, err := s.service.ClientsPage(ctx, query.Get("search"), query.Get("filter"), queryInt(query, "page", 1))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			items := make([]map[string]any, 0, len(page.Items))
			for _, client := range page.Items {
				items = append(items, clientJSON(client))
			}
			writeJSON(w, http.StatusOK, pageJSON(items, page.Page, page.TotalPages, page.Total))
			return
		case http.MethodPost:
			var input ClientInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			client, err := s.service.CreateClient(ctx, input)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, clientJSON(client))
			return
		}
		writeError(w, http.StatusNotFound, CodeNotFound, "Not found", nil)
		return
	}

	clientID := parts[0]
	rest := parts[1:]

	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		client, err := s.service.GetClient(ctx, clientID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		report, err := s.service.ClientReport(ctx, clientID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		payload := clientJSON(client)
		payload["newUpdates"] = reportUpdatesJSON(report.NewUpdates)
		payload["pastUpdates"] = reportUpdatesJSON(report.PastUpdates)
		writeJSON(w, http.StatusOK, payload)
		return

	case len(rest) == 0 && (r.Method == http.MethodPut || r.Method == http.MethodPatch):
		var changes ClientChanges
		if err := decodeBody(r, &changes); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		client, err := s.service.UpdateClient(ctx, clientID, changes)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, clientJSON(client))
		return

	case len(rest) == 0 && r.Method == http.MethodDelete:
		if err := s.service.DeleteClient(ctx, clientID); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return

	case len(rest) == 1 && rest[0] == "complete" && r.Method == http.MethodPost:
		client, err := s.service.MarkComplete(ctx, clientID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, clientJSON(client))
		return

	case len(rest) == 1 && rest[0] == "updates" && r.Method == http.MethodGet:
		updates, err := s.service.ClientUpdates(ctx, clientID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		items := make([]map[string]any, 0, len(updates))
		for _, update := range updates {
			items = append(items, updateJSON(update))
		}
		writeJSON(w, http.StatusOK, map[string]any{"updates": items})
		return

	case len(rest) == 1 && rest[0] == "updates" && r.Method == http.MethodPost:
		input := UpdateInput{ClientID: clientID}
		var image *Upload
		if isMultipart(r) {
			upload, cleanup, err := parseUpload(w, r, "image")
			if err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			defer cleanup()
			input.Title = r.FormValue("title")
			input.Description = r.FormValue("description")
			image = upload
		} else {
			var body struct {
				Title       string `json:"title"`
				Description string `json:"description"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			input.Title, input.Description = body.Title, body.Description
		}
		update, err := s.service.CreateUpdate(ctx, input, image)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, updateJSON(update))
		return
	}

	writeError(w, http.StatusNotFound, CodeNotFound, "Not found", nil)
}

func (s *HTTPServer) handleProfile(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	ctx := r.Context()

	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		user, err := s.service.GetProfile(ctx, session)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, userJSON(user))
		return

	case len(rest) == 0 && (r.Method == http.MethodPut || r.Method == http.MethodPatch):
		var input ProfileInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		user, err := s.service.UpdateProfile(ctx, session, input)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, userJSON(user))
		return

	case len(rest) == 1 && rest[0] == "name" && r.Method == http.MethodPost:
		var body struct {
			Name string `json:"name"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		user, err := s.service.SetDisplayName(ctx, session, body.Name)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, userJSON(user))
		return

	case len(rest) == 1 && rest[0] == "photo" && r.Method == http.MethodPost:
		upload, cleanup, err := parseUpload(w, r, "image")
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		defer cleanup()
		user, err := s.service.UploadProfilePhoto(ctx, session, upload)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, userJSON(user))
		return
	}

	writeError(w, http.StatusNotFound, CodeNotFound, "Not found", nil)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	return s.requireSessionToken(w, r, bearerToken(r))
}

func (s *HTTPServer) requireSessionToken(w http.ResponseWriter, r *http.Request, token string) (Session, bool) {
	if token == "" {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized", nil)
			return Session{}, false
		}
		log.Printf("session lookup: %v", err)
		writeError(w, http.StatusInternalServerError, CodeServerError, "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController and the websocket upgrader reach the
// underlying connection.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeServiceError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// parseUpload reads a multipart form and returns the file in field, or nil
// when the form has none. cleanup removes temporary files of the form.
func parseUpload(w http.ResponseWriter, r *http.Request, field string) (*Upload, func(), error) {
	noop := func() {}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, noop, errors.New("invalid multipart body")
	}
	cleanup := func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			log.Printf("remove multipart files: %v", err)
		}
	}
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, cleanup, nil
	}
	if err != nil {
		return nil, cleanup, fmt.Errorf("invalid %s upload", field)
	}
	closeAndCleanup := func() {
		_ = file.Close()
		cleanup()
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &Upload{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	}, closeAndCleanup, nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// liveToken accepts the token as a query parameter because browsers cannot
// set headers on a websocket handshake.
func liveToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	return bearerToken(r)
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func queryInt(values url.Values, key string, fallback int) int {
	raw := values.Get(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, CodeNotFound, "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, CodeUnauthorized, "Unauthorized", nil
	}
	return http.StatusInternalServerError, CodeServerError, "Server error", nil
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	anonymous := map[string]any{"authenticated": false, "email": nil, "displayName": nil, "needsName": false}
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusOK, anonymous)
		return
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		writeJSON(w, http.StatusOK, anonymous)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"userId":        session.UserID,
		"email":         session.Email,
		"displayName":   session.DisplayName,
		"needsName":     session.DisplayName == "",
		"role":          session.Role,
	})
}

func sessionJSON(session Session) map[string]any {
	return map[string]any{
		"accessToken":  session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"email":        session.Email,
		"displayName":  session.DisplayName,
		"needsName":    session.DisplayName == "",
		"role":         session.Role,
		"expiresAt":    session.ExpiresAt.Unix(),
	}
}

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var creds Credentials
	if err := decodeBody(r, &creds); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.SignUp(r.Context(), creds)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionJSON(session))
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var creds Credentials
	if err := decodeBody(r, &creds); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.SignIn(r.Context(), creds)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionJSON(session))
}

func (s *HTTPServer) handleAuthRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidToken) {
			log.Printf("refresh session: %v", err)
		}
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Refresh token invalid", nil)
		return
	}
	writeJSON(w, http.StatusOK, sessionJSON(session))
}

func (s *HTTPServer) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	session := Session{}
	if token := bearerToken(r); token != "" {
		if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
			session = parsed
		}
	}
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = decodeBody(r, &body)
	_ = s.service.Logout(r.Context(), session, body.RefreshToken)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleAuthRequestReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	token, err := s.service.RequestPasswordReset(r.Context(), body.Email)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response := map[string]any{
		"message": "If an account exists, a reset email has been sent",
	}
	// Without SMTP the token is handed back so local setups can finish the flow.
	if token != "" {
		response["devResetToken"] = token
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleAuthResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.ResetPassword(r.Context(), body.Token, body.NewPassword); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Password reset successfully",
	})
}
