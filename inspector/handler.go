// Package inspector serves a JSON HTTP API over a running MCP server session:
// server identity, the four listings and the call, read and get actions.
package inspector

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/mcp-inspector-go/auth"
	"github.com/ggoodman/mcp-inspector-go/client"
	"github.com/ggoodman/mcp-inspector-go/internal/logctx"
	"github.com/ggoodman/mcp-inspector-go/mcp"
	"github.com/google/uuid"
)

// API is what the handler needs from a session. *client.Session satisfies
// it, as does the supervisor that restarts sessions.
type API interface {
	Info() client.Info
	ListTools(ctx context.Context) []mcp.Descriptor
	ListResources(ctx context.Context) []mcp.Descriptor
	ListResourceTemplates(ctx context.Context) []mcp.Descriptor
	ListPrompts(ctx context.Context) []mcp.Descriptor
	CallTool(ctx context.Context, name string, args map[string]any) client.Result
	ReadResource(ctx context.Context, uri string) client.Result
	GetPrompt(ctx context.Context, name string, args map[string]any) client.Result
}

var (
	_ http.Handler = (*Handler)(nil)
	_ API          = (*client.Session)(nil)
)

var (
	jsonMediaType  = contenttype.NewMediaType("application/json")
	jsonMediaTypes = []contenttype.MediaType{jsonMediaType}
)

const (
	requestIDHeader       = "X-Request-Id"
	authorizationHeader   = "Authorization"
	defaultRealm          = "mcp-inspector"
	maxRequestBody        = 1 << 20
	noResponseMessage     = "No response"
	unknownServerName     = "Unknown"
	apiPrefix             = "/api/"
	contentTypeHeader     = "Content-Type"
	missingFieldMessage   = "missing required field: "
	invalidBodyMessage    = "invalid JSON body"
	unsupportedMediaError = "content-type must be application/json"
	notAcceptableError    = "client must accept application/json"
)

// Option configures the Handler.
type Option func(*Handler)

// WithLogger sets the logger. If not provided, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithAuthenticator requires a valid bearer token on every /api/ route.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(h *Handler) { h.auth = a }
}

// WithRealm sets the realm advertised in WWW-Authenticate challenges.
func WithRealm(realm string) Option {
	return func(h *Handler) {
		if r := strings.TrimSpace(realm); r != "" {
			h.realm = r
		}
	}
}

// Handler is the HTTP front of an inspector session.
type Handler struct {
	api   API
	log   *slog.Logger
	auth  auth.Authenticator
	realm string
	mux   *http.ServeMux
}

// New builds a Handler serving api.
func New(api API, opts ...Option) *Handler {
	h := &Handler{
		api:   api,
		log:   slog.New(slog.DiscardHandler),
		realm: defaultRealm,
	}
	for _, opt := range opts {
		opt(h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/info", h.handleInfo)
	mux.HandleFunc("GET /api/tools", h.handleList(api.ListTools))
	mux.HandleFunc("GET /api/resources", h.handleList(api.ListResources))
	mux.HandleFunc("GET /api/resources/templates", h.handleList(api.ListResourceTemplates))
	mux.HandleFunc("GET /api/prompts", h.handleList(api.ListPrompts))
	mux.HandleFunc("POST /api/tools/call", h.handleCallTool)
	mux.HandleFunc("POST /api/resources/read", h.handleReadResource)
	mux.HandleFunc("POST /api/prompts/get", h.handleGetPrompt)
	h.mux = mux
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	reqID := r.Header.Get(requestIDHeader)
	if _, err := uuid.Parse(reqID); err != nil {
		reqID = uuid.NewString()
	}
	w.Header().Set(requestIDHeader, reqID)

	ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  reqID,
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})
	r = r.WithContext(ctx)
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	if strings.HasPrefix(r.URL.Path, apiPrefix) {
		if _, _, err := contenttype.GetAcceptableMediaType(r, jsonMediaTypes); err != nil {
			h.log.InfoContext(ctx, "http.accept.unsupported", slog.String("accept", r.Header.Get("Accept")))
			writeJSONError(rec, http.StatusNotAcceptable, notAcceptableError)
			return
		}
		if h.auth != nil {
			ui := h.checkAuthentication(ctx, r, rec)
			if ui == nil {
				return
			}
			r = r.WithContext(auth.WithUserInfo(ctx, ui))
		}
	}

	h.mux.ServeHTTP(rec, r)

	attrs := []any{slog.Int("status", rec.status), slog.Duration("dur", time.Since(start))}
	if ui, ok := auth.UserInfoFromContext(r.Context()); ok {
		attrs = append(attrs, slog.String("user", ui.UserID()))
	}
	h.log.InfoContext(ctx, "http.request", attrs...)
}

type infoResponse struct {
	Name            string         `json:"name"`
	Version         string         `json:"version"`
	ProtocolVersion string         `json:"protocolVersion,omitempty"`
	Instructions    string         `json:"instructions,omitempty"`
	Capabilities    map[string]any `json:"capabilities"`
	Command         string         `json:"command"`
}

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := h.api.Info()
	resp := infoResponse{
		Name:            info.Name,
		Version:         info.Version,
		ProtocolVersion: info.ProtocolVersion,
		Instructions:    info.Instructions,
		Capabilities:    info.Capabilities,
		Command:         info.Command.String(),
	}
	if resp.Name == "" {
		resp.Name = unknownServerName
	}
	if resp.Capabilities == nil {
		resp.Capabilities = map[string]any{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleList(list func(context.Context) []mcp.Descriptor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items := list(r.Context())
		if items == nil {
			items = []mcp.Descriptor{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

type namedArgsRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type readResourceRequest struct {
	URI string `json:"uri"`
}

func (h *Handler) handleCallTool(w http.ResponseWriter, r *http.Request) {
	var req namedArgsRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeJSONError(w, http.StatusBadRequest, missingFieldMessage+"name")
		return
	}
	h.writeResult(w, r, h.api.CallTool(r.Context(), req.Name, req.Arguments))
}

func (h *Handler) handleReadResource(w http.ResponseWriter, r *http.Request) {
	var req readResourceRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if req.URI == "" {
		writeJSONError(w, http.StatusBadRequest, missingFieldMessage+"uri")
		return
	}
	h.writeResult(w, r, h.api.ReadResource(r.Context(), req.URI))
}

func (h *Handler) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	var req namedArgsRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeJSONError(w, http.StatusBadRequest, missingFieldMessage+"name")
		return
	}
	h.writeResult(w, r, h.api.GetPrompt(r.Context(), req.Name, req.Arguments))
}

// decodeBody enforces a JSON content type and decodes the body into v. It
// writes the error response itself and reports whether the caller may go on.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	ctx := r.Context()

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		h.log.WarnContext(ctx, "content_type.unsupported", slog.String("content_type", r.Header.Get(contentTypeHeader)))
		writeJSONError(w, http.StatusUnsupportedMediaType, unsupportedMediaError)
		return false
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		h.log.WarnContext(ctx, "json.decode.fail", slog.String("err", err.Error()))
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeJSONError(w, http.StatusBadRequest, invalidBodyMessage)
		return false
	}
	return true
}

func (h *Handler) writeResult(w http.ResponseWriter, r *http.Request, res client.Result) {
	if res.Status == client.StatusNoResponse {
		attrs := []any{}
		if res.Err != nil {
			attrs = append(attrs, slog.String("err", res.Err.Error()))
		}
		h.log.InfoContext(r.Context(), "mcp.no_response", attrs...)
		writeJSONError(w, http.StatusOK, noResponseMessage)
		return
	}
	w.Header().Set(contentTypeHeader, jsonMediaType.String())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Value)
}

func (h *Handler) checkAuthentication(ctx context.Context, r *http.Request, w http.ResponseWriter) auth.UserInfo {
	tok, present, ok := auth.BearerToken(r.Header.Get(authorizationHeader))
	if !present {
		h.log.InfoContext(ctx, "auth.check.missing")
		auth.NewAuthenticationRequired(h.realm).Write(w)
		return nil
	}
	if !ok {
		h.log.InfoContext(ctx, "auth.check.invalid", slog.String("err", "malformed bearer authorization header"))
		auth.NewInvalidAuthorizationHeader(h.realm).Write(w)
		return nil
	}

	ui, err := h.auth.CheckAuthentication(ctx, tok)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			h.log.InfoContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
			auth.NewInvalidTokenResult(h.realm, "token is invalid or expired").Write(w)
			return nil
		}
		h.log.ErrorContext(ctx, "auth.check.err", slog.String("err", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return nil
	}
	return ui
}

// writeJSONError emits {"error": msg} with the given status.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(contentTypeHeader, jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
