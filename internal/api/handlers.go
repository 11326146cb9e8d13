// internal/api/handlers.go
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"dpack/internal/errors"
	"dpack/internal/logging"
	"dpack/internal/overlay"
	"dpack/internal/pathtree"
	"dpack/internal/preview"
	"dpack/internal/progress"
	"dpack/internal/rename"
	"dpack/internal/session"

	"go.uber.org/zap"
)

// MaxUploadSize bounds archive and image request bodies.
const MaxUploadSize = 512 << 20

type SessionHandler struct {
	sessions *Sessions
	previews *preview.Registry
	logger   *logging.Logger
}

func NewSessionHandler(sessions *Sessions, previews *preview.Registry, logger *logging.Logger) *SessionHandler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &SessionHandler{sessions: sessions, previews: previews, logger: logger}
}

// Register mounts every endpoint on mux.
func (h *SessionHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions", h.Create)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.Delete)
	mux.HandleFunc("GET /api/sessions/{id}/tree", h.Tree)
	mux.HandleFunc("GET /api/sessions/{id}/content", h.GetContent)
	mux.HandleFunc("PUT /api/sessions/{id}/content", h.PutContent)
	mux.HandleFunc("PUT /api/sessions/{id}/name", h.SetName)
	mux.HandleFunc("GET /api/sessions/{id}/images", h.Images)
	mux.HandleFunc("POST /api/sessions/{id}/images", h.AddImage)
	mux.HandleFunc("GET /api/sessions/{id}/plan", h.Plan)
	mux.HandleFunc("POST /api/sessions/{id}/export", h.Export)
	mux.HandleFunc("GET /api/previews/{handle}", h.GetPreview)
	mux.HandleFunc("DELETE /api/previews/{handle}", h.ReleasePreview)
}

type treeResponse struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Fingerprint string             `json:"fingerprint"`
	DisplayName string             `json:"display_name,omitempty"`
	Rename      *rename.RootRename `json:"rename,omitempty"`
	Expanded    []string           `json:"expanded"`
	Edits       []string           `json:"edits"`
	Tree        []*pathtree.Node   `json:"tree"`
}

func describe(id string, s *session.Session) treeResponse {
	resp := treeResponse{
		ID:          id,
		Name:        s.Name(),
		Fingerprint: s.Fingerprint(),
		DisplayName: s.DisplayName(),
		Expanded:    s.ExpandedRoots(),
		Edits:       s.OverlayPaths(),
		Tree:        s.Tree(),
	}
	if rn, ok := s.Rename(); ok {
		resp.Rename = &rn
	}
	return resp
}

// Create loads the request body as an archive. The datapack name comes from
// the "name" query parameter.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxUploadSize))
	if err != nil {
		h.writeError(w, r, errors.ValidationError("invalid request body", err.Error()))
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		name = "datapack.zip"
	}

	id, sess, err := h.sessions.Open(data, name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.WithRequestID(r.Context()).Info("session opened",
		zap.String("session", id),
		zap.String("name", sess.Name()))
	writeJSON(w, http.StatusCreated, describe(id, sess))
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) Tree(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := h.sessions.Get(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, describe(id, sess))
}

func (h *SessionHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	p := r.URL.Query().Get("path")
	if p == "" {
		h.writeError(w, r, errors.ValidationError("path is required", nil))
		return
	}

	c, err := sess.Resolve(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	contentType := "application/octet-stream"
	if c.Kind == overlay.KindText {
		contentType = "text/plain; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Kind", c.Kind.String())
	w.Header().Set("Content-Length", strconv.Itoa(c.Len()))
	w.Write(c.Bytes())
}

// PutContent records the request body as an edit. kind is "text" (default)
// or "binary".
func (h *SessionHandler) PutContent(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	kindName := q.Get("kind")
	if kindName == "" {
		kindName = "text"
	}
	kind, err := overlay.ParseKind(kindName)
	if err != nil {
		h.writeError(w, r, errors.ValidationError(err.Error(), nil))
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxUploadSize))
	if err != nil {
		h.writeError(w, r, errors.ValidationError("invalid request body", err.Error()))
		return
	}

	c := overlay.Binary(data)
	if kind == overlay.KindText {
		c = overlay.Text(string(data))
	}
	if err := sess.Write(q.Get("path"), c); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) SetName(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := h.sessions.Get(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, errors.ValidationError("invalid request body", err.Error()))
		return
	}

	if err := sess.SetDisplayName(req.Name); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, describe(id, sess))
}

type imagesResponse struct {
	Dir      string             `json:"dir"`
	Previews []*preview.Preview `json:"previews"`
	Failed   []string           `json:"failed,omitempty"`
}

// Images resolves an image folder and replaces the session's gallery with
// fresh preview handles. Partial failures answer 207.
func (h *SessionHandler) Images(w http.ResponseWriter, r *http.Request) {
	e, err := h.sessions.get(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	dir := r.URL.Query().Get("dir")
	res, err := e.session.ResolveImages(r.Context(), dir)
	if res == nil {
		h.writeError(w, r, err)
		return
	}

	images := make(map[string][]byte, len(res.Contents))
	for p, c := range res.Contents {
		images[p] = c.Bytes()
	}
	previews, failed := e.gallery.Replace(images)

	resp := imagesResponse{
		Dir:      res.Dir,
		Previews: previews,
		Failed:   append(res.Failed, failed...),
	}
	status := http.StatusOK
	if len(resp.Failed) > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, resp)
}

// AddImage stores the body as dir/id.format.
func (h *SessionHandler) AddImage(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxUploadSize))
	if err != nil {
		h.writeError(w, r, errors.ValidationError("invalid request body", err.Error()))
		return
	}

	q := r.URL.Query()
	p, err := sess.AddImage(q.Get("dir"), q.Get("image_id"), q.Get("format"), data)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"path": p})
}

func (h *SessionHandler) Plan(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	plan, err := sess.Plan()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// Export answers with the merged archive as an attachment.
func (h *SessionHandler) Export(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	log := h.logger.WithRequestID(r.Context())
	data, err := sess.Export(r.Context(), func(u progress.Update) {
		log.Debug("export progress",
			zap.String("phase", string(u.Phase)),
			zap.Float64("percent", u.Percent),
			zap.String("label", u.Label))
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sess.ExportFileName()))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func (h *SessionHandler) GetPreview(w http.ResponseWriter, r *http.Request) {
	p, ok := h.previews.Get(preview.Handle(r.PathValue("handle")))
	if !ok {
		h.writeError(w, r, errors.NotFound("preview not found"))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(p.Thumbnail)))
	w.Write(p.Thumbnail)
}

func (h *SessionHandler) ReleasePreview(w http.ResponseWriter, r *http.Request) {
	if !h.previews.Release(preview.Handle(r.PathValue("handle"))) {
		h.writeError(w, r, errors.NotFound("preview not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *SessionHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.StatusCode(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithRequestID(r.Context()).Error("request failed", zap.Error(err))
	}

	body := map[string]any{
		"type":    errors.TypeOf(err),
		"message": err.Error(),
	}
	var e *errors.Error
	if errors.As(err, &e) && e.Details != nil {
		body["details"] = e.Details
	}
	writeJSON(w, status, body)
}
