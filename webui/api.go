package webui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"imagesynth/artifacts"
	"imagesynth/catalog"
	"imagesynth/db"
	"imagesynth/imagegen"
)

// generateRequest is the JSON body of POST /api/generate. Zero values take
// the imagegen defaults.
type generateRequest struct {
	Prompt        string `json:"prompt"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	Format        string `json:"format"`
	Steps         int    `json:"steps"`
	Seed          *int64 `json:"seed"`
	Model         string `json:"model"`
	AllowFallback bool   `json:"allow_fallback"`
	Output        string `json:"output"`
}

type generateResponse struct {
	Success       bool                    `json:"success"`
	Filename      string                  `json:"filename,omitempty"`
	Path          string                  `json:"path,omitempty"`
	ImageURL      string                  `json:"image_url,omitempty"`
	Metadata      *artifacts.Record       `json:"metadata,omitempty"`
	Service       imagegen.Role           `json:"service,omitempty"`
	Provider      string                  `json:"provider,omitempty"`
	CorrelationID string                  `json:"correlation_id,omitempty"`
	Error         string                  `json:"error,omitempty"`
	Code          string                  `json:"code,omitempty"`
	Attempts      []imagegen.AttemptEntry `json:"attempts"`
}

type galleryItem struct {
	Filename string           `json:"filename"`
	ImageURL string           `json:"image_url"`
	JSONURL  string           `json:"json_url"`
	Metadata artifacts.Record `json:"metadata"`
	Modified time.Time        `json:"modified"`
}

type galleryResponse struct {
	Items []galleryItem `json:"items"`
	Count int           `json:"count"`
}

type modelsResponse struct {
	Default string          `json:"default"`
	Models  []catalog.Model `json:"models"`
}

type historyResponse struct {
	Attempts []db.AttemptRecord `json:"attempts"`
}

// toRequest validates the parts imagegen cannot see (the format string) and
// fills defaults.
func (g generateRequest) toRequest() (imagegen.Request, error) {
	format, err := artifacts.ParseFormat(g.Format)
	if err != nil {
		return imagegen.Request{}, err
	}

	req := imagegen.NewRequest(g.Prompt)
	req.Format = format
	if g.Width != 0 {
		req.Width = g.Width
	}
	if g.Height != 0 {
		req.Height = g.Height
	}
	if g.Steps != 0 {
		req.Steps = g.Steps
	}
	req.Seed = g.Seed
	req.Model = g.Model
	req.AllowFallback = g.AllowFallback
	req.OutputName = g.Output
	return req, nil
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body generateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	req, err := body.toRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, string(imagegen.KindValidation), err.Error())
		return
	}

	res, err := s.generate(r.Context(), req)
	if errors.Is(err, errShuttingDown) {
		writeError(w, http.StatusServiceUnavailable, CodeShuttingDown, "server is shutting down")
		return
	}

	status := http.StatusOK
	if err != nil {
		status = statusForKind(res.Kind)
	}
	writeJSON(w, status, s.toResponse(res))
}

// handleFormGenerate serves the page's plain form post: it generates and then
// redirects back to the page with either the image or the error in the query.
func (s *Server) handleFormGenerate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	if err := r.ParseForm(); err != nil {
		redirectWithError(w, r, "invalid form: "+err.Error())
		return
	}

	body := generateRequest{
		Prompt:        r.PostForm.Get("prompt"),
		Format:        r.PostForm.Get("format"),
		Model:         r.PostForm.Get("model"),
		AllowFallback: r.PostForm.Get("allow_fallback") == "true",
	}
	var err error
	if body.Width, err = formInt(r, "width"); err != nil {
		redirectWithError(w, r, err.Error())
		return
	}
	if body.Height, err = formInt(r, "height"); err != nil {
		redirectWithError(w, r, err.Error())
		return
	}
	if body.Steps, err = formInt(r, "steps"); err != nil {
		redirectWithError(w, r, err.Error())
		return
	}
	if raw := strings.TrimSpace(r.PostForm.Get("seed")); raw != "" {
		seed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			redirectWithError(w, r, "seed must be an integer")
			return
		}
		body.Seed = &seed
	}

	req, err := body.toRequest()
	if err != nil {
		redirectWithError(w, r, err.Error())
		return
	}

	res, err := s.generate(r.Context(), req)
	if err != nil {
		msg := "server is shutting down"
		if res != nil {
			msg = res.Error
		}
		redirectWithError(w, r, msg)
		return
	}
	http.Redirect(w, r, "/?image="+url.QueryEscape(res.Record.Filename), http.StatusSeeOther)
}

var errShuttingDown = errors.New("webui: shutting down")

// generate runs the orchestrator under the shutdown tracker. A nil Result
// with errShuttingDown means the request was refused.
func (s *Server) generate(ctx context.Context, req imagegen.Request) (*imagegen.Result, error) {
	var res *imagegen.Result
	var genErr error
	run := func(ctx context.Context) error {
		res, genErr = s.deps.Generator.Generate(ctx, req)
		return nil
	}

	if s.deps.Tracker == nil {
		run(ctx)
		return res, genErr
	}
	if err := s.deps.Tracker.Track(ctx, "generate", run); err != nil {
		if res != nil {
			return res, genErr
		}
		s.logger.Warn("generation refused", zap.Error(err))
		return nil, errShuttingDown
	}
	return res, genErr
}

func (s *Server) toResponse(res *imagegen.Result) generateResponse {
	resp := generateResponse{
		Success:       res.Success,
		Path:          res.Path,
		Service:       res.Service,
		Provider:      res.Provider,
		CorrelationID: res.CorrelationID,
		Error:         res.Error,
		Attempts:      res.Attempts,
	}
	if resp.Attempts == nil {
		resp.Attempts = []imagegen.AttemptEntry{}
	}
	if !res.Success {
		resp.Code = codeForKind(res.Kind)
	}
	if res.Record != nil {
		resp.Filename = res.Record.Filename
		resp.ImageURL = outputURL(res.Record.Filename)
		resp.Metadata = res.Record
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	model := r.URL.Query().Get("model")

	var result imagegen.ProbeResult
	probe := func(ctx context.Context) error {
		result = s.deps.Generator.Probe(ctx, model)
		return nil
	}
	if s.deps.Tracker != nil {
		if err := s.deps.Tracker.Track(r.Context(), "status", probe); err != nil {
			writeError(w, http.StatusServiceUnavailable, CodeShuttingDown, "server is shutting down")
			return
		}
	} else {
		probe(r.Context())
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGallery(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	items, err := s.deps.Gallery.List(limit)
	if err != nil {
		s.logger.Error("gallery listing failed", zap.Error(err))
		writeKindError(w, err)
		return
	}

	resp := galleryResponse{Items: make([]galleryItem, 0, len(items)), Count: len(items)}
	for _, item := range items {
		resp.Items = append(resp.Items, galleryItem{
			Filename: item.Filename,
			ImageURL: outputURL(item.Filename),
			JSONURL:  outputURL(item.Sidecar),
			Metadata: item.Record,
			Modified: item.ModTime,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")

	if err := s.deps.Gallery.Delete(filename); err != nil {
		switch imagegen.KindOf(err) {
		case imagegen.KindPathSecurity:
			writeError(w, http.StatusBadRequest, CodeInvalidPath, "Invalid file path")
		case imagegen.KindNotFound:
			writeError(w, http.StatusNotFound, string(imagegen.KindNotFound), "Image file not found")
		default:
			s.logger.Error("delete failed", zap.String("filename", filename), zap.Error(err))
			writeError(w, http.StatusInternalServerError, string(imagegen.KindStorageIO), err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Image and metadata deleted successfully",
	})
}

func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	if strings.HasPrefix(filename, ".") {
		http.NotFound(w, r)
		return
	}
	path, err := s.deps.Gallery.Resolve(filename)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, modelsResponse{
		Default: s.deps.Models.DefaultModel(),
		Models:  s.deps.Models.Models(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	if s.deps.History == nil {
		writeJSON(w, http.StatusOK, historyResponse{Attempts: []db.AttemptRecord{}})
		return
	}

	attempts, err := s.deps.History.QueryRecentAttempts(r.Context(), limit)
	if err != nil {
		s.logger.Error("history query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, string(imagegen.KindStorageIO), "history unavailable")
		return
	}
	if attempts == nil {
		attempts = []db.AttemptRecord{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Attempts: attempts})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	if s.deps.Stats == nil {
		writeError(w, http.StatusNotFound, string(imagegen.KindNotFound), "statistics are disabled")
		return
	}
	if limit == 0 {
		limit = 20
	}
	writeJSON(w, http.StatusOK, s.deps.Stats.Snapshot(limit))
}

// queryLimit parses ?limit=. Zero means the callee's default; a malformed or
// negative value writes a 400 and returns false.
func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "limit must be a non-negative integer")
		return 0, false
	}
	return limit, true
}

func formInt(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.PostForm.Get(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return v, nil
}

func outputURL(filename string) string {
	return "/output/" + url.PathEscape(filename)
}

func redirectWithError(w http.ResponseWriter, r *http.Request, msg string) {
	http.Redirect(w, r, "/?error="+url.QueryEscape(msg), http.StatusSeeOther)
}
