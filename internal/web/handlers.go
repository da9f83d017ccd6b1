package web

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"veoGenerator/internal/core"
	"veoGenerator/internal/media"
	"veoGenerator/internal/models"
	"veoGenerator/internal/state"
)

const maxImageSize = 20 << 20

var (
	errBadRequest = errors.New("bad request")
	errImageType  = errors.New("file is not an image")
	errImageSize  = errors.New("image too large")
)

type pageData struct {
	Lang   string
	Title  string
	Bundle map[string]string
	Models []core.AIModel
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	lang := s.lang(r)
	data := pageData{
		Lang:   lang,
		Title:  s.loc.Get(lang, "app_title"),
		Bundle: s.loc.Bundle(lang),
		Models: videoModels(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.page.Execute(w, data); err != nil {
		log.Printf("[HTTP] Failed to render page: %v", err)
	}
}

// videoModels is never nil so the page always gets a JSON array.
func videoModels() []core.AIModel {
	out := []core.AIModel{}
	for _, p := range core.AI_REGISTRY {
		if p.Type == "video" {
			out = append(out, p.Models...)
		}
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"clients": s.hub.Count(),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.hub.serve(w, r, s.state.Snapshot())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Snapshot())
}

type settingsRequest struct {
	Prompt      string `json:"prompt"`
	Model       string `json:"model"`
	AspectRatio string `json:"aspectRatio"`
	Resolution  string `json:"resolution"`
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, errBadRequest)
		return
	}
	err := s.state.UpdateSettings(models.Settings{
		Prompt:      req.Prompt,
		Model:       req.Model,
		AspectRatio: req.AspectRatio,
		Resolution:  req.Resolution,
	})
	s.commitAndRespond(w, r, err)
}

func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageSize+1<<20)
	file, _, err := r.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, errImageSize)
			return
		}
		s.writeError(w, r, errBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageSize+1))
	if err != nil {
		s.writeError(w, r, errBadRequest)
		return
	}
	if len(data) > maxImageSize {
		s.writeError(w, r, errImageSize)
		return
	}
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		s.writeError(w, r, errImageType)
		return
	}

	ref, err := s.media.SaveImage(data, mimeType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.state.SetImage(ref)
	s.commitAndRespond(w, r, nil)
}

func (s *Server) handleRemoveImage(w http.ResponseWriter, r *http.Request) {
	s.state.RemoveImage()
	s.commitAndRespond(w, r, nil)
}

type keysRequest struct {
	Keys string `json:"keys"`
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	var req keysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, errBadRequest)
		return
	}
	s.commitAndRespond(w, r, s.state.SetKeys(req.Keys))
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	id, err := s.gen.Generate(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"taskId": id})
}

func (s *Server) handleClearPrompt(w http.ResponseWriter, r *http.Request) {
	s.state.ClearPrompt()
	s.commitAndRespond(w, r, nil)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	err := s.state.ClearHistory()
	if err != nil && !errors.Is(err, state.ErrTaskActive) {
		log.Printf("[HTTP] Some media could not be released: %v", err)
		err = nil
	}
	s.commitAndRespond(w, r, err)
}

func (s *Server) handleDismissNotice(w http.ResponseWriter, r *http.Request) {
	s.state.DismissNotice()
	s.commitAndRespond(w, r, nil)
}

// handleVideo streams a saved video. With ?download=1 the browser saves it
// as veo-video-<task id>.mp4.
func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	path, err := s.media.VideoPath(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if r.URL.Query().Get("download") != "" {
		id := strings.TrimSuffix(name, ".mp4")
		w.Header().Set("Content-Disposition", `attachment; filename="veo-video-`+id+`.mp4"`)
	}
	w.Header().Set("Content-Type", "video/mp4")
	http.ServeFile(w, r, path)
}

func (s *Server) commitAndRespond(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.state.Commit(r.Context()); err != nil {
		log.Printf("[HTTP] Failed to persist state: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.state.Snapshot())
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, key := http.StatusInternalServerError, ""
	switch {
	case errors.Is(err, state.ErrEmptyPrompt):
		status, key = http.StatusBadRequest, "err_empty_prompt"
	case errors.Is(err, state.ErrNoAPIKeys):
		status, key = http.StatusBadRequest, "err_no_keys"
	case errors.Is(err, state.ErrTaskActive):
		status, key = http.StatusConflict, "err_task_active"
	case errors.Is(err, state.ErrInvalidAPIKey):
		status, key = http.StatusBadRequest, "err_invalid_key"
	case errors.Is(err, core.ErrUnsupportedOption):
		status, key = http.StatusBadRequest, "err_unsupported_option"
	case errors.Is(err, errImageType):
		status, key = http.StatusUnsupportedMediaType, "err_image_type"
	case errors.Is(err, errImageSize):
		status, key = http.StatusRequestEntityTooLarge, "err_image_size"
	case errors.Is(err, errBadRequest), errors.Is(err, media.ErrInvalidName):
		status, key = http.StatusBadRequest, "err_bad_request"
	}

	msg := err.Error()
	if key != "" {
		msg = s.loc.Get(s.lang(r), key)
	} else {
		log.Printf("[HTTP] %s %s failed: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

// lang picks the locale from ?lang=, then Accept-Language, then the default.
func (s *Server) lang(r *http.Request) string {
	if l := r.URL.Query().Get("lang"); l != "" {
		return l
	}
	if al := r.Header.Get("Accept-Language"); len(al) >= 2 {
		return strings.ToLower(al[:2])
	}
	return s.loc.DefaultLang()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] Failed to encode response: %v", err)
	}
}
