package web

import (
	"context"
	"embed"
	"html/template"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"veoGenerator/internal/i18n"
	"veoGenerator/internal/media"
	"veoGenerator/internal/state"
)

//go:embed templates/index.html
var templates embed.FS

//go:embed static
var static embed.FS

// Generator starts a generation from the current settings.
type Generator interface {
	Generate(ctx context.Context) (string, error)
}

type Server struct {
	state  *state.State
	gen    Generator
	media  *media.Store
	loc    *i18n.Localizer
	hub    *Hub
	page   *template.Template
	router *mux.Router
}

func NewServer(st *state.State, gen Generator, store *media.Store, loc *i18n.Localizer) *Server {
	s := &Server{
		state: st,
		gen:   gen,
		media: store,
		loc:   loc,
		hub:   NewHub(),
		page:  template.Must(template.ParseFS(templates, "templates/index.html")),
	}
	st.OnChange(s.hub.Broadcast)

	r := mux.NewRouter()
	r.Use(logRequests)

	r.HandleFunc("/", s.handleIndex).Methods("GET")
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/ws", s.handleWebSocket)
	r.PathPrefix("/static/").Handler(http.FileServer(http.FS(static))).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.handleState).Methods("GET")
	api.HandleFunc("/settings", s.handleSettings).Methods("PUT")
	api.HandleFunc("/image", s.handleUploadImage).Methods("POST")
	api.HandleFunc("/image", s.handleRemoveImage).Methods("DELETE")
	api.HandleFunc("/keys", s.handleKeys).Methods("PUT")
	api.HandleFunc("/generate", s.handleGenerate).Methods("POST")
	api.HandleFunc("/prompt/clear", s.handleClearPrompt).Methods("POST")
	api.HandleFunc("/history", s.handleClearHistory).Methods("DELETE")
	api.HandleFunc("/notice/dismiss", s.handleDismissNotice).Methods("POST")

	r.HandleFunc(media.VideoRoute+"{name}", s.handleVideo).Methods("GET")

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Close disconnects websocket clients.
func (s *Server) Close() {
	s.hub.Close()
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			log.Printf("[HTTP] %s %s", r.Method, r.URL.Path)
		}
		next.ServeHTTP(w, r)
	})
}
