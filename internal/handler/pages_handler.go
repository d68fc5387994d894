package handler

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

// PagesHandler serves the server-rendered HTML pages. The pages drive the
// JSON API from the browser and keep tokens in localStorage.
type PagesHandler struct {
	templates *template.Template
}

func NewPagesHandler() (*PagesHandler, error) {
	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &PagesHandler{templates: templates}, nil
}

func (h *PagesHandler) Index(w http.ResponseWriter, r *http.Request) {
	h.render(w, "index.html")
}

func (h *PagesHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.render(w, "login.html")
}

func (h *PagesHandler) Register(w http.ResponseWriter, r *http.Request) {
	h.render(w, "register.html")
}

func (h *PagesHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	h.render(w, "dashboard.html")
}

func (h *PagesHandler) render(w http.ResponseWriter, name string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, nil); err != nil {
		slog.Error("render page failed", "template", name, "error", err)
	}
}
