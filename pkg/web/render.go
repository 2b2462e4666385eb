package web

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/csrf"
	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/core/notify"
	"github.com/jakechorley/volunteer-portal/pkg/core/services"
	"github.com/jakechorley/volunteer-portal/pkg/core/validation"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{
	"landing.html",
	"register.html",
	"login.html",
	"dashboard.html",
	"activities.html",
	"opportunities.html",
	"profile.html",
}

// Raw HTML in descriptions is escaped: WithUnsafe is not set
var markdown = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

var funcMap = template.FuncMap{
	"markdown": func(md string) template.HTML {
		var buf bytes.Buffer
		if err := markdown.Convert([]byte(md), &buf); err != nil {
			return template.HTML(template.HTMLEscapeString(md))
		}
		return template.HTML(buf.String())
	},
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("Jan 2, 2006")
	},
	"dateTime": func(t time.Time) string {
		return t.Format("Jan 2, 2006 at 3:04 PM")
	},
	"availabilityLabel": func(value string) string {
		for _, opt := range model.AvailabilityOptions {
			if string(opt.Value) == value {
				return opt.Label
			}
		}
		return value
	},
	"hasSkill": func(skills []string, skill string) bool {
		return slices.Contains(skills, skill)
	},
	"isDestructive": func(n notify.Notification) bool {
		return n.Variant == notify.Destructive
	},
}

type pageSet struct {
	templates map[string]*template.Template
}

func loadPages() (*pageSet, error) {
	set := &pageSet{templates: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		tpl, err := template.New("layout.html").Funcs(funcMap).ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		set.templates[name] = tpl
	}
	return set, nil
}

type navLink struct {
	Href   string
	Label  string
	Active bool
}

// pageData is what the layout renders around every page
type pageData struct {
	Title         string
	Identity      *model.Identity
	Nav           []navLink
	Notifications []notify.Notification
	CSRFField     template.HTML
	Data          any
}

// formData re-renders a submitted form with its field errors
type formData struct {
	Values         any
	Errors         validation.Errors
	Availability   []model.AvailabilityOption
	Skills         []string
	ReadOnlyEmail  string
	PendingConfirm bool
}

func newFormData(values any, errs validation.Errors) formData {
	return formData{
		Values:       values,
		Errors:       errs,
		Availability: model.AvailabilityOptions,
		Skills:       model.SkillOptions,
	}
}

func navFor(ident *model.Identity, path string) []navLink {
	links := []navLink{
		{Href: "/", Label: "Home"},
		{Href: "/#about", Label: "About"},
		{Href: "/#activities", Label: "Activities"},
	}
	if ident != nil {
		links = []navLink{
			{Href: "/dashboard", Label: "Dashboard"},
			{Href: "/activities", Label: "My Activities"},
			{Href: "/opportunities", Label: "Opportunities"},
		}
	}
	for i := range links {
		links[i].Active = links[i].Href == path
	}
	return links
}

// render draws a page inside the layout and drains the session's pending
// notifications into it
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	tpl, ok := s.pages.templates[name]
	if !ok {
		s.internalError(w, r, fmt.Errorf("unknown page %s", name))
		return
	}

	ident := identityFrom(r)
	ws := workspaceFrom(r)
	if ws != nil {
		ident = ws.session.Current()
	}

	page := pageData{
		Title:     title,
		Identity:  ident,
		Nav:       navFor(ident, r.URL.Path),
		CSRFField: csrf.TemplateField(r),
		Data:      data,
	}
	if ws != nil {
		page.Notifications = ws.notes.Drain()
	}

	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, "layout.html", page); err != nil {
		if ws != nil {
			// keep the toasts for the next page
			for _, n := range page.Notifications {
				ws.notes.Push(n)
			}
		}
		s.internalError(w, r, fmt.Errorf("failed to render %s: %w", name, err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// internalError logs the real error and returns a generic message
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("Internal error", zap.String("path", r.URL.Path), zap.Error(err))
	if isAPIRequest(r) {
		writeJSON(w, http.StatusInternalServerError, errorResponse(services.GenericFailure))
		return
	}
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// apiResponse is the envelope of every JSON API reply
type apiResponse struct {
	Success bool              `json:"success"`
	Data    any               `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Errors  validation.Errors `json:"errors,omitempty"`
}

func successResponse(data any) apiResponse {
	return apiResponse{Success: true, Data: data}
}

func errorResponse(message string) apiResponse {
	return apiResponse{Success: false, Error: message}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
