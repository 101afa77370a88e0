package handlers

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/kozaktomas/blinkpay/internal/app"
	"github.com/kozaktomas/blinkpay/internal/config"
	"github.com/kozaktomas/blinkpay/internal/constants"
	"github.com/kozaktomas/blinkpay/internal/web/static"
)

// PagesHandler renders the browser pages
type PagesHandler struct {
	rt        *app.Runtime
	pages     map[string]*template.Template
	config    *ConfigHandler
	dashboard *DashboardHandler
}

// PageData is handed to every page template.
type PageData struct {
	Title     string
	Page      string
	Network   config.Network
	Config    ConfigResponse
	Dashboard *DashboardResponse
}

// NewPagesHandler parses the embedded templates.
func NewPagesHandler(rt *app.Runtime) (*PagesHandler, error) {
	pages, err := static.ParsePages()
	if err != nil {
		return nil, err
	}
	return &PagesHandler{
		rt:        rt,
		pages:     pages,
		config:    NewConfigHandler(rt),
		dashboard: NewDashboardHandler(rt),
	}, nil
}

func (h *PagesHandler) data(page, title string) PageData {
	return PageData{
		Title:   title,
		Page:    page,
		Network: h.rt.Network,
		Config:  h.config.response(),
	}
}

func (h *PagesHandler) render(w http.ResponseWriter, status int, page string, data PageData) {
	var buf bytes.Buffer
	if err := h.pages[page].Execute(&buf, data); err != nil {
		h.rt.Log.Error().Err(err).Str("page", page).Msg("failed to render page")
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

// Index renders the landing page
func (h *PagesHandler) Index(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "index", h.data("index", "Pay with a blink"))
}

// Enroll renders the enrollment wizard
func (h *PagesHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "enroll", h.data("enroll", "Enroll"))
}

// Scan renders the face scan wizard
func (h *PagesHandler) Scan(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "scan", h.data("scan", "Scan to pay"))
}

// Payment renders the payment wizard. The payment itself is created by the
// scan page, so a request without a flow id goes back to scanning.
func (h *PagesHandler) Payment(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("id") == "" {
		http.Redirect(w, r, "/scan", http.StatusSeeOther)
		return
	}
	h.render(w, http.StatusOK, "payment", h.data("payment", "Send payment"))
}

// Dashboard renders the payment history
func (h *PagesHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	resp, err := h.dashboard.load(r, dashboardQuery{Limit: constants.DefaultTransactionPageSize})
	if err != nil {
		h.rt.Log.Error().Err(err).Msg("failed to load dashboard")
		http.Error(w, "failed to load transactions", http.StatusInternalServerError)
		return
	}
	data := h.data("dashboard", "Dashboard")
	data.Dashboard = resp
	h.render(w, http.StatusOK, "dashboard", data)
}

// NotFound renders the 404 page
func (h *PagesHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.rt.Log.Warn().Str("path", sanitizeForLog(r.URL.Path)).Msg("page not found")
	h.render(w, http.StatusNotFound, "notfound", h.data("notfound", "Page not found"))
}
