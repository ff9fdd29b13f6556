// Package httpapi exposes the public site endpoints and the admin REST API.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	app "github.com/apex-authority/backoffice/internal/app"
	applicationssvc "github.com/apex-authority/backoffice/internal/app/services/applications"
	contactssvc "github.com/apex-authority/backoffice/internal/app/services/contacts"
	"github.com/apex-authority/backoffice/internal/app/storage"
	"github.com/apex-authority/backoffice/internal/domain/application"
	"github.com/apex-authority/backoffice/internal/domain/contact"
	"github.com/apex-authority/backoffice/internal/domain/content"
	"github.com/apex-authority/backoffice/internal/domain/settings"
	"github.com/apex-authority/backoffice/internal/logging"
	"github.com/apex-authority/backoffice/internal/metrics"
	"github.com/apex-authority/backoffice/internal/middleware"
)

// tabHeader carries the browser tab identifier so broadcasts skip the
// originating tab.
const tabHeader = "X-Tab-ID"

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
	log *logging.Logger
}

// NewHandler returns a router exposing the public and admin REST API. auth
// may be nil, in which case the admin routes are left unprotected (tests).
func NewHandler(application *app.Application, auth *middleware.AuthMiddleware, reg *metrics.Registry, log *logging.Logger) http.Handler {
	if log == nil {
		log = logging.NewDefault("httpapi")
	}
	h := &handler{app: application, log: log}

	r := mux.NewRouter()
	r.Use(middleware.MetricsMiddleware(reg))
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", reg.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/ws", h.websocket).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/settings", h.publicSettings).Methods(http.MethodGet)
	api.HandleFunc("/content", h.publicContent).Methods(http.MethodGet)
	api.HandleFunc("/payment-addresses", h.publicPaymentAddresses).Methods(http.MethodGet)
	api.HandleFunc("/applications", h.submitApplication).Methods(http.MethodPost)
	api.HandleFunc("/contacts", h.submitContact).Methods(http.MethodPost)
	api.HandleFunc("/licenses/{license_id}/verify", h.verifyLicense).Methods(http.MethodGet)

	admin := r.PathPrefix("/api/v1/admin").Subrouter()
	if auth != nil {
		admin.Use(auth.Handler)
	}
	admin.HandleFunc("/settings", h.adminSettings).Methods(http.MethodGet)
	admin.HandleFunc("/settings", h.updateSettings).Methods(http.MethodPut)
	admin.HandleFunc("/settings/refresh", h.refreshSettings).Methods(http.MethodPost)
	admin.HandleFunc("/applications", h.listApplications).Methods(http.MethodGet)
	admin.HandleFunc("/applications/{id}", h.getApplication).Methods(http.MethodGet)
	admin.HandleFunc("/applications/{id}/status", h.updateApplicationStatus).Methods(http.MethodPatch)
	admin.HandleFunc("/contacts", h.listContacts).Methods(http.MethodGet)
	admin.HandleFunc("/contacts/{id}/status", h.updateContactStatus).Methods(http.MethodPatch)
	admin.HandleFunc("/contacts/{id}", h.deleteContact).Methods(http.MethodDelete)
	admin.HandleFunc("/content", h.listContent).Methods(http.MethodGet)
	admin.HandleFunc("/content", h.createContent).Methods(http.MethodPost)
	admin.HandleFunc("/content/{id}", h.updateContent).Methods(http.MethodPut)
	admin.HandleFunc("/content/{id}", h.deleteContent).Methods(http.MethodDelete)
	admin.HandleFunc("/licenses", h.listLicenses).Methods(http.MethodGet)
	admin.HandleFunc("/payment-addresses", h.listPaymentAddresses).Methods(http.MethodGet)
	admin.HandleFunc("/payment-addresses", h.upsertPaymentAddress).Methods(http.MethodPut)
	admin.HandleFunc("/payment-addresses/{id}", h.deletePaymentAddress).Methods(http.MethodDelete)
	admin.HandleFunc("/audit", h.listAudit).Methods(http.MethodGet)
	admin.HandleFunc("/export", h.exportIndex).Methods(http.MethodGet)
	admin.HandleFunc("/export/{table}", h.exportTable).Methods(http.MethodGet)

	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"settings_loaded": h.app.Settings.Loaded(),
	})
}

func (h *handler) publicSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"settings": h.app.Settings.Current(),
		"loaded":   h.app.Settings.Loaded(),
	})
}

func (h *handler) publicContent(w http.ResponseWriter, r *http.Request) {
	blocks, err := h.app.Content.Published(r.Context(), r.URL.Query().Get("section"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, blocks)
}

func (h *handler) publicPaymentAddresses(w http.ResponseWriter, r *http.Request) {
	addrs, err := h.app.Payments.List(r.Context(), true)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, addrs)
}

func (h *handler) submitApplication(w http.ResponseWriter, r *http.Request) {
	var input applicationssvc.SubmitInput
	if err := decodeJSON(r.Body, &input); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	apl, err := h.app.Applications.Submit(r.Context(), input)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, apl)
}

func (h *handler) submitContact(w http.ResponseWriter, r *http.Request) {
	var input contactssvc.SubmitInput
	if err := decodeJSON(r.Body, &input); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	msg, err := h.app.Contacts.Submit(r.Context(), input)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *handler) verifyLicense(w http.ResponseWriter, r *http.Request) {
	licenseID := mux.Vars(r)["license_id"]
	lic, err := h.app.Licenses.Verify(r.Context(), licenseID)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "license": lic})
}

func (h *handler) adminSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"settings": h.app.Settings.Current(),
		"loaded":   h.app.Settings.Loaded(),
	})
}

func (h *handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	var patch settings.Patch
	if err := decodeJSON(r.Body, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	site, err := h.app.Settings.Update(r.Context(), patch, r.Header.Get(tabHeader))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, site)
}

func (h *handler) refreshSettings(w http.ResponseWriter, r *http.Request) {
	h.app.Settings.Invalidate()
	site, changed, err := h.app.Settings.Refresh(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": site, "changed": changed})
}

func (h *handler) listApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := h.app.Applications.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, apps)
}

func (h *handler) getApplication(w http.ResponseWriter, r *http.Request) {
	apl, err := h.app.Applications.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, apl)
}

func (h *handler) updateApplicationStatus(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Status string `json:"status"`
		Notes  string `json:"notes"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	next, err := application.ParseStatus(payload.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	apl, err := h.app.Applications.UpdateStatus(r.Context(), mux.Vars(r)["id"], next, payload.Notes, h.actor(r), r.Header.Get(tabHeader))
	if err != nil {
		writeError(w, statusFor(err, http.StatusConflict), err)
		return
	}
	writeJSON(w, http.StatusOK, apl)
}

func (h *handler) listContacts(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.app.Contacts.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *handler) updateContactStatus(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	next, err := contact.ParseStatus(payload.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	msg, err := h.app.Contacts.UpdateStatus(r.Context(), mux.Vars(r)["id"], next, h.actor(r), r.Header.Get(tabHeader))
	if err != nil {
		writeError(w, statusFor(err, http.StatusConflict), err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *handler) deleteContact(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Contacts.Delete(r.Context(), mux.Vars(r)["id"], h.actor(r), r.Header.Get(tabHeader)); err != nil {
		writeError(w, statusFor(err, http.StatusBadRequest), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listContent(w http.ResponseWriter, r *http.Request) {
	blocks, err := h.app.Content.List(r.Context(), r.URL.Query().Get("section"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, blocks)
}

func (h *handler) createContent(w http.ResponseWriter, r *http.Request) {
	var blk content.Block
	if err := decodeJSON(r.Body, &blk); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := h.app.Content.Create(r.Context(), blk, h.actor(r), r.Header.Get(tabHeader))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) updateContent(w http.ResponseWriter, r *http.Request) {
	var blk content.Block
	if err := decodeJSON(r.Body, &blk); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	blk.ID = mux.Vars(r)["id"]

	updated, err := h.app.Content.Update(r.Context(), blk, h.actor(r), r.Header.Get(tabHeader))
	if err != nil {
		writeError(w, statusFor(err, http.StatusBadRequest), err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) deleteContent(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Content.Delete(r.Context(), mux.Vars(r)["id"], h.actor(r), r.Header.Get(tabHeader)); err != nil {
		writeError(w, statusFor(err, http.StatusBadRequest), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listLicenses(w http.ResponseWriter, r *http.Request) {
	lics, err := h.app.Licenses.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, lics)
}

func (h *handler) listPaymentAddresses(w http.ResponseWriter, r *http.Request) {
	addrs, err := h.app.Payments.List(r.Context(), false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, addrs)
}

func (h *handler) upsertPaymentAddress(w http.ResponseWriter, r *http.Request) {
	var addr storage.PaymentAddress
	if err := decodeJSON(r.Body, &addr); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	saved, err := h.app.Payments.Upsert(r.Context(), addr, h.actor(r), r.Header.Get(tabHeader))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *handler) deletePaymentAddress(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Payments.Delete(r.Context(), mux.Vars(r)["id"], h.actor(r), r.Header.Get(tabHeader)); err != nil {
		writeError(w, statusFor(err, http.StatusBadRequest), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listAudit(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = parsed
	}

	entries, err := h.app.Audit.List(r.Context(), r.URL.Query().Get("table"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handler) exportIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tables": h.app.Export.Tables()})
}

func (h *handler) exportTable(w http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]
	csvData, rows, err := h.app.Export.Table(r.Context(), table)
	if err != nil {
		writeError(w, statusFor(err, http.StatusBadRequest), err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", table+".csv"))
	w.Header().Set("X-Row-Count", strconv.Itoa(rows))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(csvData)
}

// actor names the admin performing a change for the audit trail.
func (h *handler) actor(r *http.Request) string {
	if id := middleware.GetUserID(r.Context()); id != "" {
		return id
	}
	return "admin"
}

// statusFor maps store-level not-found errors to 404 and returns fallback
// for everything else.
func statusFor(err error, fallback int) int {
	if errors.Is(err, storage.ErrNotFound) {
		return http.StatusNotFound
	}
	return fallback
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
