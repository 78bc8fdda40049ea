package handlers

import (
	"context"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/apex/log"
	"github.com/gorilla/mux"
	"github.com/tidwall/gjson"

	"github.com/secnex/crm-gateway/crm"
	"github.com/secnex/crm-gateway/metrics"
	"github.com/secnex/crm-gateway/models"
)

// DefaultMaxUploadBytes caps inbound bodies when Options leaves it unset.
const DefaultMaxUploadBytes = 50 << 20

// Gateway is the CRM side of every handler. *crm.Client implements it.
type Gateway interface {
	Forward(ctx context.Context, route crm.Route, params map[string]string, body []byte) (*crm.Result, error)
	UploadAttachments(ctx context.Context, upload crm.AttachmentUpload) ([]crm.AttachmentResult, error)
}

// AttachmentRecorder stores per-file outcomes of attachment batches.
type AttachmentRecorder interface {
	RecordAttachments(ctx context.Context, records []models.AttachmentRecord) error
}

type Options struct {
	MaxUploadBytes int64
	// Recorder is optional.
	Recorder AttachmentRecorder
}

type Handler struct {
	gateway        Gateway
	recorder       AttachmentRecorder
	maxUploadBytes int64
}

func NewRouter(gateway Gateway, opts Options) http.Handler {
	h := &Handler{
		gateway:        gateway,
		recorder:       opts.Recorder,
		maxUploadBytes: opts.MaxUploadBytes,
	}
	if h.maxUploadBytes <= 0 {
		h.maxUploadBytes = DefaultMaxUploadBytes
	}

	r := mux.NewRouter()

	r.HandleFunc("/tipoDoc", h.DocumentTypes).Methods("GET")
	r.HandleFunc("/cliente/{documento}", h.ClientByDocument).Methods("GET")
	r.HandleFunc("/contrato/{documento}", h.ContractByDocument).Methods("GET")
	r.HandleFunc("/motivo/{tipo}", h.Reasons).Methods("GET")
	r.HandleFunc("/submotivo/{tipo}/{motivo}", h.SubReasons).Methods("GET")
	r.HandleFunc("/adjunto", h.Attachments).Methods("POST")
	r.HandleFunc("/RegistroForm", h.CaseForm).Methods("POST")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	return withCORS(withRequestLog(r))
}

func (h *Handler) DocumentTypes(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, crm.RouteDocumentTypes, nil, nil)
}

func (h *Handler) ClientByDocument(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, crm.RouteClientByDocument, mux.Vars(r), nil)
}

func (h *Handler) ContractByDocument(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, crm.RouteContractByDocument, mux.Vars(r), nil)
}

func (h *Handler) Reasons(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, crm.RouteReasons, mux.Vars(r), nil)
}

func (h *Handler) SubReasons(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, crm.RouteSubReasons, mux.Vars(r), nil)
}

// CaseForm forwards the JSON body verbatim. An empty body, or one declared as
// anything other than JSON, is sent as {}.
func (h *Handler) CaseForm(w http.ResponseWriter, r *http.Request) {
	if !isJSON(r.Header.Get("Content-Type")) {
		log.Debugf("case form from %s is not JSON, forwarding empty object", r.RemoteAddr)
		h.forward(w, r, crm.RouteCaseForm, nil, []byte("{}"))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUploadBytes))
	if err != nil {
		log.WithError(err).Warnf("failed to read case form from %s", r.RemoteAddr)
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Message: "invalid request body"})
		return
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	if !gjson.ValidBytes(body) {
		log.Warnf("invalid case form JSON from %s", r.RemoteAddr)
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Message: "invalid JSON body"})
		return
	}

	h.forward(w, r, crm.RouteCaseForm, nil, body)
}

// isJSON reports whether contentType names a JSON body. A missing header is
// treated as JSON.
func isJSON(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func (h *Handler) forward(w http.ResponseWriter, r *http.Request, route crm.Route, params map[string]string, body []byte) {
	log.Debugf("forwarding %s request from %s", route.Name, r.RemoteAddr)

	res, err := h.gateway.Forward(r.Context(), route, params, body)
	if err != nil {
		log.WithError(err).Errorf("failed to get %s", route.Name)
		writeError(w, err)
		return
	}

	contentType := res.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Body)
}
