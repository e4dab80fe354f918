package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"

	"github.com/TaiBIF/camera-trap/ingest"
	"github.com/TaiBIF/camera-trap/metrics"
)

type APIHandlerOptions struct {
	ServerName string
	Prometheus bool
	// WebhookSecret guards the notification endpoint when set.
	WebhookSecret string
}

type apiHandler struct {
	*httprouter.Router
	opts      APIHandlerOptions
	serverCtx context.Context
	runner    ingest.Runner
}

func NewHandler(serverCtx context.Context, opts APIHandlerOptions, runner ingest.Runner) http.Handler {
	router := &apiHandler{httprouter.New(), opts, serverCtx, runner}

	router.HandlerFunc("GET", "/_healthz", router.healthcheck)
	if opts.Prometheus {
		router.Handler("GET", "/metrics", metrics.ScrapeHandler())
	}

	notifyHandler := metrics.ObservedHandlerFunc("object_created", router.objectCreated)
	if opts.WebhookSecret != "" {
		notifyHandler = authorized(opts.WebhookSecret, notifyHandler)
	}
	notifyHandler = logger(notifyHandler)
	router.Handler("POST", "/webhook/storage/object-created", notifyHandler)

	return router
}

func logger(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		handler.ServeHTTP(w, r)
		glog.Infof("API request handled. method=%s url=%q proto=%s duration=%v", r.Method, r.URL, r.Proto, time.Since(start))
	})
}

func (h *apiHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if h.opts.ServerName != "" {
		rw.Header().Set("Server", h.opts.ServerName)
	}
	h.Router.ServeHTTP(rw, r)
}

func (h *apiHandler) healthcheck(rw http.ResponseWriter, r *http.Request) {
	rw.WriteHeader(http.StatusOK)
}

// objectCreated runs one ingest job for a posted bucket notification. The
// response is always the uniform success acknowledgment, whatever happens
// inside the job, so the notifying system never redelivers.
func (h *apiHandler) objectCreated(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(r, rw, http.StatusBadRequest, err)
		return
	}
	ack := h.runner.HandleObjectCreated(r.Context(), body)
	respondJson(rw, ack.StatusCode, ack)
}
