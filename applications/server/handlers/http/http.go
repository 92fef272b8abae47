package http

import (
	"net/http"

	"github.com/go-kit/log"
	"github.com/gorilla/mux"

	"github.com/donmikel/mailattach/applications/server"
	"github.com/donmikel/mailattach/applications/server/config"
	"github.com/donmikel/mailattach/applications/server/interfaces"
)

func NewRouter(svc server.AttachmentService, conf config.Api, observer interfaces.Observer, metricsHandler http.Handler, logger log.Logger) http.Handler {
	r := mux.NewRouter()
	// No method matcher: the mail handler answers 405 itself.
	r.Handle(conf.Path, MailHandler(svc, conf, observer, logger))
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}
	return r
}

func NewHTTPServer(conf config.Api, svc server.AttachmentService, observer interfaces.Observer, metricsHandler http.Handler, logger log.Logger) *http.Server {
	mux := NewRouter(svc, conf, observer, metricsHandler, logger)
	return &http.Server{
		Addr:    conf.HTTPAddr,
		Handler: mux,
	}
}
