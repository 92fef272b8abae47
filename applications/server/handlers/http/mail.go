package http

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/donmikel/mailattach/applications/server"
	"github.com/donmikel/mailattach/applications/server/config"
	"github.com/donmikel/mailattach/applications/server/interfaces"
)

// MailHandler accepts relay POSTs carrying an email as multipart/form-data and
// stores its attachments.
//
// Once the method and key checks pass the handler always answers 200: the relay
// redelivers on any other status, and some attachments of a failed batch may
// already be stored. Upload failures are visible in the log only.
func MailHandler(svc server.AttachmentService, conf config.Api, observer interfaces.Observer, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respond(w, observer, http.StatusMethodNotAllowed)
			return
		}

		if !validKey(r.URL.Query().Get("key"), conf.Key) {
			level.Warn(logger).Log("msg", "invalid api key", "remote_addr", r.RemoteAddr)
			respond(w, observer, http.StatusForbidden)
			return
		}

		body := r.Body
		if conf.MaxBodyBytes > 0 {
			body = http.MaxBytesReader(w, r.Body, conf.MaxBodyBytes)
		}

		// Uploads are not tied to the relay connection.
		ctx := context.WithoutCancel(r.Context())

		batch, err := svc.Upload(ctx, r.Header.Get("Content-Type"), body)
		if err != nil {
			level.Error(logger).Log("msg", "upload failed",
				"namespace", batch.Namespace,
				"err", err,
			)
			respond(w, observer, http.StatusOK)
			return
		}

		level.Info(logger).Log("msg", "mail processed",
			"namespace", batch.Namespace,
			"attachments", len(batch.Objects),
		)
		respond(w, observer, http.StatusOK)
	}
}

func validKey(got, want string) bool {
	if want == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func respond(w http.ResponseWriter, observer interfaces.Observer, status int) {
	observer.RecordRequest(status)
	w.WriteHeader(status)
}
