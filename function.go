// Package mailattach exposes the attachment upload endpoint as a Cloud
// Function. Configuration comes from the BUCKET, API_KEY and STORAGE_BACKEND
// environment variables and is read once per instance, on the first request.
package mailattach

import (
	"context"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/donmikel/mailattach/applications/server/adapters"
	"github.com/donmikel/mailattach/applications/server/config"
	handlers "github.com/donmikel/mailattach/applications/server/handlers/http"
	"github.com/donmikel/mailattach/applications/server/metrics"
	"github.com/donmikel/mailattach/applications/server/services"
)

const functionName = "UploadRma"

var (
	bootstrapOnce sync.Once
	handler       http.Handler
)

func init() {
	functions.HTTP(functionName, UploadRma)
}

// UploadRma is the HTTP entry point of the function.
func UploadRma(w http.ResponseWriter, r *http.Request) {
	bootstrapOnce.Do(func() {
		handler = bootstrap()
	})
	handler.ServeHTTP(w, r)
}

func bootstrap() http.Handler {
	var logger log.Logger
	{
		logger = log.NewJSONLogger(log.NewSyncWriter(os.Stdout))
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		logger = log.With(logger, "function", functionName)
	}

	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		level.Error(logger).Log("msg", "config validation failed", "err", err)
		return unavailable()
	}

	storage, _, err := adapters.NewStorage(context.Background(), cfg.Storage, logger)
	if err != nil {
		level.Error(logger).Log("msg", "error creating storage", "err", err)
		return unavailable()
	}

	svc := services.NewService(storage, logger)

	return handlers.MailHandler(svc, cfg.API, metrics.Nop(), logger)
}

// unavailable answers every request with 500 so a misconfigured deployment is
// retried by the relay instead of silently dropping mail.
func unavailable() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
}
