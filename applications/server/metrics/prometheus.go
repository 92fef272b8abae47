package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/donmikel/mailattach/applications/server/interfaces"
)

const defaultNamespace = "mailattach"

// PrometheusObserver exports upload and request metrics to Prometheus.
type PrometheusObserver struct {
	operationDuration *prometheus.HistogramVec
	operationErrors   *prometheus.CounterVec
	uploadedBytes     prometheus.Counter
	requests          *prometheus.CounterVec
}

// NewPrometheusObserver registers the collectors on reg, reusing collectors that
// are already registered under the same name.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	o := &PrometheusObserver{
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of multipart parsing and attachment uploads.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		operationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Count of failed parse and upload operations.",
		}, []string{"operation"}),
		uploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Cumulative attachment bytes written to object storage.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Inbound mail requests by response code.",
		}, []string{"code"}),
	}

	if err := register(reg, o.operationDuration, func(c prometheus.Collector) bool {
		existing, ok := c.(*prometheus.HistogramVec)
		if ok {
			o.operationDuration = existing
		}
		return ok
	}); err != nil {
		return nil, err
	}
	if err := register(reg, o.operationErrors, func(c prometheus.Collector) bool {
		existing, ok := c.(*prometheus.CounterVec)
		if ok {
			o.operationErrors = existing
		}
		return ok
	}); err != nil {
		return nil, err
	}
	if err := register(reg, o.uploadedBytes, func(c prometheus.Collector) bool {
		existing, ok := c.(prometheus.Counter)
		if ok {
			o.uploadedBytes = existing
		}
		return ok
	}); err != nil {
		return nil, err
	}
	if err := register(reg, o.requests, func(c prometheus.Collector) bool {
		existing, ok := c.(*prometheus.CounterVec)
		if ok {
			o.requests = existing
		}
		return ok
	}); err != nil {
		return nil, err
	}

	return o, nil
}

func register(reg prometheus.Registerer, c prometheus.Collector, reuse func(prometheus.Collector) bool) error {
	err := reg.Register(c)
	if err == nil {
		return nil
	}
	if are, ok := err.(prometheus.AlreadyRegisteredError); ok && reuse(are.ExistingCollector) {
		return nil
	}
	return fmt.Errorf("can't register collector: %w", err)
}

func (o *PrometheusObserver) RecordUpload(duration time.Duration, sizeBytes int64, err error) {
	if o == nil {
		return
	}
	o.operationDuration.WithLabelValues("upload").Observe(duration.Seconds())
	if err != nil {
		o.operationErrors.WithLabelValues("upload").Inc()
		return
	}
	o.uploadedBytes.Add(float64(sizeBytes))
}

func (o *PrometheusObserver) RecordParse(duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.operationDuration.WithLabelValues("parse").Observe(duration.Seconds())
	if err != nil {
		o.operationErrors.WithLabelValues("parse").Inc()
	}
}

func (o *PrometheusObserver) RecordRequest(code int) {
	if o == nil {
		return
	}
	o.requests.WithLabelValues(strconv.Itoa(code)).Inc()
}

type nopObserver struct{}

// Nop returns an observer that discards everything.
func Nop() interfaces.Observer { return nopObserver{} }

func (nopObserver) RecordUpload(time.Duration, int64, error) {}

func (nopObserver) RecordParse(time.Duration, error) {}

func (nopObserver) RecordRequest(int) {}
