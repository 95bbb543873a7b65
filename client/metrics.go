package client

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ccclient",
		Name:      "requests_total",
		Help:      "Outbound API requests by method and status code.",
	},
	[]string{"method", "code"},
)

type metricsTransport struct {
	base http.RoundTripper
}

func newMetricsTransport(base http.RoundTripper) http.RoundTripper {
	return &metricsTransport{base: base}
}

func (t *metricsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)

	code := "error"
	if err == nil {
		code = strconv.Itoa(resp.StatusCode)
	}
	requestsTotal.WithLabelValues(req.Method, code).Inc()

	return resp, err
}
