package handlers

import "github.com/prometheus/client_golang/prometheus"

type HandlerMetrics struct {
	Webhooks *prometheus.CounterVec
}

func (m *HandlerMetrics) IncWebhook(provider, outcome string) {
	if m == nil || m.Webhooks == nil {
		return
	}

	m.Webhooks.WithLabelValues(provider, outcome).Inc()
}
