package metrics

import "github.com/prometheus/client_golang/prometheus"

// CRMMetrics exposes counters/histograms for lead capture, chat and payments.
type CRMMetrics struct {
	leadsTotal           *prometheus.CounterVec
	patientMessagesTotal *prometheus.CounterVec
	chatTurnsTotal       *prometheus.CounterVec
	escalationHints      *prometheus.CounterVec
	llmLatency           *prometheus.HistogramVec
	webhookEventsTotal   *prometheus.CounterVec
	webhookLatency       *prometheus.HistogramVec
	rateLimitedTotal     *prometheus.CounterVec
	storeFailuresTotal   *prometheus.CounterVec
}

func NewCRMMetrics(reg prometheus.Registerer) *CRMMetrics {
	m := &CRMMetrics{
		leadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wellness",
			Subsystem: "crm",
			Name:      "leads_total",
			Help:      "Lead submissions by source and outcome",
		}, []string{"source", "outcome"}),
		patientMessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wellness",
			Subsystem: "crm",
			Name:      "patient_messages_total",
			Help:      "Patient messages by origin and outcome",
		}, []string{"origin", "outcome"}),
		chatTurnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wellness",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Chat turns by mode and how they were answered",
		}, []string{"mode", "outcome"}),
		escalationHints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wellness",
			Subsystem: "chat",
			Name:      "escalation_hints_total",
			Help:      "Keyword pre-classification of patient messages",
		}, []string{"category"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wellness",
			Subsystem: "chat",
			Name:      "llm_latency_seconds",
			Help:      "Latency of chat completion calls",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}, []string{"provider", "status"}),
		webhookEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wellness",
			Subsystem: "payments",
			Name:      "webhook_events_total",
			Help:      "Payment webhook deliveries by event type and result",
		}, []string{"event_type", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wellness",
			Subsystem: "payments",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of payment webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
		rateLimitedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wellness",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by a rate limit policy",
		}, []string{"policy"}),
		storeFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wellness",
			Subsystem: "store",
			Name:      "failures_total",
			Help:      "Datastore failures absorbed by degraded repositories",
		}, []string{"entity", "op"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.leadsTotal,
		m.patientMessagesTotal,
		m.chatTurnsTotal,
		m.escalationHints,
		m.llmLatency,
		m.webhookEventsTotal,
		m.webhookLatency,
		m.rateLimitedTotal,
		m.storeFailuresTotal,
	)
	return m
}

func (m *CRMMetrics) ObserveLead(source, outcome string) {
	if m == nil {
		return
	}
	m.leadsTotal.WithLabelValues(source, outcome).Inc()
}

func (m *CRMMetrics) ObservePatientMessage(origin, outcome string) {
	if m == nil {
		return
	}
	m.patientMessagesTotal.WithLabelValues(origin, outcome).Inc()
}

func (m *CRMMetrics) ObserveChatTurn(mode, outcome string) {
	if m == nil {
		return
	}
	m.chatTurnsTotal.WithLabelValues(mode, outcome).Inc()
}

func (m *CRMMetrics) ObserveEscalationHint(category string) {
	if m == nil {
		return
	}
	m.escalationHints.WithLabelValues(category).Inc()
}

func (m *CRMMetrics) ObserveLLMLatency(provider, status string, seconds float64) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(provider, status).Observe(seconds)
}

func (m *CRMMetrics) ObserveWebhook(eventType, status string) {
	if m == nil {
		return
	}
	m.webhookEventsTotal.WithLabelValues(eventType, status).Inc()
}

func (m *CRMMetrics) ObserveWebhookLatency(eventType string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(eventType).Observe(seconds)
}

func (m *CRMMetrics) ObserveRateLimited(policy string) {
	if m == nil {
		return
	}
	m.rateLimitedTotal.WithLabelValues(policy).Inc()
}

func (m *CRMMetrics) ObserveStoreFailure(entity, op string) {
	if m == nil {
		return
	}
	m.storeFailuresTotal.WithLabelValues(entity, op).Inc()
}
