package metrics

import "github.com/prometheus/client_golang/prometheus"

// DomainMetrics counts payment confirmation and voucher lifecycle outcomes.
type DomainMetrics struct {
	webhookEvents   *prometheus.CounterVec
	orders          *prometheus.CounterVec
	failedLines     *prometheus.CounterVec
	vouchersIssued  prometheus.Counter
	redemptions     *prometheus.CounterVec
	vouchersExpired prometheus.Counter
}

// NewDomainMetrics registers the domain counters. A nil registerer yields a
// no-op recorder.
func NewDomainMetrics(reg prometheus.Registerer) *DomainMetrics {
	if reg == nil {
		return &DomainMetrics{}
	}
	m := &DomainMetrics{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pawpass_webhook_events_total",
			Help: "Payment provider webhook deliveries by outcome.",
		}, []string{"outcome"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pawpass_orders_materialized_total",
			Help: "Materializer invocations by result (created or duplicate).",
		}, []string{"result"}),
		failedLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pawpass_materialization_failed_lines_total",
			Help: "Cart lines that could not be materialized, by reason.",
		}, []string{"reason"}),
		vouchersIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pawpass_vouchers_issued_total",
			Help: "Vouchers issued.",
		}),
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pawpass_redemptions_total",
			Help: "Redemption attempts by outcome.",
		}, []string{"outcome"}),
		vouchersExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pawpass_vouchers_expired_total",
			Help: "Vouchers moved to EXPIRED by the expiry sweep.",
		}),
	}
	reg.MustRegister(m.webhookEvents, m.orders, m.failedLines, m.vouchersIssued, m.redemptions, m.vouchersExpired)
	return m
}

func (m *DomainMetrics) WebhookEvent(outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *DomainMetrics) OrderMaterialized(created bool) {
	if m == nil || m.orders == nil {
		return
	}
	result := "duplicate"
	if created {
		result = "created"
	}
	m.orders.WithLabelValues(result).Inc()
}

func (m *DomainMetrics) FailedLine(reason string) {
	if m == nil || m.failedLines == nil {
		return
	}
	m.failedLines.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *DomainMetrics) VouchersIssued(n int) {
	if m == nil || m.vouchersIssued == nil || n <= 0 {
		return
	}
	m.vouchersIssued.Add(float64(n))
}

func (m *DomainMetrics) Redemption(outcome string) {
	if m == nil || m.redemptions == nil {
		return
	}
	m.redemptions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *DomainMetrics) VouchersExpired(n int64) {
	if m == nil || m.vouchersExpired == nil || n <= 0 {
		return
	}
	m.vouchersExpired.Add(float64(n))
}
