package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
)

// Domain counters, registered once at package init. Services increment these
// directly; the HTTP request metrics live in the gin bridge (prometheus.go).
var (
	PaymentOrdersCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "turnstile_payment_orders_created_total",
		Help: "Payment orders created with the gateway.",
	})

	PaymentCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "turnstile_payment_completed_total",
		Help: "Payments transitioned to completed, partitioned by trigger source.",
	}, []string{"trigger"})

	NotificationRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "turnstile_notification_rejected_total",
		Help: "Gateway notifications rejected before any state change.",
	})

	QuotaDeniedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "turnstile_quota_denied_total",
		Help: "Requests denied by the daily quota check.",
	})
)

func init() {
	prometheus.MustRegister(
		PaymentOrdersCreatedTotal,
		PaymentCompletedTotal,
		NotificationRejectedTotal,
		QuotaDeniedTotal,
	)
}

func computeApproximateRequestSize(r *http.Request) int {
	s := 0
	if r.URL != nil {
		s = len(r.URL.Path)
	}
	s += len(r.Method)
	s += len(r.Proto)
	for name, values := range r.Header {
		s += len(name)
		for _, value := range values {
			s += len(value)
		}
	}
	s += len(r.Host)
	if r.ContentLength != -1 {
		s += int(r.ContentLength)
	}
	return s
}
