package guard

import "github.com/prometheus/client_golang/prometheus"

// decisions counts guard outcomes. "error" marks a decision produced by the
// guard's failure policy rather than by the check itself.
var decisions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "guard_decisions_total",
		Help: "Total number of admission guard decisions, by guard and outcome.",
	},
	[]string{"guard", "outcome"},
)

func init() {
	prometheus.MustRegister(decisions)
}
