// Package metrics publishes the SCSI controller's runtime counters through
// prometheus/client_golang, the per-phase instrumentation spec.md's
// ambient stack adds on top of the original's untouched core loop.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	CommandsDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rascsi",
		Name:      "commands_dispatched_total",
		Help:      "SCSI commands dispatched to a device, by opcode.",
	}, []string{"opcode"})

	CheckConditions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rascsi",
		Name:      "check_conditions_total",
		Help:      "CHECK CONDITION statuses raised, by sense key.",
	}, []string{"sense_key"})

	BytesTransferred = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rascsi",
		Name:      "bytes_transferred_total",
		Help:      "Bytes moved across DATA-IN/DATA-OUT phases.",
	}, []string{"direction"})
)

func init() {
	prometheus.MustRegister(CommandsDispatched, CheckConditions, BytesTransferred)
}
