package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors are package level so that every layer can count without
// threading a registry through. They work unregistered; Register exposes
// them.
var (
	Commands = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lasershark_commands_total",
		Help: "Simple protocol commands by result.",
	}, []string{"result"})

	BridgeExchanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lasershark_twostep_exchanges_total",
		Help: "Twostep frame exchanges by result.",
	}, []string{"result"})

	Transfers = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lasershark_sample_transfers_total",
		Help: "Sample packets written to the device.",
	})

	TransferRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lasershark_sample_transfer_retries_total",
		Help: "Sample transfers retried after a timeout.",
	})

	BytesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lasershark_sample_bytes_total",
		Help: "Sample bytes written to the device.",
	})

	SamplesPushed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lasershark_samples_pushed_total",
		Help: "Samples accepted into the packet buffer.",
	})

	SamplesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lasershark_samples_dropped_total",
		Help: "Real-time samples dropped because the ring was full.",
	})

	DrainPolls = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lasershark_drain_polls_total",
		Help: "Ring buffer empty count queries while flushing.",
	})

	LineErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lasershark_line_errors_total",
		Help: "Input lines skipped because they did not parse.",
	})

	DeviceEmpty = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lasershark_ringbuffer_empty_samples",
		Help: "Last reported free space in the device ring buffer.",
	})
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		Commands,
		BridgeExchanges,
		Transfers,
		TransferRetries,
		BytesSent,
		SamplesPushed,
		SamplesDropped,
		DrainPolls,
		LineErrors,
		DeviceEmpty,
	}
}

// Register adds all collectors to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves a registry in the prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
