// Package metrics provides Prometheus instrumentation for the reader engine: card
// edges, read operations with their outcome, and the APDU exchanges behind them.
package metrics

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gregLibert/nfc-reader/pkg/contactless"
	"github.com/gregLibert/nfc-reader/pkg/iso7816"
)

const (
	// Namespace is the Prometheus namespace for all reader metrics
	Namespace = "nfc_reader"

	// Label names
	LabelEdge        = "edge"
	LabelOperation   = "operation"
	LabelStatus      = "status"
	LabelErrorType   = "error_type"
	LabelInstruction = "instruction"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	// CardEventsTotal counts card edges by direction.
	CardEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "card_events_total",
			Help:      "Total number of card insertions and removals",
		},
		[]string{LabelEdge},
	)

	// OperationsTotal counts reader operations by name and status.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of reader operations by type and status",
		},
		[]string{LabelOperation, LabelStatus},
	)

	// OperationDuration tracks the duration of read operations, card wait included.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of reader operations in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{LabelOperation},
	)

	// ErrorsTotal counts failed operations by error kind.
	// Error types are the contactless.Kind names (e.g., "authentication_failed").
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by operation and error type",
		},
		[]string{LabelOperation, LabelErrorType},
	)

	// BytesReadTotal counts the card bytes returned to callers.
	BytesReadTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "bytes_read_total",
			Help:      "Total number of card bytes read by operation",
		},
		[]string{LabelOperation},
	)

	// APDUExchangesTotal counts APDU round trips by instruction and status word.
	APDUExchangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "apdu",
			Name:      "exchanges_total",
			Help:      "Total number of APDU exchanges by instruction and status word",
		},
		[]string{LabelInstruction, LabelStatus},
	)

	// APDUDuration tracks the round trip time of a single APDU.
	APDUDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "apdu",
			Name:      "exchange_duration_seconds",
			Help:      "Duration of APDU exchanges in seconds",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25},
		},
		[]string{LabelInstruction},
	)

	enabled atomic.Bool
)

func init() {
	enabled.Store(true)
}

// Enable turns metrics recording on.
func Enable() { enabled.Store(true) }

// Disable turns metrics recording off. Collectors stay registered.
func Disable() { enabled.Store(false) }

// IsEnabled reports whether metrics are recorded.
func IsEnabled() bool { return enabled.Load() }

// RecordEdge counts a card insertion or removal.
func RecordEdge(edge contactless.Edge) {
	if !enabled.Load() {
		return
	}
	CardEventsTotal.WithLabelValues(edge.String()).Inc()
}

// RecordOperation records the outcome of one reader operation. n is the number of
// bytes returned and err its error, if any.
func RecordOperation(op string, elapsed time.Duration, n int, err error) {
	if !enabled.Load() {
		return
	}

	status := StatusSuccess
	if err != nil {
		status = StatusError
		ErrorsTotal.WithLabelValues(op, contactless.KindOf(err).String()).Inc()
	}
	OperationsTotal.WithLabelValues(op, status).Inc()
	if elapsed > 0 {
		OperationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
	}
	if n > 0 {
		BytesReadTotal.WithLabelValues(op).Add(float64(n))
	}
}

// RecordExchange records one APDU round trip. Exchanges that got no status word are
// labelled "transport".
func RecordExchange(ex iso7816.Exchange) {
	if !enabled.Load() || ex.Command == nil {
		return
	}

	ins := ex.Command.Instruction.Raw.String()
	status := "transport"
	if ex.Err == nil && len(ex.Response) >= 2 {
		sw := iso7816.NewStatusWord(ex.Response[len(ex.Response)-2], ex.Response[len(ex.Response)-1])
		status = fmt.Sprintf("%04X", uint16(sw))
	}
	APDUExchangesTotal.WithLabelValues(ins, status).Inc()
	APDUDuration.WithLabelValues(ins).Observe(ex.Elapsed.Seconds())
}

// Observer feeds a contactless.Session into the package collectors.
type Observer struct{}

// NewObserver returns an observer to pass to contactless.WithObserver.
func NewObserver() *Observer {
	return &Observer{}
}

func (*Observer) ObserveEdge(ev contactless.Event) {
	RecordEdge(ev.Edge)
}

func (*Observer) ObserveOperation(op string, elapsed time.Duration, n int, err error) {
	RecordOperation(op, elapsed, n, err)
}

func (*Observer) ObserveExchange(ex iso7816.Exchange) {
	RecordExchange(ex)
}

var _ contactless.Observer = (*Observer)(nil)
