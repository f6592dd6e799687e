package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrEthical07/lockr"
	"github.com/MrEthical07/lockr/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() lockr.MetricsSnapshot
	AuditDropped() uint64
}

// stateSource is implemented by *lockr.Controller. Sources without it get no
// state gauge.
type stateSource interface {
	State() lockr.State
}

var controllerStates = []lockr.State{
	lockr.StateBootstrapping,
	lockr.StateLoggedOut,
	lockr.StateAwaitingMFA,
	lockr.StateAwaitingSecretSetup,
	lockr.StateUnlocking,
	lockr.StateActive,
}

type histogramGauges struct {
	id      lockr.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// OTelExporter publishes controller metrics as observable instruments. Values
// are read from one snapshot per collection.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration

	counters     map[lockr.MetricID]metric.Int64ObservableCounter
	histograms   []histogramGauges
	auditDropped metric.Int64ObservableCounter

	states     stateSource
	state      metric.Int64ObservableGauge
	stateAttrs map[lockr.State]metric.ObserveOption
}

// NewOTelExporter registers instruments for c on meter, including the
// lockr_controller_state gauge.
func NewOTelExporter(meter metric.Meter, c *lockr.Controller) (*OTelExporter, error) {
	if c == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, c)
}

func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{
		source:   source,
		counters: make(map[lockr.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
	}
	var observables []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", def.Name, err)
		}
		e.counters[def.ID] = ins
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		h, err := newHistogramGauges(meter, def)
		if err != nil {
			return nil, err
		}
		e.histograms = append(e.histograms, h)
		for _, b := range h.buckets {
			observables = append(observables, b)
		}
		observables = append(observables, h.count)
	}

	var err error
	e.auditDropped, err = meter.Int64ObservableCounter("lockr_audit_dropped_total",
		metric.WithDescription("Audit events dropped because the dispatcher buffer was full."))
	if err != nil {
		return nil, fmt.Errorf("counter lockr_audit_dropped_total: %w", err)
	}
	observables = append(observables, e.auditDropped)

	if states, ok := source.(stateSource); ok {
		e.states = states
		e.state, err = meter.Int64ObservableGauge("lockr_controller_state",
			metric.WithDescription("1 for the controller's current state, 0 for every other state."))
		if err != nil {
			return nil, fmt.Errorf("gauge lockr_controller_state: %w", err)
		}
		e.stateAttrs = make(map[lockr.State]metric.ObserveOption, len(controllerStates))
		for _, s := range controllerStates {
			e.stateAttrs[s] = metric.WithAttributes(attribute.String("state", s.String()))
		}
		observables = append(observables, e.state)
	}

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func newHistogramGauges(meter metric.Meter, def internaldefs.HistogramDef) (histogramGauges, error) {
	h := histogramGauges{id: def.ID}
	for i, suffix := range internaldefs.HistogramBoundSuffix {
		name := def.Name + "_bucket_le_" + suffix
		ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative bucket count for "+def.Name+"."))
		if err != nil {
			return h, fmt.Errorf("gauge %s: %w", name, err)
		}
		h.buckets[i] = ins
	}
	count, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription("Sample count for "+def.Name+"."))
	if err != nil {
		return h, fmt.Errorf("gauge %s_count: %w", def.Name, err)
	}
	h.count = count
	return h, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for id, ins := range e.counters {
		o.ObserveInt64(ins, int64(snapshot.Counters[id]))
	}
	for _, h := range e.histograms {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[h.id]))
		for i, v := range cumulative {
			o.ObserveInt64(h.buckets[i], int64(v))
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))

	if e.states != nil {
		current := e.states.State()
		for _, s := range controllerStates {
			var v int64
			if s == current {
				v = 1
			}
			o.ObserveInt64(e.state, v, e.stateAttrs[s])
		}
	}
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
