package gateway

import (
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"stakenet/core/events"
	"stakenet/observability/metrics"
)

// bufferedEmitter queues events raised inside a state transaction and only
// forwards them once the transaction flushed. Mutating handlers run strictly
// serialized, so one buffer per server is enough.
type bufferedEmitter struct {
	inner events.Emitter
	queue []events.Event
}

func newBufferedEmitter(inner events.Emitter) *bufferedEmitter {
	return &bufferedEmitter{inner: inner}
}

// Emit implements the events.Emitter interface.
func (e *bufferedEmitter) Emit(ev events.Event) {
	if e == nil || ev == nil {
		return
	}
	e.queue = append(e.queue, ev)
}

// Flush forwards every queued event to the inner emitter and clears the queue.
func (e *bufferedEmitter) Flush() {
	if e == nil {
		return
	}
	for _, ev := range e.queue {
		e.inner.Emit(ev)
	}
	e.queue = e.queue[:0]
}

// Discard drops queued events after a rolled-back transaction.
func (e *bufferedEmitter) Discard() {
	if e == nil {
		return
	}
	e.queue = e.queue[:0]
}

// observingEmitter fans staking events out to structured logs and Prometheus
// counters. It is registered as the emitter on both the engine and the ledger.
type observingEmitter struct {
	log     *slog.Logger
	metrics *metrics.StakingMetrics
}

func newObservingEmitter(log *slog.Logger, m *metrics.StakingMetrics) *observingEmitter {
	return &observingEmitter{log: log, metrics: m}
}

// Emit implements the events.Emitter interface.
func (e *observingEmitter) Emit(ev events.Event) {
	if e == nil || ev == nil {
		return
	}
	switch evt := ev.(type) {
	case events.StakeDeposited:
		e.log.Info("stake deposited",
			"event", evt.EventType(),
			"user", common.Address(evt.User).Hex(),
			"amount", evt.Amount.String())
	case events.StakeWithdrawn:
		e.log.Info("stake withdrawn",
			"event", evt.EventType(),
			"user", common.Address(evt.User).Hex(),
			"amount", evt.Amount.String())
	case events.StakeRewardPaid:
		e.metrics.ObserveRewardPaid(evt.Amount)
		e.log.Info("reward settled",
			"event", evt.EventType(),
			"user", common.Address(evt.User).Hex(),
			"amount", evt.Amount.String())
	case events.StakeEmissionUpdated:
		e.log.Info("emission rate updated",
			"event", evt.EventType(),
			"previous", evt.Previous.String(),
			"updated", evt.Updated.String())
	case events.ReferralRecorded:
		e.log.Info("referral recorded",
			"event", evt.EventType(),
			"user", common.Address(evt.User).Hex(),
			"referrer", common.Address(evt.Referrer).Hex())
	case events.ReferralCommissionRecorded:
		e.metrics.ObserveCommission(evt.Commission)
		e.log.Info("referral commission recorded",
			"event", evt.EventType(),
			"referrer", common.Address(evt.Referrer).Hex(),
			"referee", common.Address(evt.Referee).Hex(),
			"commission", evt.Commission.String())
	case events.ReferralCommissionWithdrawn:
		e.metrics.ObserveCommissionPayout()
		e.log.Info("referral commission withdrawn",
			"event", evt.EventType(),
			"referrer", common.Address(evt.Referrer).Hex(),
			"amount", evt.Amount.String())
	default:
		e.log.Info("staking event", "event", ev.EventType())
	}
}
