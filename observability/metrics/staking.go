package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type StakingMetrics struct {
	deposits          prometheus.Counter
	withdrawals       prometheus.Counter
	rewardsPaid       prometheus.Counter
	commissionAccrued prometheus.Counter
	commissionPayouts prometheus.Counter
	totalStaked       prometheus.Gauge
	operationFailures *prometheus.CounterVec
}

var (
	stakingOnce     sync.Once
	stakingRegistry *StakingMetrics
)

func Staking() *StakingMetrics {
	stakingOnce.Do(func() {
		stakingRegistry = &StakingMetrics{
			deposits: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "staking_deposits_total",
				Help: "Count of accepted deposit operations, including claim-only deposits.",
			}),
			withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "staking_withdrawals_total",
				Help: "Count of accepted withdraw operations.",
			}),
			rewardsPaid: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "staking_rewards_paid_total",
				Help: "Cumulative reward amount settled from the treasury.",
			}),
			commissionAccrued: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "staking_referral_commission_total",
				Help: "Cumulative commission amount accrued to referrers.",
			}),
			commissionPayouts: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "staking_referral_payouts_total",
				Help: "Count of referral commission withdrawals that met the dust floor.",
			}),
			totalStaked: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "staking_pool_total_staked",
				Help: "Current aggregate principal held by the staking pool.",
			}),
			operationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "staking_operation_failures_total",
				Help: "Count of rejected operations by failure reason.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			stakingRegistry.deposits,
			stakingRegistry.withdrawals,
			stakingRegistry.rewardsPaid,
			stakingRegistry.commissionAccrued,
			stakingRegistry.commissionPayouts,
			stakingRegistry.totalStaked,
			stakingRegistry.operationFailures,
		)
	})
	return stakingRegistry
}

func (m *StakingMetrics) ObserveDeposit() {
	if m == nil {
		return
	}
	m.deposits.Inc()
}

func (m *StakingMetrics) ObserveWithdraw() {
	if m == nil {
		return
	}
	m.withdrawals.Inc()
}

func (m *StakingMetrics) ObserveRewardPaid(amount *big.Int) {
	if m == nil || amount == nil {
		return
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	m.rewardsPaid.Add(value)
}

func (m *StakingMetrics) ObserveCommission(amount *big.Int) {
	if m == nil || amount == nil {
		return
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	m.commissionAccrued.Add(value)
}

func (m *StakingMetrics) ObserveCommissionPayout() {
	if m == nil {
		return
	}
	m.commissionPayouts.Inc()
}

func (m *StakingMetrics) SetTotalStaked(total *big.Int) {
	if m == nil || total == nil {
		return
	}
	value, _ := new(big.Float).SetInt(total).Float64()
	m.totalStaked.Set(value)
}

func (m *StakingMetrics) ObserveFailure(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.operationFailures.WithLabelValues(reason).Inc()
}
