package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CheckoutTotal counts POS checkout attempts by payment mode and outcome.
	CheckoutTotal *prometheus.CounterVec
	// GatewayChargeTotal counts payment gateway charge outcomes.
	GatewayChargeTotal *prometheus.CounterVec
	// ReceiptDeliveriesTotal tracks receipt email delivery outcomes.
	ReceiptDeliveriesTotal *prometheus.CounterVec
	// ReceiptDeliveryLatency records receipt delivery latency in milliseconds.
	ReceiptDeliveryLatency *prometheus.HistogramVec
	// StockDeductionConflicts counts checkouts rejected for insufficient stock.
	StockDeductionConflicts prometheus.Counter
	// LowStockAlertsTotal counts low-stock alert events emitted.
	LowStockAlertsTotal prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CheckoutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of POS checkout outcomes.",
		}, []string{"mode", "result"})
		GatewayChargeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_charge_total",
			Help:      "Count of payment gateway charge outcomes.",
		}, []string{"provider", "result"})
		ReceiptDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receipt_deliveries_total",
			Help:      "Count of receipt email delivery outcomes.",
		}, []string{"result"})
		ReceiptDeliveryLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "receipt_delivery_duration_ms",
			Help:      "Latency for receipt delivery attempts in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"result"})
		StockDeductionConflicts = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_deduction_conflicts_total",
			Help:      "Number of checkout lines rejected for insufficient stock.",
		})
		LowStockAlertsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "low_stock_alerts_total",
			Help:      "Number of low-stock alert events emitted.",
		})

		mustRegisterCollector(reg, CheckoutTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CheckoutTotal = v
			}
		})
		mustRegisterCollector(reg, GatewayChargeTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				GatewayChargeTotal = v
			}
		})
		mustRegisterCollector(reg, ReceiptDeliveriesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ReceiptDeliveriesTotal = v
			}
		})
		mustRegisterCollector(reg, ReceiptDeliveryLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				ReceiptDeliveryLatency = v
			}
		})
		mustRegisterCollector(reg, StockDeductionConflicts, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				StockDeductionConflicts = v
			}
		})
		mustRegisterCollector(reg, LowStockAlertsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				LowStockAlertsTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
