// Package metrics 提供 Prometheus helper，包含服务通用与期权业务指标
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 指标集合
type Metrics struct {
	// HTTP 请求计数
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration prometheus.Histogram

	// 期权操作计数，按操作与结果区分
	OptionOpsTotal *prometheus.CounterVec
	// 期权操作耗时
	OptionOpDuration prometheus.Histogram
	// 账本转账计数
	LedgerTransfersTotal *prometheus.CounterVec
	// 未了结协议数
	AgreementsOpen prometheus.Gauge
}

// New 创建并注册指标实例
func New(serviceName string) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "optionsettlement",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "optionsettlement",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration",
			Buckets:   prometheus.DefBuckets,
		}),
		OptionOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "optionsettlement",
			Subsystem: serviceName,
			Name:      "option_operations_total",
			Help:      "Option lifecycle operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		OptionOpDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "optionsettlement",
			Subsystem: serviceName,
			Name:      "option_operation_duration_seconds",
			Help:      "Option lifecycle operation duration",
			Buckets:   prometheus.DefBuckets,
		}),
		LedgerTransfersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "optionsettlement",
			Subsystem: serviceName,
			Name:      "ledger_transfers_total",
			Help:      "Ledger transfer attempts by asset and outcome",
		}, []string{"asset", "outcome"}),
		AgreementsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "optionsettlement",
			Subsystem: serviceName,
			Name:      "agreements_open",
			Help:      "Agreements currently in a non-terminal state",
		}),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.OptionOpsTotal,
		m.OptionOpDuration,
		m.LedgerTransfersTotal,
		m.AgreementsOpen,
	)

	return m
}

// ObserveOperation 记录一次期权操作的结果与耗时
func (m *Metrics) ObserveOperation(operation string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.OptionOpsTotal.WithLabelValues(operation, outcome).Inc()
	m.OptionOpDuration.Observe(time.Since(start).Seconds())
}

// ObserveTransfer 记录一次账本转账的结果
func (m *Metrics) ObserveTransfer(asset string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.LedgerTransfersTotal.WithLabelValues(asset, outcome).Inc()
}

// Serve 启动独立的指标 HTTP 服务
func Serve(port int, path string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		_ = srv.ListenAndServe()
	}()

	return srv
}
