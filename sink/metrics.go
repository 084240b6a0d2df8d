package sink

import (
	"github.com/relex/gotils/promexporter/promext"
	"github.com/relex/gotils/promexporter/promreg"
)

// sinkMetrics defines metrics shared by all sink handles of one Sink
type sinkMetrics struct {
	openedConnectionsTotal promext.RWCounter
	networkErrorsTotal     promext.RWCounter
	corruptionErrorsTotal  promext.RWCounter
	heartbeatsTotal        promext.RWCounter
	paddingsTotal          promext.RWCounter
	replaysSkippedTotal    promext.RWCounter
	appliedExcerptsTotal   promext.RWCounter
	appliedBytesTotal      promext.RWCounter
}

func newSinkMetrics(metricCreator promreg.MetricCreator, address string) sinkMetrics {
	sinkMetricCreator := metricCreator.AddOrGetPrefix("sink_", []string{"source"}, []string{address})

	return sinkMetrics{
		openedConnectionsTotal: sinkMetricCreator.AddOrGetCounter("opened_connections_total", "Numbers of established source connections", nil, nil),
		networkErrorsTotal:     sinkMetricCreator.AddOrGetCounter("network_errors_total", "Numbers of network errors incl. lost connections", nil, nil),
		corruptionErrorsTotal:  sinkMetricCreator.AddOrGetCounter("corruption_errors_total", "Numbers of fatal stream corruption errors", nil, nil),
		heartbeatsTotal:        sinkMetricCreator.AddOrGetCounter("heartbeats_total", "Numbers of received heartbeat frames", nil, nil),
		paddingsTotal:          sinkMetricCreator.AddOrGetCounter("paddings_total", "Numbers of received block padding frames", nil, nil),
		replaysSkippedTotal:    sinkMetricCreator.AddOrGetCounter("replays_skipped_total", "Numbers of replayed excerpts skipped after resumption", nil, nil),
		appliedExcerptsTotal:   sinkMetricCreator.AddOrGetCounter("applied_excerpts_total", "Numbers of excerpts applied to the local journal or exposed in memory", nil, nil),
		appliedBytesTotal:      sinkMetricCreator.AddOrGetCounter("applied_bytes_total", "Total payload length in bytes of applied excerpts", nil, nil),
	}
}

func (metrics *sinkMetrics) OnConnected() {
	metrics.openedConnectionsTotal.Inc()
}

func (metrics *sinkMetrics) OnNetworkError() {
	metrics.networkErrorsTotal.Inc()
}

func (metrics *sinkMetrics) OnCorruption() {
	metrics.corruptionErrorsTotal.Inc()
}

func (metrics *sinkMetrics) OnHeartbeat() {
	metrics.heartbeatsTotal.Inc()
}

func (metrics *sinkMetrics) OnPadding() {
	metrics.paddingsTotal.Inc()
}

func (metrics *sinkMetrics) OnReplaySkipped() {
	metrics.replaysSkippedTotal.Inc()
}

func (metrics *sinkMetrics) OnApplied(length int) {
	metrics.appliedExcerptsTotal.Inc()
	metrics.appliedBytesTotal.Add(uint64(length))
}
