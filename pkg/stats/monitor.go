// Copyright 2025 VeloxVOIP.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// 	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package stats

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/veloxvoip/callengine/pkg/config"
)

// Monitor tracks engine-wide call metrics.
type Monitor struct {
	nodeID string

	callsActive   prometheus.Gauge
	callsTotal    *prometheus.CounterVec
	callDuration  prometheus.Histogram
	audioDropped  prometheus.Counter
	guardVerdicts *prometheus.CounterVec
	toolDispatch  *prometheus.CounterVec
	streamRetries prometheus.Counter

	activeCalls atomic.Int64
	maxCalls    int64
	started     atomic.Bool
}

func NewMonitor(conf *config.Config) (*Monitor, error) {
	m := &Monitor{
		nodeID:   conf.NodeID,
		maxCalls: int64(conf.MaxConcurrentCalls),
		callsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "callengine",
			Name:        "calls_active",
			Help:        "Number of calls currently bridged",
			ConstLabels: prometheus.Labels{"node_id": conf.NodeID},
		}),
		callsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "callengine",
			Name:        "calls_total",
			Help:        "Calls handled, by terminal status",
			ConstLabels: prometheus.Labels{"node_id": conf.NodeID},
		}, []string{"status"}),
		callDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "callengine",
			Name:        "call_duration_seconds",
			Help:        "Call duration in seconds",
			ConstLabels: prometheus.Labels{"node_id": conf.NodeID},
			Buckets:     []float64{5, 15, 30, 60, 120, 300, 600, 900},
		}),
		audioDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "callengine",
			Name:        "audio_chunks_dropped_total",
			Help:        "Inbound audio chunks dropped because the send queue was full",
			ConstLabels: prometheus.Labels{"node_id": conf.NodeID},
		}),
		guardVerdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "callengine",
			Name:        "guardrail_verdicts_total",
			Help:        "Guardrail verdicts, by resulting action",
			ConstLabels: prometheus.Labels{"node_id": conf.NodeID},
		}, []string{"action"}),
		toolDispatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "callengine",
			Name:        "tool_dispatch_total",
			Help:        "Tool invocations, by tool name and result",
			ConstLabels: prometheus.Labels{"node_id": conf.NodeID},
		}, []string{"tool", "result"}),
		streamRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "callengine",
			Name:        "stream_retries_total",
			Help:        "Model stream reconnect attempts",
			ConstLabels: prometheus.Labels{"node_id": conf.NodeID},
		}),
	}

	if err := prometheus.Register(m.callsActive); err != nil {
		return nil, err
	}
	if err := prometheus.Register(m.callsTotal); err != nil {
		return nil, err
	}
	if err := prometheus.Register(m.callDuration); err != nil {
		return nil, err
	}
	if err := prometheus.Register(m.audioDropped); err != nil {
		return nil, err
	}
	if err := prometheus.Register(m.guardVerdicts); err != nil {
		return nil, err
	}
	if err := prometheus.Register(m.toolDispatch); err != nil {
		return nil, err
	}
	if err := prometheus.Register(m.streamRetries); err != nil {
		return nil, err
	}

	m.started.Store(true)
	return m, nil
}

func (m *Monitor) Shutdown() {
	if m == nil || !m.started.Swap(false) {
		return
	}
	prometheus.Unregister(m.callsActive)
	prometheus.Unregister(m.callsTotal)
	prometheus.Unregister(m.callDuration)
	prometheus.Unregister(m.audioDropped)
	prometheus.Unregister(m.guardVerdicts)
	prometheus.Unregister(m.toolDispatch)
	prometheus.Unregister(m.streamRetries)
}

func (m *Monitor) CallStarted() {
	if m == nil {
		return
	}
	m.activeCalls.Add(1)
	m.callsActive.Inc()
}

func (m *Monitor) CallEnded(status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.activeCalls.Add(-1)
	m.callsActive.Dec()
	m.callsTotal.WithLabelValues(status).Inc()
	m.callDuration.Observe(dur.Seconds())
}

func (m *Monitor) AudioChunkDropped() {
	if m == nil {
		return
	}
	m.audioDropped.Inc()
}

func (m *Monitor) GuardrailVerdict(action string) {
	if m == nil {
		return
	}
	m.guardVerdicts.WithLabelValues(action).Inc()
}

func (m *Monitor) ToolDispatched(tool, result string) {
	if m == nil {
		return
	}
	m.toolDispatch.WithLabelValues(tool, result).Inc()
}

func (m *Monitor) StreamRetry() {
	if m == nil {
		return
	}
	m.streamRetries.Inc()
}

// ActiveCalls reports the number of bridged calls, used by the drain loop.
func (m *Monitor) ActiveCalls() int64 {
	if m == nil {
		return 0
	}
	return m.activeCalls.Load()
}
