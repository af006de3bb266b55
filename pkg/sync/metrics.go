package sync

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 汇集同步子系统的 Prometheus 指标。
type Metrics struct {
	MessagesSent     *prometheus.CounterVec
	MessagesReceived *prometheus.CounterVec
	MessagesDropped  prometheus.Counter
	SyncsTotal       prometheus.Counter
	SyncsSkipped     prometheus.Counter
	PeersConnected   prometheus.Gauge
	SendFailures     prometheus.Counter
}

// NewMetrics 创建并注册指标。reg 为 nil 时只创建不注册,
// 便于测试里多个节点共存。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jarvis",
			Subsystem: "sync",
			Name:      "messages_sent_total",
			Help:      "按类型统计的已发送消息数",
		}, []string{"type"}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jarvis",
			Subsystem: "sync",
			Name:      "messages_received_total",
			Help:      "按类型统计的已接收消息数",
		}, []string{"type"}),
		MessagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jarvis",
			Subsystem: "sync",
			Name:      "messages_dropped_total",
			Help:      "因类型未知而被丢弃的消息数",
		}),
		SyncsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jarvis",
			Subsystem: "sync",
			Name:      "syncs_total",
			Help:      "完成的实例同步次数",
		}),
		SyncsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jarvis",
			Subsystem: "sync",
			Name:      "syncs_skipped_total",
			Help:      "因摘要一致而跳过的同步次数",
		}),
		PeersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "jarvis",
			Subsystem: "sync",
			Name:      "peers_connected",
			Help:      "当前 Connected 状态的对端数量",
		}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jarvis",
			Subsystem: "sync",
			Name:      "send_failures_total",
			Help:      "发送失败次数",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.MessagesSent, m.MessagesReceived, m.MessagesDropped,
			m.SyncsTotal, m.SyncsSkipped, m.PeersConnected, m.SendFailures,
		)
	}
	return m
}
