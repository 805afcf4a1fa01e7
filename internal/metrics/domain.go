package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "resume_builder"

var (
	sectionMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sections",
			Name:      "mutations_total",
			Help:      "分区与条目修改次数，按操作与结果分类。",
		},
		[]string{"operation", "outcome"},
	)

	aiRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ai",
			Name:      "requests_total",
			Help:      "AI 摘要请求次数。",
		},
		[]string{"outcome"},
	)
)

// ObserveSectionMutation 记录一次分区修改。outcome 通常是错误类别，成功时为 "ok"。
func ObserveSectionMutation(operation, outcome string) {
	sectionMutations.WithLabelValues(operation, outcome).Inc()
}

// ObserveAIRequest 记录一次 AI 调用结果。
func ObserveAIRequest(outcome string) {
	aiRequests.WithLabelValues(outcome).Inc()
}
