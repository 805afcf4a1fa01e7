package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 任务结果标签。
const (
	TaskOutcomeOK      = "ok"
	TaskOutcomeRetry   = "retry"
	TaskOutcomeDropped = "dropped"
)

var (
	taskTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "processed_total",
			Help:      "后台任务处理次数，按任务类型与结果分类。",
		},
		[]string{"task_type", "outcome"},
	)

	taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "duration_seconds",
			Help:      "后台任务耗时（秒）。PDF 导出包含浏览器启动时间。",
			Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"task_type"},
	)

	taskInProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "in_progress",
			Help:      "当前正在处理的任务数量。",
		},
		[]string{"task_type"},
	)
)

// TaskOutcome 把处理器返回值归类：nil 为 ok，SkipRetry 为 dropped，其余为 retry。
func TaskOutcome(err error) string {
	switch {
	case err == nil:
		return TaskOutcomeOK
	case errors.Is(err, asynq.SkipRetry):
		return TaskOutcomeDropped
	default:
		return TaskOutcomeRetry
	}
}

// AsynqMetricsMiddleware 记录导出与摘要任务的处理指标。
func AsynqMetricsMiddleware() asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			taskType := task.Type()
			gauge := taskInProgress.WithLabelValues(taskType)
			gauge.Inc()
			defer gauge.Dec()

			start := time.Now()
			err := next.ProcessTask(ctx, task)
			taskDuration.WithLabelValues(taskType).Observe(time.Since(start).Seconds())
			taskTotal.WithLabelValues(taskType, TaskOutcome(err)).Inc()
			return err
		})
	}
}
