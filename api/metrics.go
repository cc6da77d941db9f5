package api

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SplitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tasksplit_splits_total",
		Help: "Split requests by strategy and outcome",
	}, []string{"strategy", "outcome"})
	SplitDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tasksplit_split_duration_seconds",
		Help:    "Time spent splitting an AOI",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
	}, []string{"strategy"})
	TasksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tasksplit_tasks_total",
		Help: "Task polygons produced",
	}, []string{"strategy"})
)

func init() {
	prometheus.MustRegister(SplitsTotal)
	prometheus.MustRegister(SplitDuration)
	prometheus.MustRegister(TasksTotal)
}
