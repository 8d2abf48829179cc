package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 区块文档保存结果标签。
const (
	SaveResultOK       = "ok"
	SaveResultInvalid  = "invalid"
	SaveResultConflict = "conflict"
	SaveResultError    = "error"
)

var (
	documentSavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sitecms",
			Subsystem: "sections",
			Name:      "document_saves_total",
			Help:      "首页区块文档保存次数，按结果分类。",
		},
		[]string{"result"},
	)

	documentRevision = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sitecms",
			Subsystem: "sections",
			Name:      "document_revision",
			Help:      "当前已保存的文档版本号。",
		},
	)

	publishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sitecms",
			Subsystem: "sections",
			Name:      "publish_total",
			Help:      "首页快照发布次数，按结果分类。",
		},
		[]string{"result"},
	)

	loginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sitecms",
			Subsystem: "admin",
			Name:      "login_attempts_total",
			Help:      "管理员登录尝试次数，按结果分类。",
		},
		[]string{"result"},
	)
)

// ObserveDocumentSave 记录一次保存；成功时同时更新版本号。
func ObserveDocumentSave(result string, revision int64) {
	documentSavesTotal.WithLabelValues(result).Inc()
	if result == SaveResultOK {
		documentRevision.Set(float64(revision))
	}
}

// ObservePublish 记录一次发布结果（ok/skipped/error）。
func ObservePublish(result string) {
	publishTotal.WithLabelValues(result).Inc()
}

// ObserveLogin 记录一次登录结果（ok/invalid/limited/error）。
func ObserveLogin(result string) {
	loginAttemptsTotal.WithLabelValues(result).Inc()
}
