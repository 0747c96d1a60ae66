package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SyncRunsTotal количество запусков синхронизации юнитов
	// result: completed, empty, aborted
	SyncRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_sync_runs_total",
			Help: "Total number of Wialon unit sync runs by result.",
		},
		[]string{"result"},
	)

	// SyncUnitsTotal исходы upsert по юнитам
	SyncUnitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_sync_units_total",
			Help: "Units processed by sync runs, by outcome (created/updated/unchanged/failed).",
		},
		[]string{"outcome"},
	)

	SyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetwatch_sync_duration_seconds",
			Help:    "Duration of Wialon unit sync runs.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ProviderRetriesTotal неудачные попытки вызовов Wialon
	ProviderRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_provider_failed_attempts_total",
			Help: "Failed attempts of remote provider calls.",
		},
		[]string{"operation"},
	)

	// AlertIngestTotal исходы приёма алертов (accepted/throttled/unknown-unit/rejected)
	AlertIngestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_alert_ingest_total",
			Help: "Inbound alert webhooks by ingestion outcome.",
		},
		[]string{"outcome"},
	)

	// NotificationDeliveriesTotal доставки по синкам
	NotificationDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_notification_deliveries_total",
			Help: "Notification deliveries by sink and status.",
		},
		[]string{"sink", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		SyncRunsTotal,
		SyncUnitsTotal,
		SyncDuration,
		ProviderRetriesTotal,
		AlertIngestTotal,
		NotificationDeliveriesTotal,
	)
}
