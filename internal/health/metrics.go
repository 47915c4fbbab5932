package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DocumentsDownloaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_documents_downloaded_total",
		Help: "Total number of documents successfully downloaded",
	}, []string{"court"})

	DocumentsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_documents_failed_total",
		Help: "Total number of documents that failed to download or validate",
	}, []string{"court", "reason"})

	DownloadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crawler_download_duration_seconds",
		Help:    "Duration of document fetch-validate-extract-persist pipeline runs",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})

	ValidationResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_validation_results_total",
		Help: "Total number of validation outcomes",
	}, []string{"result"})

	SitemapDiscoveryProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_sitemap_discovery_probes_total",
		Help: "Total number of sitemap presence probes issued during discovery",
	}, []string{"outcome"})

	BulkCampaignsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crawler_bulk_campaigns_active",
		Help: "Current number of non-terminal bulk crawl campaigns",
	})

	BulkCampaignStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_bulk_campaign_transitions_total",
		Help: "Total number of bulk campaign state transitions",
	}, []string{"status"})

	BulkCampaignRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crawler_bulk_campaign_documents_per_minute",
		Help: "Current processing rate of an active bulk campaign",
	}, []string{"operation_id"})

	ScheduledJobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_scheduled_job_runs_total",
		Help: "Total number of scheduled job executions",
	}, []string{"job", "result"})

	ScheduledJobSkippedReentrant = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_scheduled_job_skipped_reentrant_total",
		Help: "Total number of scheduled job triggers skipped because the previous run was still in flight",
	}, []string{"job"})

	StoreOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crawler_store_operation_duration_seconds",
		Help:    "Duration of Repository operations by backend and method",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "method"})

	DocumentsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crawler_documents_by_status",
		Help: "Current count of documents in each status, as last observed",
	}, []string{"status"})

	RetrySweepSucceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_retry_sweep_succeeded_total",
		Help: "Total number of documents that succeeded on a retry sweep",
	})
)
