package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stage outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeScanned  = "scanned"
	OutcomeEmpty    = "empty"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
)

var (
	stageOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chunker_stage_outcomes_total",
		Help: "Outcomes of PDF extraction stages",
	}, []string{"stage", "outcome"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chunker_stage_duration_seconds",
		Help:    "Duration of PDF extraction stages",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	qualityRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chunker_quality_rejections_total",
		Help: "Quality gate checks that fired",
	}, []string{"gate", "check"})

	ocrPages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chunker_ocr_pages_total",
		Help: "Pages sent through OCR",
	}, []string{"result"})

	preprocessing = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chunker_ocr_preprocessing_total",
		Help: "Pages that were or were not preprocessed before OCR",
	}, []string{"decision"})

	chunksProduced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chunker_chunks_produced_total",
		Help: "Chunks emitted by the splitter",
	}, []string{"source", "split_method"})

	splitterFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chunker_splitter_fallbacks_total",
		Help: "Splitter calls that degraded to returning the input unsplit",
	})

	embeddingLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chunker_embedding_duration_seconds",
		Help:    "Latency of embedding provider batch calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "status"})

	documents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chunker_documents_total",
		Help: "Documents run through extract-and-chunk",
	}, []string{"file_type", "status"})
)

func RecordStage(stage, outcome string, d time.Duration) {
	stageOutcomes.WithLabelValues(stage, outcome).Inc()
	stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func RecordQualityRejection(gate, check string) {
	qualityRejections.WithLabelValues(gate, check).Inc()
}

func RecordOCRPage(result string) {
	ocrPages.WithLabelValues(result).Inc()
}

func RecordPreprocessing(applied bool) {
	if applied {
		preprocessing.WithLabelValues("applied").Inc()
		return
	}
	preprocessing.WithLabelValues("skipped").Inc()
}

func RecordChunk(source, splitMethod string) {
	chunksProduced.WithLabelValues(source, splitMethod).Inc()
}

func RecordSplitterFallback() {
	splitterFallbacks.Inc()
}

func RecordEmbedding(provider string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	embeddingLatency.WithLabelValues(provider, status).Observe(d.Seconds())
}

func RecordDocument(fileType string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	documents.WithLabelValues(fileType, status).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
