package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storybook_pipeline_transitions_total",
			Help: "Pipeline state transitions by target state.",
		},
		[]string{"state"},
	)
	failuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storybook_pipeline_failures_total",
			Help: "Pipeline failures by step.",
		},
		[]string{"step"},
	)
	placeholderChunksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storybook_pipeline_placeholder_chunks_total",
			Help: "Chunks accepted with a placeholder image after image generation failed.",
		},
	)
	storiesPersistedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storybook_stories_persisted_total",
			Help: "Finished stories written to the story store.",
		},
		[]string{"status"},
	)
	uploadFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storybook_chunk_upload_failures_total",
			Help: "Chunk images replaced with the upload error sentinel.",
		},
	)
)
