package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Scene outcomes recorded by ObserveScene.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// PipelineCollector bundles Prometheus metrics for scene processing. All
// methods are safe on a nil collector so callers can run without metrics.
type PipelineCollector struct {
	gatherer prometheus.Gatherer

	StageDurations *prometheus.HistogramVec
	Scenes         *prometheus.CounterVec
	NoDataFraction *prometheus.GaugeVec
	CoregTiles     prometheus.Gauge
	CoregOffset    *prometheus.GaugeVec
	CoregSkipped   *prometheus.CounterVec
	ElevationTiles *prometheus.CounterVec
}

// NewPipelineCollector registers pipeline metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewPipelineCollector(reg prometheus.Registerer) (*PipelineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geolocation_stage_duration_seconds",
		Help:    "Wall time spent in each pipeline stage.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"}), "geolocation_stage_duration_seconds")
	if err != nil {
		return nil, err
	}

	scenes, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geolocation_scenes_total",
		Help: "Scenes processed, labeled by outcome.",
	}, []string{"outcome"}), "geolocation_scenes_total")
	if err != nil {
		return nil, err
	}

	nodata, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "geolocation_nodata_fraction",
		Help: "Share of output cells left as nodata in the last written product.",
	}, []string{"product"}), "geolocation_nodata_fraction")
	if err != nil {
		return nil, err
	}

	tiles, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "geolocation_coreg_tiles",
		Help: "Matched windows the last offset model was fitted on.",
	}), "geolocation_coreg_tiles")
	if err != nil {
		return nil, err
	}

	offset, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "geolocation_coreg_offset_pixels",
		Help: "Mean offset predicted by the last offset model, per grid axis.",
	}, []string{"axis"}), "geolocation_coreg_offset_pixels")
	if err != nil {
		return nil, err
	}

	skipped, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geolocation_coreg_skipped_total",
		Help: "Scenes whose co-registration was skipped, labeled by reason.",
	}, []string{"reason"}), "geolocation_coreg_skipped_total")
	if err != nil {
		return nil, err
	}

	elevation, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geolocation_elevation_tiles_total",
		Help: "Elevation tile lookups, labeled by result.",
	}, []string{"result"}), "geolocation_elevation_tiles_total")
	if err != nil {
		return nil, err
	}

	return &PipelineCollector{
		gatherer:       gatherer,
		StageDurations: durations,
		Scenes:         scenes,
		NoDataFraction: nodata,
		CoregTiles:     tiles,
		CoregOffset:    offset,
		CoregSkipped:   skipped,
		ElevationTiles: elevation,
	}, nil
}

// Gatherer returns the registry metrics are read from.
func (c *PipelineCollector) Gatherer() prometheus.Gatherer {
	if c == nil || c.gatherer == nil {
		return prometheus.DefaultGatherer
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *PipelineCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.Gatherer(), promhttp.HandlerOpts{})
}

// WriteToTextfile dumps the current metrics in the node-exporter textfile
// format, for batch runs that exit before any scrape.
func (c *PipelineCollector) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.Gatherer())
}

// ObserveStage records how long one stage took.
func (c *PipelineCollector) ObserveStage(stage string, d time.Duration) {
	if c == nil || c.StageDurations == nil {
		return
	}
	c.StageDurations.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveScene counts a finished scene.
func (c *PipelineCollector) ObserveScene(outcome string) {
	if c == nil || c.Scenes == nil {
		return
	}
	c.Scenes.WithLabelValues(outcome).Inc()
}

// SetNoDataFraction records the nodata share of a product.
func (c *PipelineCollector) SetNoDataFraction(product string, fraction float64) {
	if c == nil || c.NoDataFraction == nil {
		return
	}
	c.NoDataFraction.WithLabelValues(product).Set(fraction)
}

// SetCoregModel records the size and mean prediction of an offset model.
func (c *PipelineCollector) SetCoregModel(tiles int, meanRow, meanCol float64) {
	if c == nil {
		return
	}
	if c.CoregTiles != nil {
		c.CoregTiles.Set(float64(tiles))
	}
	if c.CoregOffset != nil {
		c.CoregOffset.WithLabelValues("row").Set(meanRow)
		c.CoregOffset.WithLabelValues("col").Set(meanCol)
	}
}

// IncCoregSkipped counts a skipped co-registration.
func (c *PipelineCollector) IncCoregSkipped(reason string) {
	if c == nil || c.CoregSkipped == nil {
		return
	}
	c.CoregSkipped.WithLabelValues(reason).Inc()
}

// IncElevationTile counts one tile lookup result (loaded or missing).
func (c *PipelineCollector) IncElevationTile(result string) {
	if c == nil || c.ElevationTiles == nil {
		return
	}
	c.ElevationTiles.WithLabelValues(result).Inc()
}
