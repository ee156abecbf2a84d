package main

import (
	sdbridge "github.com/yarrco/sdbridge"
	"github.com/yarrco/sdbridge/internal/fsoverlay"
	"github.com/yarrco/sdbridge/internal/interfaces"
)

// metricsBundle pairs the root package's atomic-counter Metrics with the
// Observer adapter that feeds it, kept together so callers get both the
// sink (observer, handed to every component) and the source of truth for
// reporting without constructing the pair twice.
type metricsBundle struct {
	metrics  *sdbridge.Metrics
	observer interfaces.Observer
}

func sdbridgeMetrics() metricsBundle {
	m := sdbridge.NewMetrics()
	return metricsBundle{metrics: m, observer: sdbridge.NewMetricsObserver(m)}
}

func newOSOverlay(mount string) *fsoverlay.OS {
	return fsoverlay.New(mount)
}
