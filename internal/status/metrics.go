// internal/status/metrics.go
package status

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ArchiveStats é implementado por storage.Archive.
type ArchiveStats interface {
	Stats() (uploaded, failed, dropped uint64)
}

// Collector expõe o Board no formato Prometheus, lido a cada scrape.
type Collector struct {
	Board   *Board
	Archive ArchiveStats // opcional

	mu sync.Mutex
}

var (
	camerasDesc = prometheus.NewDesc(
		"camrec_cameras", "Cameras grouped by session state.", []string{"state"}, nil,
	)
	cameraStateDesc = prometheus.NewDesc(
		"camrec_camera_state", "Current session state (always 1, state in label).", []string{"id", "name", "state"}, nil,
	)
	cameraStateSecondsDesc = prometheus.NewDesc(
		"camrec_camera_state_seconds", "Seconds since the last state change.", []string{"id", "name"}, nil,
	)
	cameraRetriesDesc = prometheus.NewDesc(
		"camrec_camera_retries_total", "Failed attempts followed by a retry.", []string{"id", "name"}, nil,
	)
	cameraFilesDesc = prometheus.NewDesc(
		"camrec_camera_files_closed_total", "Recording files completed.", []string{"id", "name"}, nil,
	)
	archiveDesc = prometheus.NewDesc(
		"camrec_archive_files_total", "Archive uploads by result.", []string{"result"}, nil,
	)
)

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- camerasDesc
	ch <- cameraStateDesc
	ch <- cameraStateSecondsDesc
	ch <- cameraRetriesDesc
	ch <- cameraFilesDesc
	ch <- archiveDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	counts := make(map[string]float64)
	for _, cam := range c.Board.Cameras() {
		st := cam.State
		if st == "" {
			st = "unknown"
		}
		counts[st]++

		ch <- prometheus.MustNewConstMetric(cameraStateDesc, prometheus.GaugeValue, 1, cam.CameraID, cam.Name, st)
		ch <- prometheus.MustNewConstMetric(cameraStateSecondsDesc, prometheus.GaugeValue, now.Sub(cam.StateSince).Seconds(), cam.CameraID, cam.Name)
		ch <- prometheus.MustNewConstMetric(cameraRetriesDesc, prometheus.CounterValue, float64(cam.Retries), cam.CameraID, cam.Name)
		ch <- prometheus.MustNewConstMetric(cameraFilesDesc, prometheus.CounterValue, float64(cam.FilesClosed), cam.CameraID, cam.Name)
	}
	for st, n := range counts {
		ch <- prometheus.MustNewConstMetric(camerasDesc, prometheus.GaugeValue, n, st)
	}

	if c.Archive != nil {
		ok, failed, dropped := c.Archive.Stats()
		ch <- prometheus.MustNewConstMetric(archiveDesc, prometheus.CounterValue, float64(ok), "uploaded")
		ch <- prometheus.MustNewConstMetric(archiveDesc, prometheus.CounterValue, float64(failed), "failed")
		ch <- prometheus.MustNewConstMetric(archiveDesc, prometheus.CounterValue, float64(dropped), "dropped")
	}
}
