// internal/status/publisher.go
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/process"
)

// Publisher é o subconjunto do cliente MQTT usado aqui.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTReporter publica (retained) o status de cada câmera em
// <base>/cameras/<id>/status e o do processo em <base>/collector/status.
// Mudanças de câmera saem na hora; o ciclo completo roda a cada Interval.
type MQTTReporter struct {
	pub       Publisher
	board     *Board
	baseTopic string
	interval  time.Duration
	basePath  string

	proc     *process.Process
	hostname string
	instance string
	changed  chan string
}

func NewMQTTReporter(pub Publisher, board *Board, baseTopic, basePath string, interval time.Duration) *MQTTReporter {
	hostname, _ := os.Hostname()
	r := &MQTTReporter{
		pub:       pub,
		board:     board,
		baseTopic: strings.TrimSuffix(baseTopic, "/"),
		interval:  interval,
		basePath:  basePath,
		hostname:  hostname,
		instance:  uuid.NewString(),
		changed:   make(chan string, 256),
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		r.proc = p
	}
	board.OnChange(func(c CameraStatus) {
		select {
		case r.changed <- c.CameraID:
		default:
			// fila cheia: o ciclo periódico cobre
		}
	})
	return r
}

// CollectorTopic é também o tópico do LWT configurado no cliente MQTT.
func CollectorTopic(baseTopic string) string {
	return strings.TrimSuffix(baseTopic, "/") + "/collector/status"
}

// OfflinePayload é o LWT publicado pelo broker se o processo cair.
func OfflinePayload() []byte {
	b, _ := json.Marshal(map[string]interface{}{
		"collector": "cam-recorder",
		"status":    "offline",
	})
	return b
}

func (r *MQTTReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Printf("[status] status loop iniciado (intervalo=%s)", r.interval)
	r.publishAll(time.Now())

	for {
		select {
		case <-ctx.Done():
			r.publishCollector(time.Now(), "stopping")
			log.Printf("[status] status loop encerrado (context canceled)")
			return
		case id := <-r.changed:
			if c, ok := r.board.Camera(id); ok {
				if err := r.publishCamera(c, time.Now()); err != nil {
					log.Printf("[status] %v", err)
				}
			}
		case t := <-ticker.C:
			r.publishAll(t)
		}
	}
}

func (r *MQTTReporter) publishAll(now time.Time) {
	for _, c := range r.board.Cameras() {
		if err := r.publishCamera(c, now); err != nil {
			log.Printf("[status] %v", err)
		}
	}
	r.publishCollector(now, "online")
}

func (r *MQTTReporter) CameraTopic(id string) string {
	return fmt.Sprintf("%s/cameras/%s/status", r.baseTopic, id)
}

func (r *MQTTReporter) publishCamera(c CameraStatus, now time.Time) error {
	payload := map[string]interface{}{
		"camera_id":    c.CameraID,
		"name":         c.Name,
		"state":        c.State,
		"text":         c.Text,
		"state_since":  c.StateSince.UTC().Format(time.RFC3339),
		"retries":      c.Retries,
		"files_closed": c.FilesClosed,
		"timestamp":    now.UTC().Format(time.RFC3339),
	}
	if c.FilePath != "" {
		payload["file_path"] = c.FilePath
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal camera status: %w", err)
	}
	topic := r.CameraTopic(c.CameraID)
	if err := r.pub.Publish(topic, 1, true, b); err != nil {
		return fmt.Errorf("publish camera status to %s: %w", topic, err)
	}
	return nil
}

func (r *MQTTReporter) publishCollector(now time.Time, state string) {
	var (
		cpuPercent  float64
		memPercent  float64
		memRSSBytes uint64
	)
	if r.proc != nil {
		if cpu, err := r.proc.CPUPercent(); err == nil {
			cpuPercent = cpu
		}
		if memInfo, err := r.proc.MemoryInfo(); err == nil {
			memRSSBytes = memInfo.RSS
		}
		if memP, err := r.proc.MemoryPercent(); err == nil {
			memPercent = float64(memP)
		}
	}

	sum := r.board.Summary()
	payload := map[string]interface{}{
		"collector":        "cam-recorder",
		"status":           state,
		"timestamp":        now.UTC().Format(time.RFC3339),
		"hostname":         r.hostname,
		"instance_id":      r.instance,
		"cameras":          sum.Cameras,
		"by_state":         sum.ByState,
		"summary":          sum.Text,
		"cpu_percent":      cpuPercent,
		"memory_percent":   memPercent,
		"memory_rss_bytes": memRSSBytes,
	}
	if r.basePath != "" {
		if u, err := disk.Usage(r.basePath); err == nil {
			payload["disk_free_bytes"] = u.Free
			payload["disk_used_percent"] = u.UsedPercent
		}
	}

	b, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[status] marshal collector status: %v", err)
		return
	}
	topic := CollectorTopic(r.baseTopic)
	if err := r.pub.Publish(topic, 1, true, b); err != nil {
		log.Printf("[status] erro ao publicar status do collector em %s: %v", topic, err)
		return
	}
	log.Printf("[status] collector %s -> %s (%s)", state, topic, sum.Text)
}
