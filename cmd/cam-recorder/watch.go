// cmd/cam-recorder/watch.go
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sua-org/cam-recorder/internal/mqttclient"
)

var watchTopic string

// watchCmd acompanha o status publicado pelo gravador (camera, collector e config).
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Acompanha os tópicos de status do gravador",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		base := strings.TrimSuffix(getenv("MQTT_BASE_TOPIC", "cam-recorder"), "/")
		topic := watchTopic
		if topic == "" {
			topic = base + "/#"
		}

		cli, err := mqttclient.NewClientFromEnv("cam-recorder-watch", nil)
		if err != nil {
			return fmt.Errorf("erro ao conectar no MQTT: %w", err)
		}
		defer cli.Close()

		if err := cli.Subscribe(topic, 1, handleWatchMessage); err != nil {
			return fmt.Errorf("erro ao assinar tópico %s: %w", topic, err)
		}
		log.Printf("[watch] subscribed to topic: %s", topic)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		log.Println("[watch] sinal recebido, encerrando...")
		return nil
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchTopic, "topic", "", "tópico a assinar (default: <MQTT_BASE_TOPIC>/#)")
	rootCmd.AddCommand(watchCmd)
}

func handleWatchMessage(topic string, payload []byte) {
	var raw map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		log.Printf("[watch] %s: %s", topic, string(payload))
		return
	}

	switch {
	case strings.HasSuffix(topic, "/collector/status"):
		log.Printf("[COLLECTOR] status=%s cameras=%v summary=%q cpu=%.1f%%",
			getString(raw, "status"), raw["cameras"], getString(raw, "summary"), getFloat(raw, "cpu_percent"))
	case strings.HasSuffix(topic, "/status"):
		log.Printf("[CAMERA] %s state=%s text=%q file=%s",
			getString(raw, "name", "camera_id"), getString(raw, "state"), getString(raw, "text"), getString(raw, "file_path"))
	case strings.HasSuffix(topic, "/events"):
		log.Printf("[BRIDGE] %s type=%s code=%v", topic, getString(raw, "type"), raw["code"])
	default:
		pretty, _ := json.MarshalIndent(raw, "", "  ")
		log.Printf("[watch] %s:\n%s", topic, string(pretty))
	}
}

func getString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func getFloat(m map[string]interface{}, key string) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}
