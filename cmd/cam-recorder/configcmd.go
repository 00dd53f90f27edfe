// cmd/cam-recorder/configcmd.go
package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sua-org/cam-recorder/internal/config"
	"github.com/sua-org/cam-recorder/internal/core"
	"github.com/sua-org/cam-recorder/internal/mqttclient"
)

var configTimeout time.Duration

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Lê ou altera a configuração de gravação de um gravador em execução (via MQTT)",
}

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Mostra a configuração atual",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendConfig(nil)
	},
}

var configSetDurationCmd = &cobra.Command{
	Use:   "set-duration MINUTOS",
	Short: "Altera a duração de cada arquivo (vale a partir do próximo ciclo)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("duração inválida: %q", args[0])
		}
		return sendConfig(&config.Update{DurationMinutes: &n})
	},
}

var configSetQualityCmd = &cobra.Command{
	Use:       "set-quality AUTO|HD|SD|LOW",
	Short:     "Altera a qualidade preferida (vale a partir do próximo preview)",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"AUTO", "HD", "SD", "LOW"},
	RunE: func(cmd *cobra.Command, args []string) error {
		q := strings.ToUpper(strings.TrimSpace(args[0]))
		if !core.Quality(q).Valid() {
			return fmt.Errorf("qualidade inválida: %q", args[0])
		}
		return sendConfig(&config.Update{Quality: &q})
	},
}

func init() {
	configCmd.PersistentFlags().DurationVar(&configTimeout, "timeout", 5*time.Second, "tempo máximo de espera pela resposta")
	configCmd.AddCommand(configGetCmd, configSetDurationCmd, configSetQualityCmd)
	rootCmd.AddCommand(configCmd)
}

// sendConfig publica em <base>/config/set (ou /config/get se u == nil) e
// imprime o snapshot que o gravador devolve em <base>/config.
func sendConfig(u *config.Update) error {
	base := strings.TrimSuffix(getenv("MQTT_BASE_TOPIC", "cam-recorder"), "/")

	cli, err := mqttclient.NewClientFromEnv("cam-recorder-cli", nil)
	if err != nil {
		return fmt.Errorf("erro ao conectar no MQTT: %w", err)
	}
	defer cli.Close()

	// o snapshot é retained: a primeira mensagem pode ser a antiga
	replies := make(chan []byte, 4)
	if err := cli.Subscribe(base+"/config", 1, func(_ string, payload []byte) {
		select {
		case replies <- payload:
		default:
		}
	}); err != nil {
		return err
	}

	topic := base + "/config/get"
	payload := []byte("{}")
	if u != nil {
		topic = base + "/config/set"
		if payload, err = json.Marshal(u); err != nil {
			return err
		}
	}
	if err := cli.Publish(topic, 1, false, payload); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	var last []byte
	deadline := time.After(configTimeout)
	for {
		select {
		case p := <-replies:
			last = p
			var rec config.Recording
			if err := json.Unmarshal(p, &rec); err == nil && matches(rec, u) {
				printRecording(rec)
				return nil
			}
		case <-deadline:
			if last != nil {
				return fmt.Errorf("gravador não confirmou a mudança; último snapshot: %s", string(last))
			}
			return fmt.Errorf("sem resposta em %s (o gravador está rodando?)", configTimeout)
		}
	}
}

func matches(rec config.Recording, u *config.Update) bool {
	if u == nil {
		return true
	}
	if u.DurationMinutes != nil && rec.DurationMinutes != *u.DurationMinutes {
		return false
	}
	if u.Quality != nil && string(rec.Quality) != *u.Quality {
		return false
	}
	return true
}

func printRecording(rec config.Recording) {
	fmt.Printf("duration_minutes: %d\nquality: %s\n", rec.DurationMinutes, rec.Quality)
}
