// cmd/cam-recorder/run.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/sua-org/cam-recorder/internal/config"
	"github.com/sua-org/cam-recorder/internal/gateway"
	"github.com/sua-org/cam-recorder/internal/mqttclient"
	"github.com/sua-org/cam-recorder/internal/status"
	"github.com/sua-org/cam-recorder/internal/storage"
	"github.com/sua-org/cam-recorder/internal/supervisor"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Roda o gravador em primeiro plano até SIGINT/SIGTERM",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sig
			log.Println("[main] sinal recebido, encerrando...")
			cancel()
		}()

		return runRecorder(ctx)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// runRecorder monta tudo e bloqueia até o ctx acabar e as sessões pararem.
func runRecorder(ctx context.Context) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	log.Printf("[main] base=%s duração=%dmin qualidade=%s bridge=%s",
		cfg.BasePath, cfg.Recording.DurationMinutes, cfg.Recording.Quality, cfg.Bridge.URL)

	if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
		return fmt.Errorf("criar %s: %w", cfg.BasePath, err)
	}

	store := config.NewStore(cfg.Recording, cfg.File)
	board := status.NewBoard()

	mqttCli, err := mqttclient.NewClientFromEnv("cam-recorder", func(c *mqttclient.Config) {
		c.WillTopic = status.CollectorTopic(cfg.BaseTopic)
		c.WillPayload = status.OfflinePayload()
	})
	if err != nil {
		return fmt.Errorf("erro ao conectar no MQTT: %w", err)
	}
	defer mqttCli.Close()

	bridge := gateway.NewBridge(cfg.Bridge, log.Default())
	if err := bridge.Listen(mqttCli); err != nil {
		return err
	}
	if err := config.ServeControl(mqttCli, cfg.BaseTopic, store); err != nil {
		return err
	}

	// Arquivamento no MinIO (opcional; se falhar, continua só com o disco local)
	var archive *storage.Archive
	if cfg.Archive.Enabled() {
		minioStore, err := storage.NewMinioStore(ctx, cfg.Archive)
		if err != nil {
			log.Printf("[main] aviso: MinIO não inicializado: %v", err)
		} else {
			archive = storage.NewArchive(minioStore, storage.ArchiveOptions{
				BasePath:    cfg.BasePath,
				Prefix:      cfg.Archive.Prefix,
				DeleteLocal: cfg.Archive.DeleteLocal,
			})
			go archive.Run(ctx)
		}
	} else {
		log.Printf("[main] MINIO_ENDPOINT não definido, sem arquivamento")
	}

	collector := &status.Collector{Board: board}
	var onFileClosed func(cameraID, path string)
	if archive != nil {
		collector.Archive = archive
		onFileClosed = archive.Enqueue
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collector,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if cfg.StatusHTTPAddr != "" {
		go func() {
			if err := status.Serve(ctx, cfg.StatusHTTPAddr, status.NewRouter(board, store, registry)); err != nil {
				log.Printf("[main] API HTTP terminou com erro: %v", err)
			}
		}()
	}

	reporterDone := make(chan struct{})
	reporter := status.NewMQTTReporter(mqttCli, board, cfg.BaseTopic, cfg.BasePath, cfg.StatusInterval)
	go func() {
		defer close(reporterDone)
		reporter.Run(ctx)
	}()

	sup := supervisor.New(supervisor.Options{
		Gateway:      bridge,
		Config:       store,
		Sink:         board,
		BasePath:     cfg.BasePath,
		Logger:       log.Default(),
		OnFileClosed: onFileClosed,
	})
	if err := sup.Run(ctx); err != nil {
		log.Printf("[main] supervisor terminou com erro: %v", err)
	}

	select {
	case <-reporterDone:
	case <-time.After(2 * time.Second):
	}
	log.Printf("[main] encerrado: %s", board.Summary().Text)
	return nil
}
