// cmd/cam-recorder/service.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

// program implementa service.Interface.
type program struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (p *program) Start(s service.Service) error {
	// Start não pode bloquear
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		if err := runRecorder(ctx); err != nil {
			log.Printf("[service] gravador terminou com erro: %v", err)
			os.Exit(1)
		}
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	log.Println("[service] parando...")
	if p.cancel != nil {
		p.cancel()
	}
	select {
	case <-p.done:
	case <-time.After(30 * time.Second):
		log.Println("[service] sessões não terminaram a tempo")
	}
	return nil
}

var serviceCmd = &cobra.Command{
	Use:       "service [run|install|uninstall|start|stop|restart]",
	Short:     "Roda ou controla o gravador como serviço do sistema",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"run", "install", "uninstall", "start", "stop", "restart"},
	RunE: func(cmd *cobra.Command, args []string) error {
		action := "run"
		if len(args) == 1 {
			action = args[0]
		}

		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		svcConfig := &service.Config{
			Name:        "cam-recorder",
			DisplayName: "Camera Recorder",
			Description: "Gravação contínua das câmeras do bridge com rotação de arquivos",
			// o .env é lido do diretório de trabalho
			WorkingDirectory: wd,
			Arguments:        []string{"service", "run"},
		}
		if envFile != "" {
			svcConfig.Arguments = append(svcConfig.Arguments, "--env-file", envFile)
		}

		prg := &program{}
		s, err := service.New(prg, svcConfig)
		if err != nil {
			return err
		}

		if action != "run" {
			if err := service.Control(s, action); err != nil {
				return fmt.Errorf("falha em %s: %w", action, err)
			}
			fmt.Printf("Service action '%s' completed successfully.\n", action)
			return nil
		}

		logger, err := s.Logger(nil)
		if err != nil {
			return err
		}
		if err := s.Run(); err != nil {
			_ = logger.Error(err)
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serviceCmd)
}
