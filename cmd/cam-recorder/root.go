// cmd/cam-recorder/root.go
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "cam-recorder",
	Short: "Gravação contínua multi-câmera com rotação de arquivos",
	Long: `cam-recorder descobre as câmeras do bridge, mantém uma sessão de
gravação por câmera e rotaciona os arquivos em intervalos fixos.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loadEnv()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "arquivo .env (default: .env no diretório atual)")
}

// loadEnv carrega o .env; se não existir, só loga aviso.
func loadEnv() {
	var err error
	if envFile != "" {
		err = godotenv.Load(envFile)
	} else {
		err = godotenv.Load()
	}
	if err != nil {
		log.Printf("[main] aviso: não foi possível carregar .env: %v", err)
		return
	}
	log.Printf("[main] .env carregado com sucesso")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
