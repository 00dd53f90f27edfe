// cmd/cam-recorder/select.go
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sua-org/cam-recorder/internal/core"
	"github.com/sua-org/cam-recorder/internal/quality"
)

var (
	selTiers   string
	selBitrate int
	selFixed   bool
	selQuality string
)

// selectCmd mostra qual stream o gravador pediria para um dispositivo.
var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Mostra o stream escolhido para as capacidades e a qualidade dadas",
	Example: `  cam-recorder select --tiers '{"0":{},"1":{}}' --quality HD
  cam-recorder select --bitrate 2048`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		caps := core.Capabilities{FixedStream: selFixed, Tiers: selTiers, Bitrate: selBitrate}
		q := core.ParseQuality(selQuality)
		fmt.Printf("quality=%s stream=%s\n", q, quality.Select(caps, q))
		return nil
	},
}

func init() {
	selectCmd.Flags().StringVar(&selTiers, "tiers", "", "JSON com os tiers do dispositivo")
	selectCmd.Flags().IntVar(&selBitrate, "bitrate", -1, "bitrate legado (-1 = não informado)")
	selectCmd.Flags().BoolVar(&selFixed, "fixed", false, "dispositivo de stream fixo")
	selectCmd.Flags().StringVar(&selQuality, "quality", "HD", "AUTO|HD|SD|LOW")
	rootCmd.AddCommand(selectCmd)
}
