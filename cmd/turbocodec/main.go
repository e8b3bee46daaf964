package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "turbocodec",
		Short: "Rate-1/3 turbo code encoder and decoder",
		Long: `turbocodec protects byte messages with a parallel concatenated
convolutional (turbo) code and recovers them with iterative log-MAP
decoding. It runs as a one-shot filter or as an HTTP/WebSocket service.`,
		Version:       fmt.Sprintf("%s (built at %s)", Version, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Configuration file path (default: search ./, ./configs, /etc/turbocodec)")
	flags.Bool("debug", false, "Enable debug logging (overrides config)")
	flags.Int("iterations", 0, "Turbo decoding iterations (overrides config)")
	flags.Uint64("seed", 0, "Interleaver seed (overrides config)")
	flags.String("interleaver", "", "Interleaver algorithm: mt19937 or splitmix64 (overrides config)")

	rootCmd.AddCommand(newEncodeCmd(), newDecodeCmd(), newServeCmd())
	return rootCmd
}
