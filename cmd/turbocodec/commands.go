package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dbehnke/turbocodec/pkg/codec"
	"github.com/dbehnke/turbocodec/pkg/config"
	"github.com/dbehnke/turbocodec/pkg/logger"
	"github.com/dbehnke/turbocodec/pkg/stats"
	"github.com/dbehnke/turbocodec/pkg/web"
)

func newEncodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode a message into a turbo packet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFilter(cmd, (*codec.Codec).Encode)
		},
	}
	addIOFlags(cmd)
	return cmd
}

func newDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode a turbo packet back into the message",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFilter(cmd, (*codec.Codec).Decode)
		},
	}
	addIOFlags(cmd)
	return cmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/WebSocket codec service",
		RunE:  runServe,
	}
	cmd.Flags().StringP("host", "H", "", "Listen host (overrides config)")
	cmd.Flags().IntP("port", "p", 0, "Listen port (overrides config)")
	return cmd
}

func addIOFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("input", "i", "-", "Input file, - for stdin")
	cmd.Flags().StringP("output", "o", "-", "Output file, - for stdout")
}

// loadConfig loads the file and applies command line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	flags := cmd.Flags()
	if debug, _ := flags.GetBool("debug"); debug {
		cfg.Logging.Level = "debug"
	}
	if flags.Changed("iterations") {
		cfg.Codec.Iterations, _ = flags.GetInt("iterations")
	}
	if flags.Changed("seed") {
		cfg.Codec.Seed, _ = flags.GetUint64("seed")
	}
	if flags.Changed("interleaver") {
		cfg.Codec.Interleaver, _ = flags.GetString("interleaver")
	}
	if flags.Lookup("host") != nil && flags.Changed("host") {
		cfg.Web.Host, _ = flags.GetString("host")
	}
	if flags.Lookup("port") != nil && flags.Changed("port") {
		cfg.Web.Port, _ = flags.GetInt("port")
	}

	return cfg, nil
}

func newLogger(cfg *config.Config, console io.Writer) (*logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		File:        cfg.Logging.File,
		MaxSize:     cfg.Logging.MaxSize,
		MaxBackups:  cfg.Logging.MaxBackups,
		MaxAge:      cfg.Logging.MaxAge,
		Development: cfg.Logging.Level == "debug",
		Output:      console,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return log, nil
}

func newCodec(cfg *config.Config, log *logger.Logger, opts ...codec.Option) (*codec.Codec, error) {
	cc, err := cfg.Codec.ToCodec()
	if err != nil {
		return nil, err
	}
	return codec.New(cc, append([]codec.Option{codec.WithLogger(log)}, opts...)...)
}

// runFilter reads the whole input, transforms it and writes the result.
// Logs go to stderr so stdout carries only data.
func runFilter(cmd *cobra.Command, op func(*codec.Codec, []byte) ([]byte, error)) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer log.Sync()

	c, err := newCodec(cfg, log)
	if err != nil {
		return err
	}

	input, _ := cmd.Flags().GetString("input")
	output, _ := cmd.Flags().GetString("output")

	data, err := readInput(cmd, input)
	if err != nil {
		return err
	}

	result, err := op(c, data)
	if err != nil {
		return err
	}

	return writeOutput(cmd, output, result)
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return data, nil
}

func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "-" {
		if _, err := cmd.OutOrStdout().Write(data); err != nil {
			return fmt.Errorf("failed to write stdout: %w", err)
		}
		return nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer log.Sync()

	configFile, _ := cmd.Flags().GetString("config")
	log.Info("turbocodec starting",
		logger.String("version", Version),
		logger.String("build_time", BuildTime),
		logger.String("config_file", configFile))

	var codecOpts []codec.Option
	if cfg.Metrics.Enabled {
		codecOpts = append(codecOpts, codec.WithMetrics(codec.NewMetrics(prometheus.DefaultRegisterer)))
	}
	c, err := newCodec(cfg, log, codecOpts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var server *web.Server
	serverOpts := []web.Option{web.WithVersion(Version, BuildTime)}

	var reporter *stats.Reporter
	if cfg.Stats.Enabled {
		reporter, err = stats.NewReporter(c, cfg.Stats.Schedule, log,
			stats.WithOnReport(func(r stats.Report) { server.BroadcastReport(r) }))
		if err != nil {
			return err
		}
		serverOpts = append(serverOpts, web.WithReporter(reporter))
	}
	server = web.NewServer(cfg, log, c, serverOpts...)

	g, ctx := errgroup.WithContext(ctx)

	if reporter != nil {
		if err := reporter.Start(); err != nil {
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			reporter.Stop()
			return nil
		})
	}

	g.Go(func() error {
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("web server: %w", err)
		}
		return nil
	})

	err = g.Wait()
	log.Info("turbocodec stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
