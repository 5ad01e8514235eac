// Voicegate is a real-time voice gateway: clients stream recorded
// utterances over a WebSocket and receive synthesized spoken replies.
//
// Usage:
//
//	voicegate [serve] [flags]
//	voicegate --config /path/to/voicegate.yaml
//	voicegate version
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	_ "github.com/nadzzz/voicegate/docs"
	"github.com/nadzzz/voicegate/internal/audio"
	"github.com/nadzzz/voicegate/internal/config"
	"github.com/nadzzz/voicegate/internal/gateway"
	"github.com/nadzzz/voicegate/internal/health"
	"github.com/nadzzz/voicegate/internal/interpreter"
	localinterp "github.com/nadzzz/voicegate/internal/interpreter/local"
	openaiinterp "github.com/nadzzz/voicegate/internal/interpreter/openai"
	"github.com/nadzzz/voicegate/internal/metrics"
	"github.com/nadzzz/voicegate/internal/pipeline"
	"github.com/nadzzz/voicegate/internal/session"
	"github.com/nadzzz/voicegate/internal/tts"
	openaitts "github.com/nadzzz/voicegate/internal/tts/openai"
	"github.com/nadzzz/voicegate/internal/tts/piper"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configFile string

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the WebSocket voice gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), v, configFile)
		},
	}

	root := &cobra.Command{
		Use:           "voicegate",
		Short:         "Real-time voice gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to config file (e.g. configs/voicegate.yaml)")
	root.PersistentFlags().String("host", "", "listen host (overrides server.host)")
	root.PersistentFlags().Int("port", 0, "listen port (overrides server.port)")
	_ = v.BindPFlag("server.host", root.PersistentFlags().Lookup("host"))
	_ = v.BindPFlag("server.port", root.PersistentFlags().Lookup("port"))

	root.AddCommand(serve, &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "voicegate %s\n", version)
		},
	})
	return root
}

func run(parent context.Context, v *viper.Viper, configFile string) error {
	if parent == nil {
		parent = context.Background()
	}

	cfg, err := config.Load(v, configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return err
	}

	config.SetupLogging(cfg.Logging)
	slog.Info("voicegate starting", "version", version)

	// Create root context with signal handling for graceful shutdown.
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	transcriber, err := newTranscriber(cfg)
	if err != nil {
		return err
	}
	replier, err := newReplier(cfg)
	if err != nil {
		return err
	}
	synthesizer, err := newSynthesizer(cfg)
	if err != nil {
		return err
	}
	slog.Info("backends selected",
		"transcription", transcriber.Name(),
		"reply", replier.Name(),
		"synthesis", synthesizer.Name())

	m := metrics.New("voicegate")
	proc := pipeline.New(pipeline.Config{
		Persona:      cfg.Pipeline.Persona,
		ApologyText:  cfg.Pipeline.ApologyText,
		FailureText:  cfg.Pipeline.FailureText,
		Voice:        cfg.Pipeline.Voice,
		Format:       cfg.Pipeline.Format,
		Language:     cfg.Local.Language,
		StageTimeout: cfg.Pipeline.StageTimeout,
	}, audio.NewNormalizer(audio.WithFFmpeg(cfg.Audio.FFmpegPath)), transcriber, replier, synthesizer,
		pipeline.WithMetrics(m),
		pipeline.WithLogger(slog.Default()),
	)

	var greeting session.Greeter
	if cfg.Session.GreetingText != "" {
		greeting = pipeline.NewGreeting(cfg.Session.GreetingText, proc)
	}

	var gw *gateway.Server
	hs := health.New(cfg.Server.Host, cfg.Server.GRPCPort, func() int { return gw.Registry().Count() })
	gw = gateway.New(gateway.Options{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Session: session.Config{
			ContextTurns:      cfg.Session.ContextTurns,
			GreetingDelay:     cfg.Session.GreetingDelay,
			MaxMessageBytes:   cfg.Session.MaxMessageBytes,
			PingInterval:      cfg.Session.PingInterval,
			WriteTimeout:      cfg.Session.WriteTimeout,
			ReadTimeout:       cfg.Session.ReadTimeout,
			OutboundQueueSize: cfg.Session.OutboundQueueSize,
		},
		Processor: proc,
		Greeting:  greeting,
		Metrics:   m,
		Health:    hs,
		Logger:    slog.Default(),
		OnListening: func(addr net.Addr) {
			hs.SetReady(true)
			slog.Info("voicegate ready", "addr", addr.String(), "grpc_addr", hs.Addr())
		},
	})

	// Bind gRPC health first so readiness only flips once both listeners exist.
	grpcLis, err := hs.Listen()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if grpcLis != nil {
		g.Go(func() error { return hs.Serve(gctx, grpcLis) })
	}
	g.Go(func() error { return gw.Start(gctx) })

	<-gctx.Done()
	hs.SetReady(false)
	slog.Info("shutdown signal received, draining...")

	if err := g.Wait(); err != nil {
		slog.Error("voicegate stopped with error", "error", err)
		return err
	}
	slog.Info("voicegate stopped")
	return nil
}

func newTranscriber(cfg *config.Config) (interpreter.Transcriber, error) {
	switch cfg.Transcription.Backend {
	case "openai":
		return openaiinterp.New(cfg.OpenAI), nil
	case "local":
		return localinterp.New(cfg.Local), nil
	case "mock":
		return interpreter.NewMock("hello"), nil
	default:
		return nil, fmt.Errorf("unknown transcription backend %q", cfg.Transcription.Backend)
	}
}

func newReplier(cfg *config.Config) (interpreter.Replier, error) {
	switch cfg.Reply.Backend {
	case "openai":
		return openaiinterp.New(cfg.OpenAI), nil
	case "local":
		return localinterp.New(cfg.Local), nil
	case "mock":
		return interpreter.NewMock(""), nil
	default:
		return nil, fmt.Errorf("unknown reply backend %q", cfg.Reply.Backend)
	}
}

func newSynthesizer(cfg *config.Config) (tts.Synthesizer, error) {
	names := append([]string{cfg.Synthesis.Backend}, cfg.Synthesis.Fallback...)
	backends := make([]tts.Synthesizer, 0, len(names))
	for _, name := range names {
		switch name {
		case "openai":
			backends = append(backends, openaitts.New(cfg.OpenAI))
		case "piper":
			backends = append(backends, piper.New(cfg.Piper))
		case "mock":
			backends = append(backends, tts.NewMock())
		default:
			return nil, fmt.Errorf("unknown synthesis backend %q", name)
		}
	}
	if len(backends) == 1 {
		return backends[0], nil
	}
	return tts.NewChain(backends...)
}
