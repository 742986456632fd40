// Command toolloop sends one message to a chat model, lets the model call the demo tools
// and prints the final answer.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/skosovsky/toolloop"
	"github.com/skosovsky/toolloop/config"
	"github.com/skosovsky/toolloop/ext/toolloopotel"
	"github.com/skosovsky/toolloop/transport/anthropicchat"
	"github.com/skosovsky/toolloop/transport/openaichat"
)

const serviceName = "toolloop"

// TransportFactory builds the chat transport for a resolved configuration.
type TransportFactory func(cfg *config.Config) (toolloop.Transport, error)

// Options carries the dependencies of the root command; zero fields take process defaults.
type Options struct {
	TransportFactory TransportFactory
	Stdout           io.Writer
	Stderr           io.Writer
}

type flags struct {
	configPath    string
	provider      string
	model         string
	maxIterations int
	verbose       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(Options{}).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd(opts Options) *cobra.Command {
	if opts.TransportFactory == nil {
		opts.TransportFactory = newTransport
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	var f flags
	cmd := &cobra.Command{
		Use:          "toolloop <message>",
		Short:        "Ask a chat model a question it can answer with tools",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, f)
			if err != nil {
				return err
			}
			answer, err := run(cmd.Context(), cfg, opts, args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(opts.Stdout, "Final result:", answer)
			return err
		},
	}
	cmd.SetOut(opts.Stdout)
	cmd.SetErr(opts.Stderr)
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "path to a YAML config file")
	cmd.Flags().StringVar(&f.provider, "provider", "", "chat provider: openai or anthropic")
	cmd.Flags().StringVarP(&f.model, "model", "m", "", "model name (provider default when empty)")
	cmd.Flags().IntVar(&f.maxIterations, "max-iterations", config.DefaultMaxIterations, "tool-turn budget; at most n+1 model requests")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "debug logging to stderr")
	return cmd
}

// resolveConfig loads the config file and environment, then applies the flags that were set.
func resolveConfig(cmd *cobra.Command, f flags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("provider") {
		cfg.Provider = f.provider
	}
	if cmd.Flags().Changed("model") {
		cfg.Model = f.model
	}
	if cmd.Flags().Changed("max-iterations") {
		cfg.MaxIterations = f.maxIterations
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = f.verbose
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config, opts Options, message string) (answer string, err error) {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(opts.Stderr, &slog.HandlerOptions{Level: level}))

	transport, err := opts.TransportFactory(cfg)
	if err != nil {
		return "", fmt.Errorf("create transport: %w", err)
	}

	middlewares := []toolloop.Middleware{toolloop.WithLogging(logger)}
	if cfg.OTLPEndpoint != "" {
		tp, tpErr := newTracerProvider(ctx, cfg.OTLPEndpoint)
		if tpErr != nil {
			return "", tpErr
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			err = errors.Join(err, tp.Shutdown(shutdownCtx))
		}()
		otel.SetTracerProvider(tp)
		transport = toolloopotel.WrapTransport(transport, toolloopotel.WithTracerProvider(tp), toolloopotel.WithModel(cfg.Model))
		middlewares = append(middlewares, toolloopotel.Middleware(toolloopotel.WithTracerProvider(tp)))
	}

	tools, err := demoTools(logger)
	if err != nil {
		return "", fmt.Errorf("build tools: %w", err)
	}
	reg := toolloop.NewRegistry(toolloop.WithDefaultTimeout(30 * time.Second))
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = reg.Shutdown(shutdownCtx)
	}()
	for _, t := range tools {
		if err := reg.Register(t); err != nil {
			return "", err
		}
	}
	reg.Use(middlewares...)

	loopOpts := []toolloop.LoopOption{
		toolloop.WithMaxIterations(cfg.MaxIterations),
		toolloop.WithLogger(logger),
	}
	if cfg.SystemPrompt != "" {
		loopOpts = append(loopOpts, toolloop.WithSystemPrompt(cfg.SystemPrompt))
	}
	logger.DebugContext(ctx, "starting run", "provider", cfg.Provider, "model", cfg.Model, "max_iterations", cfg.MaxIterations)
	return toolloop.NewLoop(transport, reg, loopOpts...).Run(ctx, message)
}

func newTransport(cfg *config.Config) (toolloop.Transport, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		t, err := anthropicchat.New(anthropicchat.Config{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	case config.ProviderOpenAI:
		t, err := openaichat.New(openaichat.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// newTracerProvider exports spans over OTLP/HTTP. A bare host:port endpoint is sent
// over plain HTTP; a full URL is used as given.
func newTracerProvider(ctx context.Context, endpoint string) (*sdktrace.TracerProvider, error) {
	var clientOpts []otlptracehttp.Option
	if strings.Contains(endpoint, "://") {
		clientOpts = append(clientOpts, otlptracehttp.WithEndpointURL(endpoint))
	} else {
		clientOpts = append(clientOpts, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	}
	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(clientOpts...))
	if err != nil {
		return nil, fmt.Errorf("otel: create exporter: %w", err)
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("otel: create resource: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}
