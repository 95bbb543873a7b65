package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.7.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/totegamma/concurrent-client/client"
	"github.com/totegamma/concurrent-client/core"
	"github.com/totegamma/concurrent-client/socket"
	"github.com/totegamma/concurrent-client/timeline"
	"github.com/totegamma/concurrent-client/util"
)

type CustomHandler struct {
	slog.Handler
}

func (h *CustomHandler) Handle(ctx context.Context, r slog.Record) error {

	r.AddAttrs(slog.String("type", "app"))

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		r.AddAttrs(slog.String("traceID", span.SpanContext().TraceID().String()))
		r.AddAttrs(slog.String("spanID", span.SpanContext().SpanID().String()))
	}

	return h.Handler.Handle(ctx, r)
}

func main() {

	handler := &CustomHandler{Handler: slog.NewJSONHandler(os.Stderr, nil)}
	slogger := slog.New(handler)
	slog.SetDefault(slogger)

	configPath := flag.String("config", defaultConfigPath(), "path to config yaml")
	traceEndpoint := flag.String("trace", "", "otlp trace endpoint (disabled when empty)")
	memcachedAddr := flag.String("memcached", "", "memcached address for the entity cache (optional)")
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	config := util.Config{}
	err := config.Load(*configPath)
	if err != nil {
		slog.Error(fmt.Sprintf("Failed to load config: %v", err))
		os.Exit(1)
	}

	slog.Info(fmt.Sprintf("concli %s. I am: %s", util.GetFullVersion(), config.Session.CCAddr))

	if *traceEndpoint != "" {
		cleanup, err := setupTraceProvider(*traceEndpoint, "concli", util.GetVersion())
		if err != nil {
			slog.Error(fmt.Sprintf("Failed to setup trace provider: %v", err))
			os.Exit(1)
		}
		defer cleanup()
	}

	var mc *memcache.Client
	if *memcachedAddr != "" {
		mc = memcache.New(*memcachedAddr)
		defer mc.Close()
	}

	c := client.NewClient(config, mc)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch flag.Arg(0) {
	case "post":
		err = post(ctx, c, config, flag.Args()[1:])
	case "timeline":
		err = showTimeline(ctx, c, flag.Args()[1:])
	case "watch":
		err = watch(config, flag.Args()[1:])
	case "setup":
		err = c.SetupUserstreams(ctx)
	case "entity":
		err = showEntity(ctx, c, flag.Args()[1:])
	case "hosts":
		err = showHosts(ctx, c)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		slog.Error(fmt.Sprintf("%s failed: %v", flag.Arg(0), err))
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if path := os.Getenv("CONCLI_CONFIG"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "concli.yaml"
	}
	return home + "/.config/concli/config.yaml"
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: concli [flags] <command>")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  post <text> [stream...]       post a simple note")
	fmt.Fprintln(os.Stderr, "  timeline <user...>            print recent home timeline elements")
	fmt.Fprintln(os.Stderr, "  watch <stream...>             stream timeline events over websocket")
	fmt.Fprintln(os.Stderr, "  setup                         provision userstreams for the session user")
	fmt.Fprintln(os.Stderr, "  entity <ccaddr>               resolve an entity")
	fmt.Fprintln(os.Stderr, "  hosts                         list known hosts")
}

type simpleNote struct {
	Body string `json:"body"`
}

func post(ctx context.Context, c client.Client, config util.Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("post requires a message body")
	}

	streams := args[1:]
	if len(streams) == 0 {
		homes, err := c.GetUserHomeStreams(ctx, []string{config.Session.CCAddr})
		if err != nil {
			return err
		}
		streams = homes
	}

	created, err := c.CreateMessage(ctx, core.SchemaSimpleNote, simpleNote{Body: args[0]}, streams)
	if err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("posted message %s", created.ID))
	return nil
}

func showTimeline(ctx context.Context, c client.Client, users []string) error {
	if len(users) == 0 {
		return fmt.Errorf("timeline requires at least one user")
	}

	streams, err := c.GetUserHomeStreams(ctx, users)
	if err != nil {
		return err
	}

	fetcher := timeline.NewFetcher(c)
	err = fetcher.Listen(ctx, streams)
	if err != nil {
		return err
	}

	for _, element := range fetcher.Elements() {
		message, err := c.GetMessage(ctx, element.ID, element.Host)
		if err != nil {
			slog.Warn(fmt.Sprintf("failed to load message %s: %v", element.ID, err))
			continue
		}
		note, err := core.DecodePayload[simpleNote](message.Payload)
		if err != nil {
			continue
		}
		fmt.Printf("%s %s: %s\n", message.CDate.Format(time.RFC3339), message.Author, note.Body.Body)
	}

	return nil
}

func watch(config util.Config, streams []string) error {
	if len(streams) == 0 {
		return fmt.Errorf("watch requires at least one stream")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := socket.NewSubscriber(config.Session.Host, config.Session.Scheme != "http")
	for event := range sub.Listen(ctx, streams) {
		line, err := json.Marshal(event)
		if err != nil {
			continue
		}
		fmt.Println(string(line))
	}

	return nil
}

func showEntity(ctx context.Context, c client.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("entity requires a ccaddr")
	}

	entity, err := c.GetEntity(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s role=%s host=%s since=%s\n", entity.ID, entity.Role, entity.Host, entity.CDate.Format(time.RFC3339))
	return nil
}

func showHosts(ctx context.Context, c client.Client) error {
	hosts, err := c.ListHosts(ctx)
	if err != nil {
		return err
	}

	for _, host := range hosts {
		fmt.Printf("%s role=%s\n", host.ID, strings.TrimSpace(host.Role))
	}
	return nil
}

func setupTraceProvider(endpoint string, serviceName string, serviceVersion string) (func(), error) {

	exporter, err := otlptracehttp.New(
		context.Background(),
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)

	if err != nil {
		return nil, err
	}

	resource := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(serviceVersion),
	)

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(resource),
	)
	otel.SetTracerProvider(tracerProvider)

	propagator := propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
	otel.SetTextMapPropagator(propagator)

	cleanup := func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := tracerProvider.Shutdown(ctx); err != nil {
			slog.Error(fmt.Sprintf("Failed to shutdown tracer provider: %v", err))
		}
	}
	return cleanup, nil
}
