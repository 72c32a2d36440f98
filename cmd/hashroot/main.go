// Command hashroot runs the hash aggregation daemon.
//
// Usage:
//
//	hashroot -config hashroot.yaml        run until SIGINT/SIGTERM
//	hashroot -config hashroot.yaml -once  run one cycle and exit
//	hashroot -config hashroot.yaml -menu  print the stored snapshot menu
//	hashroot -verify root_hash.json       recompute and check a snapshot's root
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/hashroot"
	"github.com/hupe1980/hashroot/blobstore"
	badgerstore "github.com/hupe1980/hashroot/blobstore/badger"
	miniostore "github.com/hupe1980/hashroot/blobstore/minio"
	s3store "github.com/hupe1980/hashroot/blobstore/s3"
	"github.com/hupe1980/hashroot/codec"
	"github.com/hupe1980/hashroot/config"
	"github.com/hupe1980/hashroot/internal/telemetry"
	"github.com/hupe1980/hashroot/resource"
	"github.com/hupe1980/hashroot/snapshot"
	"github.com/hupe1980/hashroot/source"
	"github.com/hupe1980/hashroot/syncer"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config file")
		once       = flag.Bool("once", false, "run a single cycle and exit")
		menu       = flag.Bool("menu", false, "print the stored snapshot menu and exit")
		verify     = flag.String("verify", "", "verify a snapshot file and exit")
	)
	flag.Parse()

	if *verify != "" {
		if err := verifyFile(*verify, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *once, *menu); err != nil {
		logger.ErrorContext(context.Background(), "hashroot failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) (*hashroot.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	if cfg.Format == "json" {
		return hashroot.NewJSONLogger(level), nil
	}
	return hashroot.NewTextLogger(level), nil
}

func run(ctx context.Context, cfg config.Config, logger *hashroot.Logger, once, menu bool) error {
	compression, err := snapshot.ParseCompression(cfg.Sink.Compression)
	if err != nil {
		return err
	}
	docCodec, ok := codec.ByName(cfg.Sink.Codec)
	if !ok {
		return fmt.Errorf("unknown sink.codec %q", cfg.Sink.Codec)
	}

	store, closeStore, err := openSink(ctx, cfg.Sink)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.WarnContext(context.Background(), "closing sink", "error", err)
		}
	}()

	tp, shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.Endpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	metrics, stopMetrics, err := newMetrics(cfg.Telemetry, logger)
	if err != nil {
		return err
	}
	defer stopMetrics()

	ctrl := resource.NewController(resource.Config{
		Parallelism:     cfg.Scheduler.Parallelism,
		BatchSize:       cfg.Scheduler.BatchSize,
		SyncMinInterval: cfg.Sync.MinInterval,
	})

	opts := []hashroot.Option{
		hashroot.WithOwner(cfg.Owner),
		hashroot.WithMaxEntries(cfg.MaxEntries),
		hashroot.WithGroupSize(cfg.GroupSize),
		hashroot.WithTTL(cfg.TTL),
		hashroot.WithLogger(logger),
		hashroot.WithMetricsCollector(metrics),
		hashroot.WithTracerProvider(tp),
		hashroot.WithController(ctrl),
	}
	if len(cfg.ForbiddenLabels) > 0 {
		opts = append(opts, hashroot.WithForbiddenLabels(cfg.ForbiddenLabels...))
	}

	engine, err := hashroot.New(opts...)
	if err != nil {
		return err
	}
	defer engine.Close()

	exportOpts := []hashroot.ExporterOption{
		hashroot.WithCodec(docCodec),
		hashroot.WithCompression(compression),
		hashroot.WithHistory(cfg.Sink.History),
	}

	if menu {
		exporter := hashroot.NewExporter(engine, store, exportOpts...)
		defer exporter.Close()

		snap, err := exporter.Load(ctx)
		if werr := snapshot.WriteMenu(os.Stdout, snap); werr != nil {
			return werr
		}
		return err
	}

	syncers, err := newSyncers(ctx, cfg.Sync)
	if err != nil {
		return err
	}

	exporter := hashroot.NewExporter(engine, store, append(exportOpts,
		hashroot.WithSyncers(syncers...),
		hashroot.WithSyncRetries(cfg.Sync.Retries),
	)...)
	defer exporter.Close()

	sources, err := newSources(cfg.Source, logger)
	if err != nil {
		return err
	}

	var monitor resource.Monitor
	if cfg.Scheduler.Monitor {
		monitor = resource.NewCPUMonitor(cfg.Scheduler.MonitorInterval)
	}

	daemon := hashroot.NewDaemon(engine, exporter, hashroot.DaemonConfig{
		Requester: cfg.Requester,
		Interval:  cfg.Interval,
		Sources:   sources,
		Monitor:   monitor,
	})

	logger.InfoContext(ctx, "hashroot started",
		"sink", cfg.Sink.Kind,
		"sources", len(sources),
		"syncers", len(syncers),
		"interval", cfg.Interval,
	)

	if once {
		res, err := daemon.RunOnce(ctx)
		fmt.Println(res.RootHash)
		return err
	}

	if err := daemon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.InfoContext(context.Background(), "hashroot stopped")
	return nil
}

func openSink(ctx context.Context, cfg config.SinkConfig) (blobstore.BlobStore, func() error, error) {
	noClose := func() error { return nil }

	switch cfg.Kind {
	case "local":
		store, err := blobstore.NewLocalStore(cfg.Dir)
		if err != nil {
			return nil, nil, hashroot.NewStorageInitError(cfg.Kind, err)
		}
		return store, store.Close, nil
	case "badger":
		store, err := badgerstore.Open(cfg.Dir)
		if err != nil {
			return nil, nil, hashroot.NewStorageInitError(cfg.Kind, err)
		}
		return store, store.Close, nil
	case "minio":
		client, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.Secure,
			Region: cfg.Region,
		})
		if err != nil {
			return nil, nil, hashroot.NewStorageInitError(cfg.Kind, err)
		}
		store := miniostore.NewStore(client, cfg.Bucket, cfg.Prefix)
		if err := store.EnsureBucket(ctx, cfg.Region); err != nil {
			return nil, nil, hashroot.NewStorageInitError(cfg.Kind, err)
		}
		return store, noClose, nil
	case "s3":
		opts := []s3store.Option{s3store.WithPrefix(cfg.Prefix)}
		if cfg.Region != "" {
			opts = append(opts, s3store.WithRegion(cfg.Region))
		}
		if cfg.Endpoint != "" {
			opts = append(opts, s3store.WithEndpoint(cfg.Endpoint))
		}
		store, err := s3store.New(ctx, cfg.Bucket, opts...)
		if err != nil {
			return nil, nil, hashroot.NewStorageInitError(cfg.Kind, err)
		}
		return store, noClose, nil
	default:
		return nil, nil, hashroot.NewStorageInitError(cfg.Kind, errors.New("unknown sink kind"))
	}
}

func newSyncers(ctx context.Context, cfg config.SyncConfig) ([]syncer.Syncer, error) {
	var out []syncer.Syncer

	if cfg.Git.Enabled {
		out = append(out, &syncer.Git{
			RepoDir: cfg.Git.RepoDir,
			Remote:  cfg.Git.Remote,
			Branch:  cfg.Git.Branch,
		})
	}

	if cfg.DynamoDB.Enabled {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.DynamoDB.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.DynamoDB.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.DynamoDB.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.DynamoDB.Endpoint)
			}
		})
		out = append(out, syncer.NewDynamoDB(client, cfg.DynamoDB.Table, cfg.DynamoDB.Node))
	}

	return out, nil
}

func newSources(cfg config.SourceConfig, logger *hashroot.Logger) ([]source.Source, error) {
	var out []source.Source

	if cfg.QueueDir != "" {
		dir, err := source.NewDir(cfg.QueueDir, source.WithRejectHandler(func(path string, err error) {
			logger.Warn("queue file rejected", "path", path, "error", err)
		}))
		if err != nil {
			return nil, err
		}
		out = append(out, dir)
	}
	if cfg.Generate > 0 {
		out = append(out, source.NewGenerator(cfg.Generate, nil))
	}

	return out, nil
}

func newMetrics(cfg config.TelemetryConfig, logger *hashroot.Logger) (hashroot.MetricsCollector, func(), error) {
	if cfg.MetricsAddr == "" {
		return &hashroot.BasicMetricsCollector{}, func() {}, nil
	}

	collector, err := telemetry.NewPrometheusCollector(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return collector, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func verifyFile(path string, w io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	snap, err := snapshot.Decode(data, snapshot.DetectCompression(path))
	if err != nil {
		return err
	}
	if err := snapshot.Verify(snap); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "OK %s (%d entries)\n", snap.RootHash, len(snap.Menu))
	return err
}
