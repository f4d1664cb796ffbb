// Command amondawa-server boots the storage layer — loading config,
// provisioning the backend's tables, starting the block-ring maintenance
// worker and write pool — and serves /metrics. Request routing (the HTTP
// API over internal/datastore and internal/auth) is a named collaborator
// concern, per spec's Non-goals.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amondawa/amondawa/internal/amdwconfig"
	"github.com/amondawa/amondawa/internal/datastore"
	"github.com/amondawa/amondawa/internal/kvtable"
	ddbadapter "github.com/amondawa/amondawa/internal/kvtable/dynamodb"
	"github.com/amondawa/amondawa/internal/kvtable/memkv"
	"github.com/amondawa/amondawa/internal/schema"
	"github.com/amondawa/amondawa/pkg/amdwlog"
)

func main() {
	logger := amdwlog.New(envOr("AMDW_LOG_LEVEL", "info"))

	cfg, err := amdwconfig.Load()
	if err != nil {
		level.Error(logger).Log("msg", "invalid configuration", "err", err)
		os.Exit(1)
	}

	store, err := openBackend(envOr("AMDW_BACKEND", "memory"))
	if err != nil {
		level.Error(logger).Log("msg", "failed to open backend", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	now := time.Now().UnixMilli()
	if err := schema.Bootstrap(ctx, store, cfg, now); err != nil {
		level.Error(logger).Log("msg", "failed to bootstrap schema", "err", err)
		os.Exit(1)
	}

	sch, err := schema.Open(ctx, store, cfg, logger, func() int64 { return time.Now().UnixMilli() })
	if err != nil {
		level.Error(logger).Log("msg", "failed to open schema", "err", err)
		os.Exit(1)
	}
	sch.StartMaintenance()
	defer sch.Shutdown()

	_ = datastore.Open(sch, cfg)

	addr := envOr("AMDW_METRICS_ADDR", ":9090")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		level.Info(logger).Log("msg", "serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			level.Error(logger).Log("msg", "metrics server exited", "err", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	level.Info(logger).Log("msg", "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		level.Error(logger).Log("msg", "error shutting down metrics server", "err", err)
	}
}

func openBackend(kind string) (kvtable.Table, error) {
	switch kind {
	case "memory":
		return memkv.New(), nil
	case "dynamodb":
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			return nil, fmt.Errorf("loading aws config: %w", err)
		}
		return ddbadapter.New(dynamodb.NewFromConfig(awsCfg)), nil
	default:
		return nil, fmt.Errorf("unknown AMDW_BACKEND %q (want memory or dynamodb)", kind)
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
