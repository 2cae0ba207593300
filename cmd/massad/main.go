package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Mauryavnshi/massa/config"
	"github.com/Mauryavnshi/massa/core/types"
	"github.com/Mauryavnshi/massa/crypto"
	"github.com/Mauryavnshi/massa/network"
	"github.com/Mauryavnshi/massa/observability/logging"
	"github.com/Mauryavnshi/massa/observability/otel"
	"github.com/Mauryavnshi/massa/protocol"
)

// periodLength is the wall-clock duration of one chain period, used to
// derive the expiry clock for inbound operations.
const periodLength = 16 * time.Second

// consensusLog is a placeholder consensus sink: it records what a full node
// would hand to block validation.
type consensusLog struct {
	logger *slog.Logger
}

func (c *consensusLog) RegisterBlockHeader(id types.BlockID, header *types.Header) {
	c.logger.Info("block header registered",
		slog.String("block_id", id.Hex()),
		slog.Uint64("period", header.Period),
	)
}

func (c *consensusLog) RegisterBlock(id types.BlockID, header *types.Header, ops []types.OperationID) {
	c.logger.Info("block registered",
		slog.String("block_id", id.Hex()),
		slog.Int("operations", len(ops)),
	)
}

// poolLog is a placeholder operation pool sink.
type poolLog struct {
	logger *slog.Logger
}

func (p *poolLog) AddOperations(ops []*types.Operation) {
	p.logger.Info("operations pooled", slog.Int("count", len(ops)))
}

func main() {
	configPath := flag.String("config", "./config.toml", "path to the configuration file")
	env := flag.String("env", "dev", "deployment environment label")
	flag.Parse()

	logger := logging.Setup("massad", *env)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := otel.Init(ctx, otel.Config{
		ServiceName: "massad",
		Environment: *env,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		Headers:     otel.ParseHeaders(cfg.OTLPHeaders),
	})
	if err != nil {
		logger.Error("init telemetry", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", slog.String("error", err.Error()))
		}
	}()

	identity, err := crypto.LoadOrCreateIdentity(cfg.IdentityFile)
	if err != nil {
		logger.Error("load identity", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("node identity", logging.PeerField("peer", identity.PeerID))

	store, err := protocol.OpenPeerstore(filepath.Join(cfg.DataDir, "peerstore"))
	if err != nil {
		logger.Error("open peerstore", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	peers := protocol.NewPeerDB(logger)
	if err := peers.AttachStore(store); err != nil {
		logger.Error("attach peerstore", slog.String("error", err.Error()))
		os.Exit(1)
	}

	genesis, err := cfg.Genesis()
	if err != nil {
		logger.Error("decode genesis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	registry := network.NewRegistry(network.Config{
		ListenAddress: cfg.ListenAddress,
		ChainID:       cfg.ChainID,
		GenesisHash:   genesis,
		ClientVersion: "massad/0.1.0",
		MaxPeers:      cfg.MaxPeers,
	}, identity, logger)

	epoch := time.Now()
	currentPeriod := func() uint64 {
		return uint64(time.Since(epoch) / periodLength)
	}

	worker := protocol.NewWorker(protocol.Config{
		UnbanEveryoneInterval: cfg.UnbanEveryoneInterval.Duration,
		AskTimeout:            cfg.AskTimeout.Duration,
		RetryInterval:         cfg.RetryInterval.Duration,
		MaxPropagationRecords: cfg.MaxPropagationRecords,
		MaxOperationBatch:     cfg.MaxOperationBatch,
	}, peers, registry,
		&consensusLog{logger: logger},
		&poolLog{logger: logger},
		nil,
		currentPeriod,
		logger,
	)

	registry.SetHandler(worker)
	registry.SetPeerEvents(worker)
	registry.SetReputation(peers)

	if err := registry.Start(); err != nil {
		logger.Error("start transport", slog.String("error", err.Error()))
		os.Exit(1)
	}
	worker.Start()

	for _, addr := range cfg.Bootnodes {
		if err := registry.Dial(addr); err != nil {
			logger.Warn("dial bootnode", slog.String("error", err.Error()))
		}
	}

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics server", slog.String("error", err.Error()))
			}
		}()
	}

	logger.Info("massad started",
		slog.String("network", cfg.NetworkName),
		slog.String("listen", cfg.ListenAddress),
	)

	<-ctx.Done()
	logger.Info("shutting down")

	worker.Stop()
	registry.Stop()
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}
}
