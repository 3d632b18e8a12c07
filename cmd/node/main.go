package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/chainkit/node/internal/chain"
	"github.com/chainkit/node/internal/config"
	"github.com/chainkit/node/internal/crypto"
	"github.com/chainkit/node/internal/executor"
	"github.com/chainkit/node/internal/kv/leveldb"
	"github.com/chainkit/node/internal/logging"
	"github.com/chainkit/node/internal/metrics"
	"github.com/chainkit/node/internal/producer"
	"github.com/chainkit/node/internal/state"
	"github.com/chainkit/node/internal/txpool"
	"github.com/chainkit/node/internal/txservice"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "./config.yaml", "path to the node's YAML configuration")
	proposerKey := flag.String("proposer-key", "", "hex-encoded secp256k1 private key for the block proposer (required)")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus metrics at this address (e.g. :9090)")
	flag.Parse()

	if *proposerKey == "" {
		fmt.Fprintln(os.Stderr, "chainkit-node: -proposer-key is required")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chainkit-node: loading config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Node.LogLevel)

	proposer, err := crypto.KeypairFromHex(*proposerKey)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid proposer key")
	}

	stateStore, err := leveldb.Open(filepath.Join(cfg.Node.DataDir, "state"))
	if err != nil {
		log.Fatal().Err(err).Msg("opening state store")
	}
	chainStore, err := leveldb.Open(filepath.Join(cfg.Node.DataDir, "chaindata"))
	if err != nil {
		log.Fatal().Err(err).Msg("opening chain store")
	}

	repo, err := state.OpenRepository(stateStore)
	if err != nil {
		log.Fatal().Err(err).Msg("opening state repository")
	}
	manager := state.NewManager(repo)

	store, err := chain.Open(chainStore)
	if err != nil {
		log.Fatal().Err(err).Msg("opening chain store")
	}

	if latest, ok, err := store.FindLatest(); err != nil {
		log.Fatal().Err(err).Msg("reading chain tip")
	} else if ok {
		if err := repo.SetStateRoot(latest.Header.StateRoot); err != nil {
			log.Fatal().Err(err).Msg("replaying state against persisted chain tip")
		}
	}

	pool := txpool.New()

	var limiter *rate.Limiter
	if cfg.Node.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Node.RateLimitRPS), cfg.Node.RateLimitRPS)
	}
	service := txservice.New(repo, pool, cfg.Chain.ChainID, limiter, logging.Component(log, "txservice"))

	m := metrics.New(prometheus.DefaultRegisterer)
	service.SetMetrics(m)

	prod := producer.New(store, manager, pool, executor.Transfer{}, cfg.Genesis, cfg.Chain, proposer.Address, logging.Component(log, "producer"))
	prod.SetMetrics(m)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			log.Info().Str("addr", *metricsAddr).Msg("serving metrics")
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("metrics server shutdown failed")
			}
		}()
	}

	log.Info().
		Uint64("chain_id", cfg.Chain.ChainID).
		Str("proposer", proposer.Address.Hex()).
		Str("data_dir", cfg.Node.DataDir).
		Msg("chainkit node starting")

	prod.Run(ctx)

	log.Info().Msg("chainkit node stopped")
}
