// Package main provides the solverd daemon - the off-chain AGI intent solver.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/semantic-layer/agi-solver/internal/aggregator"
	"github.com/semantic-layer/agi-solver/internal/config"
	"github.com/semantic-layer/agi-solver/internal/contracts/warehouse"
	"github.com/semantic-layer/agi-solver/internal/rpc"
	"github.com/semantic-layer/agi-solver/internal/solver"
	"github.com/semantic-layer/agi-solver/internal/storage"
	"github.com/semantic-layer/agi-solver/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.agi-solver", "Data directory")
		apiAddr     = flag.String("api", "", "JSON-RPC API address, overrides config")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error), overrides config")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	// Set up logging (initial, may be overridden by config)
	log := logging.New(&logging.Config{
		Level:      "info",
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("solverd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	// Load or create config file
	cfg, err := config.Load(*dataDir)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}
	cfg.Storage.DataDir = *dataDir

	// CLI flags take precedence over the config file
	if *apiAddr != "" {
		cfg.API.ListenAddr = *apiAddr
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	log = logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	log.Info("Config loaded", "path", config.Path(*dataDir))

	// Startup secrets come from the environment only
	secrets, err := config.LoadSecrets()
	if err != nil {
		log.Fatal("Missing configuration", "error", err)
	}

	if cfg.Chain.WarehouseAddress == "" {
		log.Fatal("warehouse_address not configured", "path", config.Path(*dataDir))
	}

	privateKey, err := crypto.HexToECDSA(trimHexPrefix(secrets.PrivateKey))
	if err != nil {
		log.Fatal("Invalid solver private key", "error", err)
	}

	// Initialize storage
	store, err := storage.New(&storage.Config{DataDir: cfg.Storage.DataDir})
	if err != nil {
		log.Fatal("Failed to initialize storage", "error", err)
	}
	defer store.Close()
	log.Info("Storage initialized", "path", config.ExpandPath(cfg.Storage.DataDir))

	// Connect to the chain and bind the escrow contract
	chain, err := warehouse.NewClient(&warehouse.Config{
		RPCURL:              secrets.RPCURL,
		WSRPCURL:            secrets.WSRPCURL,
		ContractAddress:     common.HexToAddress(cfg.Chain.WarehouseAddress),
		PrivateKey:          privateKey,
		ReceiptPollInterval: cfg.Chain.ReceiptPollInterval,
		ReceiptMaxPolls:     cfg.Chain.ReceiptMaxPolls,
	})
	if err != nil {
		log.Fatal("Failed to connect to chain", "error", err)
	}
	defer chain.Close()

	if cfg.Chain.ChainID != 0 && chain.ChainID().Uint64() != cfg.Chain.ChainID {
		log.Fatal("Chain ID mismatch",
			"configured", cfg.Chain.ChainID, "node", chain.ChainID().Uint64())
	}

	log.Info("Chain connected",
		"chain_id", chain.ChainID().String(),
		"contract", chain.ContractAddress().Hex(),
		"solver", chain.SolverAddress().Hex())

	// DEX aggregator client
	swapper := aggregator.NewClient(&aggregator.Config{
		BaseURL:        cfg.Aggregator.BaseURL,
		APIKey:         os.Getenv("AGGREGATOR_API_KEY"),
		Slippage:       cfg.Aggregator.Slippage,
		RequestTimeout: cfg.Aggregator.RequestTimeout,
	})

	// Queue manager
	queue := solver.NewQueueManager(chain, swapper, store, &solver.Config{
		CheckInterval: cfg.Queue.CheckInterval,
		Policy: solver.RetryPolicy{
			RetryDelay:     cfg.Queue.RetryDelay,
			SwapRetryDelay: cfg.Queue.SwapRetryDelay,
			MaxRetries:     cfg.Queue.MaxRetries,
		},
	})
	log.Info("Queue manager initialized", "check_interval", cfg.Queue.CheckInterval)

	// Operator RPC server
	var rpcServer *rpc.Server
	if cfg.API.ListenAddr != "" {
		rpcServer = rpc.NewServer(queue, store)
		if err := rpcServer.Start(cfg.API.ListenAddr); err != nil {
			log.Fatal("Failed to start RPC server", "error", err)
		}

		queue.OnEvent(func(e solver.Event) {
			rpcServer.WSHub().Broadcast(e.Type, map[string]interface{}{
				"order_id": e.OrderID,
			})
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Admit the on-chain backlog, then watch for new intents
	admission := solver.NewAdmission(chain, queue)
	if err := admission.Backlog(ctx); err != nil {
		log.Error("Backlog scan failed", "error", err)
	}
	admission.Start()

	printBanner(log, chain, cfg)

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	log.Info("Shutting down...")

	admission.Stop()
	queue.Close()

	if rpcServer != nil {
		if err := rpcServer.Stop(); err != nil {
			log.Error("Error stopping RPC server", "error", err)
		}
	}

	log.Info("Goodbye!")
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

func printBanner(log *logging.Logger, chain *warehouse.Client, cfg *config.Config) {
	log.Info("")
	log.Info("=================================================")
	log.Infof("  AGI Solver")
	log.Infof("  Version: %s", version)
	log.Info("=================================================")
	log.Info("")
	log.Infof("  Chain ID:  %s", chain.ChainID().String())
	log.Infof("  Contract:  %s", chain.ContractAddress().Hex())
	log.Infof("  Solver:    %s", chain.SolverAddress().Hex())
	if cfg.API.ListenAddr != "" {
		log.Infof("  API:       http://%s", cfg.API.ListenAddr)
		log.Infof("  WS:        ws://%s/ws", cfg.API.ListenAddr)
	}
	log.Infof("  Data dir:  %s", config.ExpandPath(cfg.Storage.DataDir))
	log.Info("")
	log.Info("=================================================")
	log.Info("")
}
