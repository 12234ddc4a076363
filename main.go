package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Artfain/chainledger/api"
	"github.com/Artfain/chainledger/core"
	"github.com/Artfain/chainledger/p2p"
	"github.com/pterm/pterm"
	"golang.org/x/time/rate"
)

func main() {
	port := flag.Uint("port", 5000, "port to listen on")
	consensus := flag.String("consensus", core.ConsensusPoW, "consensus rule: pow or pos")
	target := flag.String("target", "0000", "proof-of-work digest prefix")
	scheme := flag.String("scheme", core.SchemeECDSA, "signature scheme: ecdsa or schnorr")
	dataDir := flag.String("data", "", "leveldb directory; empty keeps the chain in memory")
	peers := flag.String("peers", "", "comma separated peer addresses")
	syncInterval := flag.Duration("sync-interval", 30*time.Second, "peer sync interval, 0 disables")
	peerTimeout := flag.Duration("peer-timeout", 5*time.Second, "timeout for a single peer fetch")
	maxChainBytes := flag.Int64("max-chain-bytes", p2p.DefaultMaxChainBytes, "largest peer chain response accepted")
	rps := flag.Float64("rate", 10, "submissions per second, 0 disables limiting")
	pretty := flag.Bool("pretty", false, "human readable logs")
	alloc := flag.String("alloc", "", "genesis allocations as address=amount,...")
	validators := flag.String("validators", "", "proof-of-stake validators as id=stake,...")
	miner := flag.String("miner", "", "address credited with mining rewards")
	reward := flag.Float64("reward", 0, "reward paid to -miner for every mined block")
	flag.Parse()

	if *pretty {
		slog.SetDefault(slog.New(pterm.NewSlogHandler(&pterm.DefaultLogger)))
	} else {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	cfg := core.DefaultConfig()
	cfg.Consensus = *consensus
	cfg.Target = *target
	cfg.Scheme = *scheme
	cfg.MinerAddress = *miner
	cfg.MiningReward = *reward
	var err error
	if cfg.Allocations, err = parseAllocations(*alloc); err != nil {
		fatal("invalid -alloc", err)
	}
	if cfg.Validators, err = parseValidators(*validators); err != nil {
		fatal("invalid -validators", err)
	}
	if *dataDir != "" {
		store, err := core.OpenStore(*dataDir)
		if err != nil {
			fatal("failed to open store", err)
		}
		defer store.Close()
		cfg.Store = store
	}

	node, err := core.NewNode(cfg)
	if err != nil {
		fatal("failed to start node", err)
	}

	registry := p2p.NewPeers()
	for _, addr := range parsePeers(*peers) {
		if _, err := registry.Register(addr); err != nil {
			fatal("invalid -peers", err)
		}
	}
	fetcher := p2p.NewHTTPFetcher()
	fetcher.MaxBytes = *maxChainBytes
	syncer := p2p.NewSyncer(registry, fetcher, node, *peerTimeout)

	var limiter *rate.Limiter
	if *rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(*rps), max(int(*rps), 1))
	}
	server := api.NewServer(node, registry, syncer, limiter)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go server.Hub().Run(ctx, node.Subscribe(64))
	if *syncInterval > 0 {
		go syncer.Run(ctx, *syncInterval)
	}
	if *pretty {
		printStatus(node)
	}

	httpServer := &http.Server{
		Addr:              ":" + strconv.FormatUint(uint64(*port), 10),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	slog.Info("HTTP server running", "addr", httpServer.Addr, "peers", registry.List())
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fatal("server stopped", err)
	}
}

func printStatus(node *core.Node) {
	data := pterm.TableData{{"Index", "Hash", "Transactions", "Proof"}}
	for _, b := range node.Chain() {
		data = append(data, []string{
			strconv.Itoa(b.Index),
			b.Hash[:16],
			strconv.Itoa(len(b.Transactions)),
			b.Proof.String(),
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		slog.Warn("Failed to render chain table", "error", err)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	fmt.Fprintln(os.Stderr, msg+":", err)
	os.Exit(1)
}
