// Command electrs runs the Electrum protocol frontend: it wires the
// config, logger, metrics, bitcoind daemon client, chain-header store,
// rawtx cache, merkle builder and dispatcher together behind a
// line-delimited TCP listener.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ABMatrix/electrs/cache"
	"github.com/ABMatrix/electrs/config"
	"github.com/ABMatrix/electrs/daemon"
	"github.com/ABMatrix/electrs/electrum"
	"github.com/ABMatrix/electrs/jsonrpc"
	"github.com/ABMatrix/electrs/merkle"
	"github.com/ABMatrix/electrs/metrics"
	"github.com/ABMatrix/electrs/signal"
	"github.com/ABMatrix/electrs/tracker"
	"github.com/ABMatrix/electrs/transport"
	"github.com/ABMatrix/electrs/utils"
)

// version is overwritten at build time via -ldflags "-X main.version=...".
var version = "dev"

// rawtxCacheSize bounds the in-memory rawtx cache (cache.New); chosen to
// hold a few thousand recently-served transactions without needing a
// config knob of its own.
const rawtxCacheSize = 4096

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := config.Default()
	var configFile string

	cmd := &cobra.Command{
		Use:   "electrs",
		Short: "Electrum protocol frontend for an indexed Bitcoin query server",
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(viper.New(), cmd.Flags(), configFile)
			if err != nil {
				return err
			}
			loaded.Version = version
			return run(cmd.Context(), loaded)
		},
	}

	cfg.BindFlags(cmd.Flags())
	cmd.Flags().StringVar(&configFile, "config", "", "path to a config file")

	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	log, err := utils.NewZapLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}

	bus := signal.New()

	chain, err := tracker.OpenChain(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening chain store: %w", err)
	}
	defer chain.Close()

	daemonClient, err := daemon.New(cfg.DaemonRPCAddr, cfg.DaemonRPCUser, cfg.DaemonRPCPass, log)
	if err != nil {
		return fmt.Errorf("connecting to bitcoind: %w", err)
	}
	defer daemonClient.Close()

	txCache, err := cache.New(rawtxCacheSize)
	if err != nil {
		return fmt.Errorf("building rawtx cache: %w", err)
	}

	trk := tracker.New(chain)
	merkleBuilder := merkle.New()

	registerer := prometheus.DefaultRegisterer
	factory := metrics.NewPrometheusFactory(registerer)
	duration := factory.NewHistogram("electrs_rpc_duration_seconds", "Electrum RPC call duration", "method", metrics.DefaultDurationBuckets())

	banner := func() string { return cfg.ServerBanner }
	dispatcher := electrum.NewDispatcher(trk, daemonClient, txCache, merkleBuilder, durationAdapter{duration}, log, cfg.Version, tcpPort(cfg.ElectrumRPCAddr), banner)

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, log)
	}

	go syncHeaders(bus.Context(), daemonClient, chain, trk, log)

	server := transport.New(cfg.ElectrumRPCAddr, dispatcher, log, cfg.NotifierInterval)
	log.Infow("listening", "addr", cfg.ElectrumRPCAddr)

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Run(bus.Context()) }()

	select {
	case <-bus.Done():
		return nil
	case err := <-serveErr:
		bus.Trigger()
		return err
	case <-ctx.Done():
		bus.Trigger()
		return nil
	}
}

func tcpPort(addr string) uint16 {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	var port uint16
	_, _ = fmt.Sscanf(portStr, "%d", &port)
	return port
}

// syncHeaders keeps tracker.Chain caught up with bitcoind's tip. A full
// index-sync pipeline (scripthash history, mempool tracking) is not
// implemented here; this loop only satisfies the Chain half of the
// Tracker contract so blockchain.block.header(s)/headers.subscribe have
// real data to serve, then flips the tracker ready once it has a tip.
func syncHeaders(ctx context.Context, d *daemon.Client, chain *tracker.Chain, trk *tracker.Tracker, log utils.SimpleLogger) {
	sync := func() {
		height, header, err := d.ChainTip(ctx)
		if err != nil {
			log.Warnw("header sync: fetching chain tip failed", "error", err)
			return
		}
		if err := chain.PutHeader(height, header); err != nil {
			log.Warnw("header sync: storing header failed", "error", err)
			return
		}
		trk.SetReady(nil)
	}

	sync()
	notify := d.NewBlockNotification()
	for {
		select {
		case <-ctx.Done():
			return
		case <-notify:
			sync()
		}
	}
}

func serveMetrics(addr string, log utils.SimpleLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Infow("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Errorw("metrics server stopped", "error", err)
	}
}

// durationAdapter satisfies jsonrpc.DurationReporter over a
// metrics.Histogram, the two being structurally identical but declared
// separately (jsonrpc doesn't import metrics).
type durationAdapter struct {
	h metrics.Histogram
}

func (d durationAdapter) Observe(labelValue string, seconds float64) {
	d.h.Observe(labelValue, seconds)
}

var _ jsonrpc.DurationReporter = durationAdapter{}
