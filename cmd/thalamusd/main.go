// Command thalamusd is the Thalamus server binary: it boots a state
// tree root, a node graph over spec §4.4's node types, the RPC router
// and service (spec §4.7), the storage pipeline, and optionally a
// mirroring client pointed at a remote peer's observable_bridge_v2
// endpoint. Entrypoint shape follows cmd/dexserver/main.go
// (config.LoadConfig + logrus + http.ListenAndServe); flag/command
// shape follows cmd/synnergy/main.go's cobra root command.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cajigaslab/thalamus/internal/config"
	"github.com/cajigaslab/thalamus/internal/graph"
	"github.com/cajigaslab/thalamus/internal/mirror"
	"github.com/cajigaslab/thalamus/internal/nodes"
	"github.com/cajigaslab/thalamus/internal/rpc"
	"github.com/cajigaslab/thalamus/internal/state"
	"github.com/cajigaslab/thalamus/internal/telemetry"
	"github.com/cajigaslab/thalamus/internal/workpool"
)

const shutdownTimeout = 5 * time.Second

func main() {
	v := viper.New()
	root := &cobra.Command{
		Use:   "thalamusd",
		Short: "Thalamus real-time acquisition and distribution server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, v)
		},
	}
	config.BindFlags(root, v)

	if err := root.Execute(); err != nil {
		logrus.WithError(err).Fatal("thalamusd: fatal error")
	}
}

func run(cmd *cobra.Command, v *viper.Viper) error {
	bootstrapPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load("default")
	if err != nil {
		return fmt.Errorf("thalamusd: %w", err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("thalamusd: flag overlay: %w", err)
	}

	level := logrus.InfoLevel
	if cfg.Trace {
		level = logrus.TraceLevel
	} else if parsed, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		level = parsed
	}
	tel, err := telemetry.New(cfg.LogFile, level)
	if err != nil {
		return fmt.Errorf("thalamusd: telemetry: %w", err)
	}
	defer tel.Close()
	log := tel.Component("thalamusd")
	log.WithField("port", cfg.Port).Info("starting thalamusd")

	root := state.NewMap()
	root.Assign(state.StringKey("nodes"), state.ListValue(state.NewList()), nil)
	nodesList := root.Get(state.StringKey("nodes")).List()

	pool := workpool.New("thalamus", workpool.WithThreads(0), workpool.WithRegisterer(tel.Registry))

	registry := graph.NewRegistry(nodes.Factories())
	g := graph.NewGraph(nodesList, registry, pool)
	defer g.Close()

	if bootstrapPath != "" {
		tree, err := config.LoadBootstrapTree(bootstrapPath)
		if err != nil {
			log.WithError(err).Warn("failed to load bootstrap tree, starting empty")
		} else if tree.Kind() == state.KindMap {
			bm := tree.Map()
			for _, k := range bm.Keys() {
				root.Assign(k, bm.Get(k), nil)
			}
		}
	}

	router := rpc.NewRouter()
	svc := rpc.NewService(router, g, root)
	_ = svc

	var mirrorClient *mirror.Client
	if cfg.StateURL != "" {
		mirrorClient = mirror.New(cfg.StateURL, root)
		mirrorClient.Start()
		defer mirrorClient.Stop()
		log.WithField("url", cfg.StateURL).Info("mirroring enabled")
	}

	httpSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: router.Handler()}
	go func() {
		log.WithField("addr", httpSrv.Addr).Info("rpc listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("rpc server stopped")
		}
	}()

	metricsSrv := tel.StartMetricsServer(cfg.MetricsAddr)
	log.WithField("addr", cfg.MetricsAddr).Info("metrics listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
	_ = tel.ShutdownMetricsServer(ctx, metricsSrv)
	return nil
}
