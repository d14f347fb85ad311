package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/wsomgr/pkg/config"
	"github.com/cuemby/wsomgr/pkg/guestagent"
	"github.com/cuemby/wsomgr/pkg/heart"
	"github.com/cuemby/wsomgr/pkg/hypervisor"
	"github.com/cuemby/wsomgr/pkg/log"
	"github.com/cuemby/wsomgr/pkg/orchestrator"
	"github.com/cuemby/wsomgr/pkg/repository/mongostore"
	"github.com/cuemby/wsomgr/pkg/types"
	"github.com/cuemby/wsomgr/pkg/vmreconciler"
	"github.com/spf13/cobra"

	apiserver "github.com/cuemby/wsomgr/pkg/api"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "wsomgr",
	Short:   "wsomgr manager: converges one manager's view of cluster Config and Plan onto KVM",
	Version: Version,
	RunE:    run,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("wsomgr version %s\nCommit: %s\n", Version, Commit))
	rootCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.Flags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(func() {
		level, _ := rootCmd.Flags().GetString("log-level")
		jsonOut, _ := rootCmd.Flags().GetBool("log-json")
		log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
	})
}

func run(cmd *cobra.Command, args []string) error {
	logger := log.WithComponent("main")

	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("load runtime settings: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := mongostore.Connect(ctx, mongostore.Config{ConnectionString: settings.ConnectionString})
	if err != nil {
		return fmt.Errorf("connect to store: %w", err)
	}
	defer store.Close(context.Background())

	cfg, err := store.GetConfig(ctx)
	if err != nil {
		return fmt.Errorf("load initial config: %w", err)
	}

	self, ok := findSelf(cfg, settings.ManagerName)
	if !ok {
		return fmt.Errorf("manager %q is not present in configuration; configure it first with wsoctl", settings.ManagerName)
	}

	table := heart.NewTable(heart.SystemClock, cfg.General.MaxInactive)
	heartHandler := heart.NewHandler(table)

	driver, err := hypervisor.Dial(settings.LibvirtSocket)
	if err != nil {
		return fmt.Errorf("dial libvirt: %w", err)
	}
	defer driver.Close()

	provisioner := guestagent.NewProvisioner(driver)
	vmrecon := vmreconciler.New(
		settings.ManagerName,
		self.Host(),
		self.ImgsPath,
		vmreconciler.HypervisorAdapter{Driver: driver},
		guestagent.ImageCloner{},
		provisioner,
		table,
	)

	orch := orchestrator.New(settings.ManagerName, store, table, vmrecon, time.Second, 3*time.Second)

	domains := domainLookup{driver: driver, imgsPath: self.ImgsPath}
	api := apiserver.New(heartHandler, store, domains, orch, settings.ManagerName)

	httpServer := &http.Server{Addr: settings.ListenAddress, Handler: api}
	serveErrs := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrs <- err
		}
	}()

	orchErrs := make(chan error, 1)
	go func() {
		if err := orch.Run(ctx); err != nil {
			orchErrs <- err
		}
	}()

	logger.Info().Str("manager", settings.ManagerName).Str("listen", settings.ListenAddress).Msg("wsomgr manager started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-serveErrs:
		logger.Error().Err(err).Msg("http server failed")
	case err := <-orchErrs:
		logger.Error().Err(err).Msg("orchestrator failed")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown")
	}

	return nil
}

func findSelf(cfg types.Config, name string) (types.ManagerConfig, bool) {
	for _, m := range cfg.Managers {
		if m.Name == name {
			return m, true
		}
	}
	return types.ManagerConfig{}, false
}
