package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/d60-Lab/clearstack/internal/api"
	"github.com/d60-Lab/clearstack/internal/api/handler"
	"github.com/d60-Lab/clearstack/internal/api/middleware"
	"github.com/d60-Lab/clearstack/internal/service"
	"github.com/d60-Lab/clearstack/pkg/logger"
)

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "clearstack",
		Short:         "Outbound event pipeline for the prospection integration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default ./config.yaml)")

	withApp := func(run func(cmd *cobra.Command, a *app) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close(context.Background())
			return run(cmd, a)
		}
	}

	root.AddCommand(
		newServeCmd(withApp),
		newDispatchCmd(withApp),
		newCleanupCmd(withApp),
		newFlagsCmd(withApp),
		newHookCmd(withApp),
		newTokenCmd(&cfgPath),
	)
	return root
}

type appRunner func(run func(cmd *cobra.Command, a *app) error) func(*cobra.Command, []string) error

func newServeCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API, the scheduler and the hook workers",
		RunE: withApp(func(cmd *cobra.Command, a *app) error {
			ctx := cmd.Context()
			if a.cfg.JWT.Secret == "" {
				return errors.New("jwt.secret is required to serve")
			}
			if _, err := a.flags.InitializeFlags(ctx, nil); err != nil {
				return err
			}

			gin.SetMode(a.cfg.Server.Mode)
			router := api.NewRouter(api.RouterConfig{
				JWTSecret:   a.cfg.JWT.Secret,
				ServiceName: a.cfg.Tracing.ServiceName,
				Swagger:     a.cfg.Server.Mode != gin.ReleaseMode,
			}, handler.New(a.integration, a.flags))
			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			stopHooks := a.hookRunner.Start(a.cfg.Outbox.HookWorkers)
			a.scheduler.Start()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			var serveErr error
			select {
			case <-sigCtx.Done():
				logger.Info("shutting down")
			case serveErr = <-errCh:
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http shutdown", zap.Error(err))
			}
			if err := a.scheduler.Stop(shutdownCtx); err != nil {
				logger.Error("scheduler stop", zap.Error(err))
			}
			if err := stopHooks(shutdownCtx); err != nil {
				logger.Error("hook runner stop", zap.Error(err))
			}
			return serveErr
		}),
	}
}

func newDispatchCmd(withApp appRunner) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Run one bounded dispatch pass and print the summary",
		RunE: withApp(func(cmd *cobra.Command, a *app) error {
			ctx := cmd.Context()
			res, err := a.scheduler.TriggerDispatch(ctx, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum events to send (default outbox.batch_size)")
	return cmd
}

func newCleanupCmd(withApp appRunner) *cobra.Command {
	var retention time.Duration
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete SENT events older than the retention window",
		RunE: withApp(func(cmd *cobra.Command, a *app) error {
			ctx := cmd.Context()
			if retention <= 0 {
				retention = a.cfg.Outbox.Retention
			}
			n, err := a.dispatcher.CleanupSent(ctx, retention)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]int64{"deleted": n})
		}),
	}
	cmd.Flags().DurationVar(&retention, "older-than", 0, "retention window (default outbox.retention)")
	return cmd
}

func newFlagsCmd(withApp appRunner) *cobra.Command {
	var company string
	flags := &cobra.Command{Use: "flags", Short: "Feature flag maintenance"}
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Seed the default flags that are missing",
		RunE: withApp(func(cmd *cobra.Command, a *app) error {
			ctx := cmd.Context()
			var scope *string
			if company != "" {
				scope = &company
			}
			n, err := a.flags.InitializeFlags(ctx, scope)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]int{"created": n})
		}),
	}
	initCmd.Flags().StringVar(&company, "company", "", "seed a tenant scope instead of the global one")
	flags.AddCommand(initCmd)
	return flags
}

// newHookCmd replays one producer hook for an existing record, e.g. after a
// tenant turned the integration on.
func newHookCmd(withApp appRunner) *cobra.Command {
	kinds := map[string]func(h *service.Hooks, id string) bool{
		"review-created":   (*service.Hooks).OnReviewCreated,
		"request-created":  (*service.Hooks).OnRequestCreated,
		"request-accepted": (*service.Hooks).OnRequestAccepted,
		"software-usage":   (*service.Hooks).OnSoftwareUsageDeclared,
		"contract-renewal": (*service.Hooks).OnContractRenewal,
	}
	return &cobra.Command{
		Use:       "hook <kind> <id>",
		Short:     "Run one event hook and wait for it to finish",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"review-created", "request-created", "request-accepted", "software-usage", "contract-renewal"},
		RunE: withApp(func(cmd *cobra.Command, a *app) error {
			args := cmd.Flags().Args()
			fire, ok := kinds[args[0]]
			if !ok {
				return fmt.Errorf("unknown hook kind %q", args[0])
			}
			stop := a.hookRunner.Start(1)
			queued := fire(a.hooks, args[1])
			if err := stop(cmd.Context()); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"kind": args[0], "id": args[1], "queued": queued})
		}),
	}
}

// newTokenCmd only needs the config, not the database.
func newTokenCmd(cfgPath *string) *cobra.Command {
	var (
		company string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin API token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if cfg.JWT.Secret == "" {
				return errors.New("jwt.secret is not configured")
			}
			if ttl <= 0 {
				return fmt.Errorf("--ttl must be positive, got %s", ttl)
			}
			tok, err := middleware.Sign(cfg.JWT.Secret, middleware.Claims{CompanyID: company, Role: role}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&company, "company", "", "tenant id")
	cmd.Flags().StringVar(&role, "role", middleware.RoleAdmin, "admin or superadmin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("company")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
