package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/davarch/devboard/internal/infrastructure/config"
	"github.com/davarch/devboard/internal/infrastructure/rest_api"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func apiServices(s services) rest_api.Services {
	return rest_api.Services{
		Issues:      s.issues,
		Pipelines:   s.pipelines,
		Deployments: s.deployments,
		Workspace:   s.workspace,
	}
}

// checkBitbucket logs once whether the configured Bitbucket credentials authenticate.
func checkBitbucket(ctx context.Context, log *zap.Logger, svc services) {
	acc, err := svc.workspace.CheckCredentials(ctx)
	if err != nil {
		log.Warn("bitbucket auth failed", zap.Error(err))
		return
	}
	log.Info("bitbucket auth ok", zap.String("username", acc.Username), zap.String("display_name", acc.DisplayName))
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve issue views, the pipeline dashboard and deployments over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		svc, err := buildServices(log, cfg)
		if err != nil {
			return err
		}
		api := rest_api.NewServer(log, apiServices(svc))

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		watchConfig(ctx, cfgPath, log, func(next config.Config) error {
			s, err := buildServices(log, next)
			if err != nil {
				return err
			}
			api.Swap(apiServices(s))
			return nil
		})

		server := &http.Server{
			Addr:         cfg.HTTP.Address,
			Handler:      api.Handler(),
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
		}

		go func() {
			<-ctx.Done()
			log.Debug("shutting down server")
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			if err := server.Shutdown(sctx); err != nil {
				log.Error("erroneous shutdown", zap.Error(err))
			}
		}()

		go checkBitbucket(ctx, log, svc)

		log.Info("start",
			zap.String("version", version),
			zap.String("address", cfg.HTTP.Address),
			zap.Int("instances", len(cfg.Jira.Instances)),
			zap.Int("repositories", len(cfg.EnabledRepositories())),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
