package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/davarch/devboard/internal/application"
	"github.com/davarch/devboard/internal/domain"
	"github.com/davarch/devboard/internal/infrastructure/config"
	"github.com/davarch/devboard/internal/infrastructure/notify_libnotify"
	"github.com/davarch/devboard/internal/infrastructure/snapshot_fs"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type quietNotifier struct{}

func (quietNotifier) Notify(ctx context.Context, title, body, url string) error { return nil }

func newWatch(log *zap.Logger, cfg config.Config) (*application.WatchUseCase, error) {
	svc, err := buildServices(log, cfg)
	if err != nil {
		return nil, err
	}

	var note domain.Notifier = quietNotifier{}
	if cfg.Watch.Notify {
		note = notify_libnotify.NewSoft(notify_libnotify.Options{Urgency: "normal"})
	}

	return application.NewWatchUseCase(log, svc.pipelines, note, snapshot_fs.New(cfg.Watch.SnapshotPath)), nil
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll pipelines, notify on changes and keep a status snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		uc, err := newWatch(log, cfg)
		if err != nil {
			return err
		}
		sched := application.NewScheduler(log, uc, cfg.Watch.Interval, cfg.Watch.PauseFile)

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		watchConfig(ctx, cfgPath, log, func(next config.Config) error {
			uc, err := newWatch(log, next)
			if err != nil {
				return err
			}
			sched.Swap(uc)
			return nil
		})

		log.Info("start",
			zap.String("version", version),
			zap.Int("repositories", len(cfg.EnabledRepositories())),
			zap.Duration("every", cfg.Watch.Interval),
			zap.String("snapshot", cfg.Watch.SnapshotPath),
			zap.String("pause_file", cfg.Watch.PauseFile),
		)
		sched.Run(ctx)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
