package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/coursewatch/internal/board"
	"github.com/MarcoPoloResearchLab/coursewatch/internal/calendar"
	"github.com/MarcoPoloResearchLab/coursewatch/internal/config"
	"github.com/MarcoPoloResearchLab/coursewatch/internal/course"
	"github.com/MarcoPoloResearchLab/coursewatch/internal/learn"
	"github.com/MarcoPoloResearchLab/coursewatch/internal/logging"
	"github.com/MarcoPoloResearchLab/coursewatch/internal/notify"
	"github.com/MarcoPoloResearchLab/coursewatch/internal/poll"
	"github.com/MarcoPoloResearchLab/coursewatch/internal/server"
	"github.com/MarcoPoloResearchLab/coursewatch/internal/snapshot"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "coursewatch",
		Short: "Watches the course platform and reports changes",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatcher(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("semester", defaults.GetString("learn.semester"), "Semester to watch, e.g. 2023-2024-2")
	cmd.PersistentFlags().String("snapshot-path", defaults.GetString("snapshot.path"), "Snapshot file path")
	cmd.PersistentFlags().Duration("cycle-timeout", defaults.GetDuration("poll.cycle_timeout"), "Deadline for one poll cycle")
	cmd.PersistentFlags().Duration("poll-interval", defaults.GetDuration("poll.interval"), "Rest between poll cycles")
	cmd.PersistentFlags().Duration("sort-interval", defaults.GetDuration("sort.interval"), "Interval between board ordering passes")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "Status server listen address (empty disables)")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("log-file", defaults.GetString("log.file"), "Optional log file")

	bindFlag(cmd, "learn.semester", "semester")
	bindFlag(cmd, "snapshot.path", "snapshot-path")
	bindFlag(cmd, "poll.cycle_timeout", "cycle-timeout")
	bindFlag(cmd, "poll.interval", "poll-interval")
	bindFlag(cmd, "sort.interval", "sort-interval")
	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "log.file", "log-file")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runWatcher(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  appConfig.Log.Level,
		Format: appConfig.Log.Format,
		File:   appConfig.Log.File,
	})
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	course.PlatformLocation = appConfig.Learn.Location

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	platform, err := learn.NewClient(learn.ClientConfig{
		BaseURL: appConfig.Learn.BaseURL,
		Logger:  logger.Named("learn"),
	})
	if err != nil {
		return err
	}

	store, err := snapshot.NewStore(snapshot.StoreConfig{
		Path:   appConfig.Snapshot.Path,
		Logger: logger.Named("snapshot"),
	})
	if err != nil {
		return err
	}

	transport, err := notify.NewTelegramTransport(notify.TelegramConfig{
		Token:        appConfig.Telegram.Token,
		Channel:      appConfig.Telegram.Channel,
		ProxyAddress: appConfig.Telegram.Proxy,
		Logger:       logger.Named("telegram"),
	})
	if err != nil {
		return err
	}

	feed := server.NewEventFeed()
	dispatcher, err := notify.NewDispatcher(notify.DispatcherConfig{
		Transport: transport,
		Publisher: feed,
		Location:  appConfig.Notify.Location,
		Clock:     time.Now,
		Logger:    logger.Named("notify"),
	})
	if err != nil {
		return err
	}

	fetcher, err := poll.NewFetcher(poll.FetcherConfig{
		Source:  platform,
		Timeout: appConfig.Poll.CycleTimeout,
		Workers: appConfig.Poll.Workers,
		Clock:   time.Now,
		Logger:  logger.Named("fetch"),
	})
	if err != nil {
		return err
	}

	supervisorConfig := poll.SupervisorConfig{
		Platform:   platform,
		Fetcher:    fetcher,
		Store:      store,
		Dispatcher: dispatcher,
		Credentials: poll.Credentials{
			Username: appConfig.Learn.Username,
			Password: appConfig.Learn.Password,
		},
		Semester:         appConfig.Learn.Semester,
		CycleTimeout:     appConfig.Poll.CycleTimeout,
		BootstrapTimeout: appConfig.Poll.BootstrapTimeout,
		RestInterval:     appConfig.Poll.Interval,
		Workers:          appConfig.Poll.Workers,
		IDProvider:       poll.NewUUIDProvider(),
		Clock:            time.Now,
		Logger:           logger.Named("poll"),
	}

	var sorter *board.Sorter
	if appConfig.Trello.Enabled() {
		trelloClient, err := board.NewTrelloClient(board.TrelloConfig{
			BaseURL: appConfig.Trello.BaseURL,
			Key:     appConfig.Trello.Key,
			Token:   appConfig.Trello.Token,
			Logger:  logger.Named("trello"),
		})
		if err != nil {
			return err
		}
		reconciler, err := board.NewReconciler(board.ReconcilerConfig{
			Client:        trelloClient,
			LabelID:       appConfig.Trello.Label,
			TrackingLabel: appConfig.Trello.TrackingLabel,
			Clock:         time.Now,
			Logger:        logger.Named("reconcile"),
		})
		if err != nil {
			return err
		}
		sorter, err = board.NewSorter(board.SorterConfig{
			Client:   trelloClient,
			BoardID:  appConfig.Trello.Board,
			Interval: appConfig.Sort.Interval,
			Clock:    time.Now,
			Logger:   logger.Named("sort"),
		})
		if err != nil {
			return err
		}
		supervisorConfig.Board = trelloClient
		supervisorConfig.BoardID = appConfig.Trello.Board
		supervisorConfig.Reconciler = reconciler
	} else {
		logger.Info("task board integration disabled")
	}

	supervisor, err := poll.NewSupervisor(supervisorConfig)
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		return supervisor.Run(groupCtx)
	})
	if sorter != nil {
		group.Go(func() error {
			return sorter.Run(groupCtx)
		})
	}
	if appConfig.HTTP.Address != "" {
		handler, err := server.NewHTTPHandler(server.Dependencies{
			Status:    supervisor,
			Snapshots: supervisor,
			Feed:      feed,
			Calendar:  calendar.Options{Name: "Coursework " + appConfig.Learn.Semester},
			Clock:     time.Now,
			Logger:    logger.Named("http"),
		})
		if err != nil {
			return err
		}
		group.Go(func() error {
			return server.Serve(groupCtx, appConfig.HTTP.Address, handler, logger.Named("http"))
		})
	}

	logger.Info("watcher started",
		zap.String("semester", appConfig.Learn.Semester),
		zap.Bool("board", appConfig.Trello.Enabled()),
	)
	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("watcher stopped", zap.Error(err))
		return err
	}
	logger.Info("watcher stopped")
	return nil
}
