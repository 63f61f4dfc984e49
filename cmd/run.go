package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"sinkguard/internal/config"
	"sinkguard/internal/lifecycle"
	"sinkguard/internal/logging"
	"sinkguard/internal/security"
	"sinkguard/internal/sysdns"
)

func runDaemon(opts *Options) error {
	cfg, err := config.LoadConfig(opts.ConfigFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.BlocklistPath != "" {
		cfg.Blocklist.Path = opts.BlocklistPath
	}

	if envLevel := os.Getenv("SINKGUARD_LOG_LEVEL"); envLevel != "" {
		cfg.Logging.Level = envLevel
	}
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if cfg.Logging.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logging.InstallSanitizingHook()
	if cfg.Logging.RemoteSinkAddr != "" {
		logrus.AddHook(logging.NewRemoteSink(cfg.Logging.RemoteSinkAddr))
	}

	if err := config.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	for _, warning := range config.ValidateCredentialSecurity(cfg) {
		logrus.Warnf("security warning: %s", warning)
	}
	logrus.WithFields(logrus.Fields(config.SanitizeConfigForLogging(cfg))).Info("configuration loaded")

	hardening := security.NewHardening()
	if err := hardening.ApplyHardening(); err != nil {
		logrus.WithError(err).Warn("failed to apply security hardening")
	}

	if opts.DryRun {
		logrus.Info("running in dry-run mode: no system DNS changes will be made")
	}

	logrus.Info("starting sinkguard")
	manager := lifecycle.New(cfg, opts.DryRun)
	err = manager.Run()

	switch err.(type) {
	case *lifecycle.AnotherInstanceError:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	case *lifecycle.IntegrityFailedError:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(3)
	}
	return err
}

// newBackendForOneShot builds a Configurator for CLI operations that
// touch system DNS directly without a running daemon.
func newBackendForOneShot(dryRun bool) *sysdns.Configurator {
	return sysdns.New(sysdns.NewBackend(), lifecycle.DefaultBackupPath(), dryRun)
}
