package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/msageha/dropzone/internal/config"
	"github.com/msageha/dropzone/internal/log"
	loglogrus "github.com/msageha/dropzone/internal/log/logrus"
)

type commandContext struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	homeFlag   string
	configFlag string
	debug      bool

	cfg    *config.Config
	logger log.Logger
}

func newRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	cc := &commandContext{stdin: stdin, stdout: stdout, stderr: stderr, logger: log.Noop}

	rootCmd := &cobra.Command{
		Use:           "dropzone",
		Short:         "Drop files, text and URLs onto processing profiles",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				cc.logger = newLogger(stderr, "info", "text", cc.debug)
				return nil
			}
			return cc.loadConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&cc.homeFlag, "home", "", "dropzone home directory (default $DROPZONE_HOME or ~/.dropzone)")
	rootCmd.PersistentFlags().StringVarP(&cc.configFlag, "config", "c", "", "configuration file path (default <home>/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&cc.debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(newInitCommand(cc))
	rootCmd.AddCommand(newProcessorsCommand(cc))
	rootCmd.AddCommand(newDropCommand(cc))
	rootCmd.AddCommand(newWatchCommand(cc))

	return rootCmd
}

func (c *commandContext) home() (string, error) {
	if h := strings.TrimSpace(c.homeFlag); h != "" {
		return h, nil
	}
	return config.DefaultHome()
}

func (c *commandContext) configPath() (string, error) {
	if p := strings.TrimSpace(c.configFlag); p != "" {
		return p, nil
	}
	home, err := c.home()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, config.FileName), nil
}

func (c *commandContext) loadConfig() error {
	path, err := c.configPath()
	if err != nil {
		return err
	}
	cfg, rec, err := config.LoadOrRecover(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c.cfg = cfg
	c.logger = newLogger(c.stderr, cfg.Logging.Level, cfg.Logging.Format, c.debug)
	if rec != nil {
		source := "defaults"
		if rec.FromBackup {
			source = "backup"
		}
		c.logger.Warningf("config %s was corrupt, moved to %s and restored from %s", path, rec.QuarantinedTo, source)
	}
	c.logger.Debugf("config loaded from %s", path)
	return nil
}

func newLogger(w io.Writer, level, format string, debug bool) log.Logger {
	logrusLog := logrus.New()
	logrusLog.Out = w
	entry := logrus.NewEntry(logrusLog)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	if debug {
		lvl = logrus.DebugLevel
	}
	entry.Logger.SetLevel(lvl)

	switch format {
	case "json":
		entry.Logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		color := isTerminal(w)
		entry.Logger.SetFormatter(&logrus.TextFormatter{
			ForceColors:   color,
			DisableColors: !color,
		})
	}

	logger := loglogrus.NewLogrus(entry).WithValues(log.Kv{"version": Version})
	logger.Debugf("Debug level is enabled")
	return logger
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
