// Package cli implements the nfc-reader command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/gregLibert/nfc-reader/internal/config"
	"github.com/gregLibert/nfc-reader/pkg/contactless"
	"github.com/gregLibert/nfc-reader/pkg/logging"
	"github.com/gregLibert/nfc-reader/pkg/pcsc"
)

// establish opens the PC/SC context. Tests replace it with a scripted one.
var establish pcsc.Establisher = pcsc.Establish

// globalOptions holds the persistent flags.
type globalOptions struct {
	configFile string
	logLevel   string
	logFormat  string
	output     string
	verbose    bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globalOptions{}

	root := &cobra.Command{
		Use:   "nfc-reader",
		Short: "Contactless card reader tool",
		Long: `nfc-reader drives a PC/SC contactless reader (ACR122 family): it watches
card insertions and removals and reads raw data blocks from memory cards
such as MIFARE Classic, authenticating every block before reading it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&g.configFile, "config", "", "config file (YAML)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "log format (text, json)")
	root.PersistentFlags().StringVarP(&g.output, "output", "o", "text", "output format (text, json, raw)")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "print the APDU report of every read")

	root.AddCommand(
		newVersionCmd(),
		newReadersCmd(g),
		newListenCmd(g),
		newATRCmd(g),
		newReadNDEFCmd(g),
		newReadBlockCmd(g),
		newReadRangeCmd(g),
		newDumpCmd(g),
	)
	return root
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

// load reads the configuration and builds the logger. Flags override the file.
func (g *globalOptions) load(stderr io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(g.configFile)
	if err != nil {
		return nil, nil, err
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Logging.Format = g.logFormat
	}

	logger, err := logging.New(cfg.Logging, stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid logging flags: %w", err)
	}
	return cfg, logger, nil
}

// openSession selects the reader described by cfg.
func openSession(cfg *config.Config, logger *slog.Logger, extra ...contactless.Option) (*contactless.Session, error) {
	opts := append(cfg.Options(), contactless.WithLogger(logger))
	opts = append(opts, extra...)
	return contactless.SelectReader(establish, opts...)
}

func closeSession(s *contactless.Session, logger *slog.Logger) {
	if err := s.Close(); err != nil {
		logger.Warn("close session", "error", err)
	}
}
