package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gregLibert/nfc-reader/internal/config"
	"github.com/gregLibert/nfc-reader/pkg/contactless"
	"github.com/gregLibert/nfc-reader/pkg/iso7816"
)

type readFunc func(ctx context.Context, s *contactless.Session, cfg *config.Config) ([]byte, error)

// runRead waits for the next card, runs read and prints the result.
func runRead(cmd *cobra.Command, g *globalOptions, start *int, read readFunc) error {
	switch g.output {
	case "", "text", "json", "raw":
	default:
		return fmt.Errorf("unsupported output format %q (want text, json or raw)", g.output)
	}

	cfg, logger, err := g.load(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	var extra []contactless.Option
	if g.verbose {
		extra = append(extra, contactless.WithTraceHook(func(tr iso7816.Trace) {
			printReport(cmd, logger, tr)
		}))
	}

	s, err := openSession(cfg, logger, extra...)
	if err != nil {
		return err
	}
	defer closeSession(s, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.ErrOrStderr(), "Waiting for a card on %s...\n", s.ReaderName())
	data, err := read(ctx, s, cfg)
	if err != nil {
		return err
	}
	return printData(cmd.OutOrStdout(), g.output, s.ReaderName(), start, data)
}

func printReport(cmd *cobra.Command, logger *slog.Logger, tr iso7816.Trace) {
	if len(tr) == 0 {
		return
	}
	res, err := iso7816.NewReadBinaryResult(tr)
	if err != nil {
		logger.Warn("build read report", "error", err)
		return
	}
	fmt.Fprintln(cmd.ErrOrStderr(), res.Describe())
}

func parseBlock(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: block %q: must be 0..65535", contactless.ErrInvalidParameter, s)
	}
	return uint16(n), nil
}

func newReadNDEFCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "read-ndef",
		Short: "Read the NDEF area of the next card",
		Long: `Wait for the next card and read the NDEF area: 144 bytes from block 4 unless
configured otherwise (read.ndef_start, read.ndef_length).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(cmd, g, nil, func(ctx context.Context, s *contactless.Session, _ *config.Config) ([]byte, error) {
				return s.ReadNDEFOnNextInsertion(ctx)
			})
		},
	}
}

func newReadBlockCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "read-block <block>",
		Short: "Read one block window of the next card",
		Long: `Wait for the next card and read read.block_window bytes (16 by default)
starting at the given block. The block accepts decimal or 0x-prefixed hex.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			block, err := parseBlock(args[0])
			if err != nil {
				return err
			}
			return runRead(cmd, g, blockRef(int(block)), func(ctx context.Context, s *contactless.Session, _ *config.Config) ([]byte, error) {
				return s.ReadBlock(ctx, block)
			})
		},
	}
}

func newReadRangeCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "read-range <block> <length>",
		Short: "Read length bytes from the next card",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			block, err := parseBlock(args[0])
			if err != nil {
				return err
			}
			length, err := strconv.Atoi(args[1])
			if err != nil || length <= 0 {
				return fmt.Errorf("%w: length %q must be a positive integer", contactless.ErrInvalidParameter, args[1])
			}
			return runRead(cmd, g, blockRef(int(block)), func(ctx context.Context, s *contactless.Session, _ *config.Config) ([]byte, error) {
				return s.ReadRange(ctx, block, length)
			})
		},
	}
}

func newDumpCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Read every data block of the next card",
		Long: `Wait for the next card and read every data block of its sector layout
(16 sectors of 4 blocks of 16 bytes by default), skipping block 0 and the
sector trailers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(cmd, g, nil, func(ctx context.Context, s *contactless.Session, cfg *config.Config) ([]byte, error) {
				return s.ReadDataBlocksOnNextInsertion(ctx, cfg.Layout())
			})
		},
	}
}
