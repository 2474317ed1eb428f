package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gregLibert/nfc-reader/pkg/contactless"
)

func newReadersCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "readers",
		Short: "List connected PC/SC readers",
		Long: `List the readers known to the PC/SC service. Only the first one is used by
the other commands, and it must match the supported model.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			c, err := establish()
			if err != nil {
				return &contactless.TransportError{Op: "establish context", Err: err}
			}
			defer func() {
				if err := c.Release(); err != nil {
					logger.Warn("release context", "error", err)
				}
			}()

			readers, err := c.ListReaders()
			if err != nil {
				return &contactless.TransportError{Op: "list readers", Err: err}
			}
			if len(readers) == 0 {
				return contactless.ErrNoReadersFound
			}

			w := cmd.OutOrStdout()
			for i, name := range readers {
				mark := " "
				if i == 0 {
					mark = "*"
				}
				status := "unsupported"
				if strings.Contains(name, cfg.Reader.Supported) {
					status = "supported"
				}
				fmt.Fprintf(w, "%s %d: %s (%s)\n", mark, i, name, status)
			}
			return nil
		},
	}
}
