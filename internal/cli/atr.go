package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gregLibert/nfc-reader/pkg/atr"
	"github.com/gregLibert/nfc-reader/pkg/contactless"
	"github.com/gregLibert/nfc-reader/pkg/tlv"
)

var errFirstCard = errors.New("first card seen")

func newATRCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "atr",
		Short: "Describe the ATR of the next card",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			s, err := openSession(cfg, logger)
			if err != nil {
				return err
			}
			defer closeSession(s, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var seen contactless.Event
			err = s.Listen(ctx, func(_ context.Context, ev contactless.Event) error {
				if ev.Edge != contactless.EdgeInserted {
					return nil
				}
				seen = ev
				return errFirstCard
			})
			if !errors.Is(err, errFirstCard) {
				return err
			}

			w := cmd.OutOrStdout()
			profile, cerr := contactless.Classify(seen.ATR)
			a, perr := atr.Parse(seen.ATR)
			if perr != nil {
				fmt.Fprintf(w, "ATR: %s (%v)\n", tlv.Spaced(seen.ATR), perr)
			} else {
				fmt.Fprint(w, a.Describe())
			}

			switch {
			case cerr == nil:
				fmt.Fprintf(w, "Card type: %s (readable)\n", profile.Name)
			case profile.Name != "":
				fmt.Fprintf(w, "Card type: %s (no read support)\n", profile.Name)
			default:
				fmt.Fprintln(w, "Card type: unknown")
			}
			return nil
		},
	}
}
