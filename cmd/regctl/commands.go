package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/regchan/core"
	"github.com/signalsfoundry/regchan/internal/regdb"
	"github.com/signalsfoundry/regchan/model"
)

var bandFlagValues = map[string]model.Band{
	"2g": model.Band2G,
	"5g": model.Band5G,
	"6g": model.Band6G,
}

func parseBand(s string) (model.Band, error) {
	b, ok := bandFlagValues[strings.ToLower(s)]
	if !ok {
		return 0, fmt.Errorf("unknown band %q (want 2g, 5g or 6g)", s)
	}
	return b, nil
}

var apTypeFlagValues = map[string]model.APPowerType{
	"lpi": model.APTypeLPI,
	"sp":  model.APTypeSP,
	"vlp": model.APTypeVLP,
}

func (a *app) channelsCmd() *cobra.Command {
	var (
		phy      uint8
		all      bool
		afcEvent string
	)
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "Print the current channel list of a radio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			r, err := a.buildRadio(ctx)
			if err != nil {
				return err
			}
			defer r.Close()

			if afcEvent != "" {
				ev, err := regdb.LoadAFCEventFile(afcEvent)
				if err != nil {
					return err
				}
				n, err := r.ProcessAFCEvent(ctx, phy, ev)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "AFC event %d applied to %d channels\n", ev.RequestID, n)
			}

			e, err := r.Engine(phy)
			if err != nil {
				return err
			}
			return writeList(cmd.OutOrStdout(), e.Current(), all)
		},
	}
	cmd.Flags().Uint8Var(&phy, "phy", 0, "radio to print")
	cmd.Flags().BoolVar(&all, "all", false, "include disabled channels")
	cmd.Flags().StringVar(&afcEvent, "afc-event", "", "AFC power event (YAML) to apply first")
	return cmd
}

func (a *app) masterCmd() *cobra.Command {
	var (
		phy    uint8
		apType string
		all    bool
	)
	cmd := &cobra.Command{
		Use:   "master",
		Short: "Print the regulatory master list of a radio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := a.buildRadio(cmd.Context())
			if err != nil {
				return err
			}
			defer r.Close()
			e, err := r.Engine(phy)
			if err != nil {
				return err
			}

			list := e.Master()
			if apType != "" {
				ap, ok := apTypeFlagValues[strings.ToLower(apType)]
				if !ok {
					return fmt.Errorf("unknown AP power type %q", apType)
				}
				list = e.AP6GMaster(ap)
				if list == nil {
					return fmt.Errorf("radio %d has no 6GHz master list", phy)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "country %s, domain pair 0x%04X, table %s\n",
				r.Country().Current, e.Domain().ID, e.Table().Name())
			return writeList(cmd.OutOrStdout(), list, all)
		},
	}
	cmd.Flags().Uint8Var(&phy, "phy", 0, "radio to print")
	cmd.Flags().StringVar(&apType, "ap-type", "", "print the 6GHz master of this AP power type (lpi, sp, vlp)")
	cmd.Flags().BoolVar(&all, "all", false, "include disabled channels")
	return cmd
}

// opclassCmd needs no database: operating classes depend only on the
// country code.
func (a *app) opclassCmd() *cobra.Command {
	var (
		band  string
		bw    uint16
		class uint8
	)
	cmd := &cobra.Command{
		Use:   "opclass <channel>",
		Short: "Map a channel to its operating class, or expand a class CFI",
		Long: "With --class, the argument is a channel center frequency index of that\n" +
			"global operating class and its 20MHz channels are printed.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.ParseUint(args[0], 10, 8)
			if err != nil {
				return fmt.Errorf("channel %q: %w", args[0], err)
			}
			ch := uint8(n)
			out := cmd.OutOrStdout()

			if class != 0 {
				subs, err := core.SubChannels(class, ch)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "class %d cfi %d: %v\n", class, ch, subs)
				return nil
			}

			b, err := parseBand(band)
			if err != nil {
				return err
			}
			id, ok := core.OpClassFromChannel(a.cfg.Country, b, ch, bw)
			if !ok {
				return fmt.Errorf("%w: %s channel %d at %dMHz in %s",
					model.ErrInvalidChannel, b, ch, bw, a.cfg.Country)
			}
			fmt.Fprintf(out, "%s channel %d at %dMHz: operating class %d\n", b, ch, bw, id)
			return nil
		},
	}
	cmd.Flags().StringVar(&band, "band", "5g", "band of the channel (2g, 5g, 6g)")
	cmd.Flags().Uint16Var(&bw, "bw", 20, "channel bandwidth in MHz")
	cmd.Flags().Uint8Var(&class, "class", 0, "global operating class to expand")
	return cmd
}

func (a *app) ctlCmd() *cobra.Command {
	var phy uint8
	cmd := &cobra.Command{
		Use:   "ctl",
		Short: "Print the CBOR CTL summary sent southbound for a radio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := a.buildRadio(cmd.Context())
			if err != nil {
				return err
			}
			defer r.Close()
			e, err := r.Engine(phy)
			if err != nil {
				return err
			}

			sum := core.CTLSummaryFor(e.Domain())
			payload, err := core.EncodeCTLSummary(sum)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pair 0x%04X 2g %s (ctl %d) 5g %s (ctl %d)\n",
				sum.PairID, core.DomainName(sum.Domain2G), sum.CTL2G, core.DomainName(sum.Domain5G), sum.CTL5G)
			fmt.Fprintln(out, hex.EncodeToString(payload))
			return nil
		},
	}
	cmd.Flags().Uint8Var(&phy, "phy", 0, "radio to print")
	return cmd
}

func writeList(w io.Writer, list model.ChannelList, all bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHAN\tFREQ\tSTATE\tBW\tTX\tPSD\tFLAGS")
	for _, ch := range list {
		if ch.State == model.StateInvalid || (!all && ch.IsDisabled()) {
			continue
		}
		psd := "-"
		if ch.PSDFlag {
			psd = strconv.Itoa(int(ch.PSDEIRP))
		}
		bw := strconv.Itoa(int(ch.MaxBW))
		if ch.MinBW != ch.MaxBW {
			bw = fmt.Sprintf("%d-%d", ch.MinBW, ch.MaxBW)
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%d\t%s\t%s\n",
			ch.ChanNum, ch.CenterFreq, ch.State, bw, ch.TxPower, psd, ch.Flags)
	}
	return tw.Flush()
}
