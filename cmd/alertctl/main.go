package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"coinpaprika-price-alerts/config"
	"coinpaprika-price-alerts/internal/alert"
	"coinpaprika-price-alerts/internal/database"
	"coinpaprika-price-alerts/internal/price"
	"coinpaprika-price-alerts/internal/types"
	"coinpaprika-price-alerts/lib/helpers"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// PriceLookup returns the coin behind a symbol with its current USD price.
type PriceLookup func(ctx context.Context, symbol string) (price.PriceInfo, error)

type app struct {
	dbPath string
	lookup PriceLookup
	now    func() time.Time
}

func main() {
	config.InitConfig()
	log.SetLevel(log.WarnLevel)

	a := &app{lookup: coinPaprikaLookup, now: time.Now}
	if err := newRootCmd(a).Execute(); err != nil {
		os.Exit(1)
	}
}

func coinPaprikaLookup(ctx context.Context, symbol string) (price.PriceInfo, error) {
	feed := price.NewCoinPaprikaFeed(config.GetString("api_pro_key"), config.GetDuration("price_max_age"))
	return feed.Lookup(ctx, symbol)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "alertctl",
		Short:         "Manage price alerts",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	dbPath := a.dbPath
	if dbPath == "" {
		dbPath = config.GetString("database_path")
	}
	root.PersistentFlags().StringVar(&a.dbPath, "db", dbPath, "path to the alerts database")

	root.AddCommand(
		a.addCmd(),
		a.listCmd(),
		a.showCmd(),
		a.rmCmd(),
		a.enableCmd(true),
		a.enableCmd(false),
		a.sweepCmd(),
	)
	return root
}

func (a *app) withStore(fn func(s *database.AlertStore) error) error {
	db, err := database.InitDB(a.dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(database.NewAlertStore(db))
}

func (a *app) addCmd() *cobra.Command {
	var (
		alertType string
		condition string
		frequency string
		base      float64
		message   string
		exchange  string
		exchName  string
		expiresIn time.Duration
	)
	cmd := &cobra.Command{
		Use:   "add SYMBOL VALUE",
		Short: "Create an alert",
		Example: `  alertctl add BTC 60000 --condition above
  alertctl add ETH 10 --type percentage --condition crosses_up --frequency daily`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value float64
			if _, err := fmt.Sscanf(args[1], "%g", &value); err != nil {
				return errors.Wrapf(err, "invalid value %q", args[1])
			}

			rec := types.Alert{
				Symbol:       strings.ToUpper(strings.TrimSpace(args[0])),
				ExchangeID:   exchange,
				ExchangeName: exchName,
				AlertType:    types.AlertType(alertType),
				Condition:    types.Condition(condition),
				Value:        value,
				Frequency:    types.Frequency(frequency),
				Message:      message,
			}
			if expiresIn > 0 {
				rec.ExpiresAt = types.Time(a.now().Add(expiresIn).UTC())
			}
			if rec.AlertType == types.AlertTypePercentage {
				if base <= 0 {
					info, err := a.lookup(cmd.Context(), rec.Symbol)
					if err != nil {
						return errors.Wrap(err, "could not look up base price, pass --base")
					}
					base = info.PriceUSD
					fmt.Fprintf(cmd.OutOrStdout(), "Using %s (%s) at $%s as base price\n",
						info.Name, info.ID, helpers.FormatPriceUS(base, false))
				}
				rec.BasePrice = types.Float(base)
			}

			return a.withStore(func(s *database.AlertStore) error {
				created, err := s.Create(cmd.Context(), rec)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created alert %s\n", created.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&alertType, "type", string(types.AlertTypePrice), "price or percentage")
	cmd.Flags().StringVar(&condition, "condition", string(types.ConditionAbove), "above, below, crosses_up or crosses_down")
	cmd.Flags().StringVar(&frequency, "frequency", string(types.FrequencyOnce), "once, repeated or daily")
	cmd.Flags().Float64Var(&base, "base", 0, "base price for percentage alerts, defaults to the current price")
	cmd.Flags().StringVar(&message, "message", "", "custom notification text")
	cmd.Flags().StringVar(&exchange, "exchange", "", "exchange id")
	cmd.Flags().StringVar(&exchName, "exchange-name", "", "exchange display name")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "delete the alert after this long")
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *database.AlertStore) error {
				var alerts []types.Alert
				var err error
				if all {
					alerts, err = s.List(cmd.Context())
				} else {
					alerts, err = s.ListActive(cmd.Context())
				}
				if err != nil {
					return err
				}
				printAlerts(cmd.OutOrStdout(), alerts)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include triggered and expired alerts")
	return cmd
}

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *database.AlertStore) error {
				rec, err := s.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printAlert(cmd.OutOrStdout(), rec)
				return nil
			})
		},
	}
}

func (a *app) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm ID",
		Aliases: []string{"delete"},
		Short:   "Delete an alert",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *database.AlertStore) error {
				ok, err := s.Delete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return errors.Wrap(types.ErrNotFound, args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted alert %s\n", args[0])
				return nil
			})
		},
	}
}

func (a *app) enableCmd(enabled bool) *cobra.Command {
	use, verb := "enable", "Enabled"
	if !enabled {
		use, verb = "disable", "Disabled"
	}
	return &cobra.Command{
		Use:   use + " ID",
		Short: verb + " an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *database.AlertStore) error {
				ok, err := s.Update(cmd.Context(), args[0], types.AlertUpdate{Enabled: &enabled})
				if err != nil {
					return err
				}
				if !ok {
					return errors.Wrap(types.ErrNotFound, args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s alert %s\n", verb, args[0])
				return nil
			})
		},
	}
}

func (a *app) sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *database.AlertStore) error {
				n, err := alert.NewSweeper(s, 0, nil).Sweep(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired alerts\n", n)
				return nil
			})
		},
	}
}

func printAlerts(w io.Writer, alerts []types.Alert) {
	if len(alerts) == 0 {
		fmt.Fprintln(w, "No alerts.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSYMBOL\tRULE\tFREQUENCY\tSTATUS\tFIRED\tLAST TRIGGERED")
	for _, a := range alerts {
		status := string(a.Status)
		if !a.Enabled {
			status += " (disabled)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			a.ID, a.Symbol, describeRule(a), a.Frequency, status, a.TriggerCount,
			helpers.FormatRelative(a.LastTriggeredAt))
	}
	tw.Flush()
}

func printAlert(w io.Writer, a types.Alert) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", a.ID)
	fmt.Fprintf(tw, "Symbol:\t%s\n", a.Symbol)
	fmt.Fprintf(tw, "Rule:\t%s\n", describeRule(a))
	if a.ExchangeID != "" || a.ExchangeName != "" {
		fmt.Fprintf(tw, "Exchange:\t%s\n", strings.TrimSpace(a.ExchangeName+" "+exchangeID(a.ExchangeID)))
	}
	if a.BasePrice != nil {
		fmt.Fprintf(tw, "Base price:\t$%s\n", helpers.FormatPriceUS(*a.BasePrice, false))
	}
	fmt.Fprintf(tw, "Frequency:\t%s\n", a.Frequency)
	fmt.Fprintf(tw, "Enabled:\t%t\n", a.Enabled)
	fmt.Fprintf(tw, "Status:\t%s\n", a.Status)
	if a.LastCheckedPrice != nil {
		fmt.Fprintf(tw, "Last checked price:\t$%s\n", helpers.FormatPriceUS(*a.LastCheckedPrice, false))
	}
	fmt.Fprintf(tw, "Triggered:\t%d times, last %s\n", a.TriggerCount, helpers.FormatRelative(a.LastTriggeredAt))
	if a.ExpiresAt != nil {
		fmt.Fprintf(tw, "Expires:\t%s\n", helpers.FormatDate(*a.ExpiresAt))
	}
	if a.Message != "" {
		fmt.Fprintf(tw, "Message:\t%s\n", a.Message)
	}
	fmt.Fprintf(tw, "Created:\t%s\n", helpers.FormatDate(a.CreatedAt))
	tw.Flush()
}

func describeRule(a types.Alert) string {
	cond := strings.ReplaceAll(string(a.Condition), "_", " ")
	if a.AlertType == types.AlertTypePercentage {
		return fmt.Sprintf("%s %s", cond, helpers.FormatPercentage(a.Value))
	}
	return fmt.Sprintf("%s $%s", cond, helpers.FormatPriceUS(a.Value, false))
}

func exchangeID(id string) string {
	if id == "" {
		return ""
	}
	return "(" + id + ")"
}
