// Command persistdemo wires the persistence units of a yaml file and places orders through
// them in one transaction per order.
package main

import (
	"fmt"
	"os"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-saas/persist/internal/config"
	"github.com/go-saas/persist/internal/zaplog"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "persistdemo",
		Short:         "Transaction demarcation across persistence units",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file, persist.yaml of the config paths by default")

	root.AddCommand(newUnitsCmd(&configFile))
	root.AddCommand(newRunCmd(&configFile))
	return root
}

func loadApp(configFile string) (*config.Config, *zaplog.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := zaplog.New(cfg.Logger.Production, cfg.Logger.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newUnitsCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "units",
		Short: "List the configured persistence units",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return err
			}
			for _, u := range cfg.Units {
				tag := u.Tag
				if tag == "" {
					tag = "-"
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", u.Name, tag, u.Driver)
			}
			return nil
		},
	}
}

func newRunCmd(configFile *string) *cobra.Command {
	var failing []string

	run := &cobra.Command{
		Use:   "run <item>...",
		Short: "Place one order per item, each in its own transaction",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadApp(*configFile)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			shop, err := newShop(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := shop.Close(ctx); err != nil {
					log.NewHelper(logger).Errorf("stop units: %v", err)
				}
			}()

			fail := make(map[string]bool, len(failing))
			for _, item := range failing {
				fail[item] = true
			}
			for _, item := range args {
				err := shop.PlaceOrder(ctx, item, fail[item])
				status := "placed"
				if err != nil {
					status = "rolled back: " + err.Error()
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", item, status)
			}
			report, err := shop.Report(ctx)
			if err != nil {
				return err
			}
			for _, line := range report {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	run.Flags().StringSliceVar(&failing, "fail", nil, "items whose order fails after writing")
	return run
}
