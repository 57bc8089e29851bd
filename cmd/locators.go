package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/reelpost/internal/bootstrap"
	"github.com/xkilldash9x/reelpost/internal/config"
	"github.com/xkilldash9x/reelpost/internal/locator"
	"github.com/xkilldash9x/reelpost/internal/observability"
	"github.com/xkilldash9x/reelpost/internal/service"
)

type locatorsOptions struct {
	checkURL   string
	session    string
	jsonOutput bool
}

func newLocatorsCmd(a *app) *cobra.Command {
	opts := &locatorsOptions{}
	cmd := &cobra.Command{
		Use:   "locators",
		Short: "Print the effective locator table, or check it against a live page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := locator.Load(a.cfg.Locators.OverridesFile)
			if err != nil {
				return err
			}
			if opts.checkURL == "" {
				data, err := table.Marshal()
				if err != nil {
					return fmt.Errorf("failed to render locator table: %w", err)
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return checkLocators(cmd.Context(), a.cfg, table, opts, service.NewLauncher, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.checkURL, "check", "", "Open URL and report which chain entry matches each target.")
	cmd.Flags().StringVarP(&opts.session, "session", "s", "", "Restore this session's cookies before --check.")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print --check results as JSON lines.")
	return cmd
}

func checkLocators(ctx context.Context, cfg *config.Config, table locator.Table, opts *locatorsOptions, newLauncher service.LauncherFunc, out io.Writer) error {
	logger := observability.GetLogger()
	launcher, err := newLauncher(cfg.Browser, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := launcher.Close(); cerr != nil {
			logger.Warn("Failed to close browser", zap.Error(cerr))
		}
	}()

	page, err := launcher.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	if opts.session != "" {
		sc, ok := cfg.Session(opts.session)
		if !ok {
			return fmt.Errorf("%w: %q", service.ErrUnknownSession, opts.session)
		}
		domain := sc.Domain
		if domain == "" {
			if domain, err = bootstrap.RegistrableDomain(opts.checkURL); err != nil {
				return err
			}
		}
		cookies, err := bootstrap.NewCookieStore(sc.CookieFile, domain, logger).Load()
		if err != nil {
			return fmt.Errorf("failed to load session credentials: %w", err)
		}
		if err := page.SetCookies(ctx, cookies); err != nil {
			return fmt.Errorf("failed to restore session cookies: %w", err)
		}
	}

	checks, err := service.CheckLocators(ctx, page, opts.checkURL, table, logger)
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(out)
		for _, c := range checks {
			if err := enc.Encode(c); err != nil {
				return err
			}
		}
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tFOUND\tSTRATEGY\tERROR")
	for _, c := range checks {
		strategy := "-"
		if c.Found {
			strategy = fmt.Sprintf("%d/%d", c.Strategy, len(table.Chain(c.Target)))
		}
		fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", c.Target, c.Found, strategy, c.Error)
	}
	return tw.Flush()
}
