package cli

import (
	"fmt"
	"sort"
	"time"

	"farecraft/token"

	"github.com/spf13/cobra"
)

func tokensCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Inspect or clear the cached trust tokens",
	}
	cmd.AddCommand(tokensShowCmd(a), tokensClearCmd(a))
	return cmd
}

func tokensShowCmd(a *app) *cobra.Command {
	var reveal bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the cached token set and whether it can be reused",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStores(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer st.close()

			scope := a.cfg.Token.ScopeKey
			ts, ok, err := st.tokens.Get(cmd.Context(), scope)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			decision := token.Classify(ts, ok, time.Now(), a.cfg.Token.RefreshMargin, a.cfg.Token.Required)
			fmt.Fprintf(out, "Scope:     %s\n", scope)
			fmt.Fprintf(out, "Freshness: %s\n", decision)
			if !ok {
				return nil
			}
			fmt.Fprintf(out, "Refreshed: %s\n", ts.RefreshedAt.Local().Format(time.RFC3339))
			fmt.Fprintf(out, "Expires:   %s (in %s)\n", ts.ExpiresAt.Local().Format(time.RFC3339), time.Until(ts.ExpiresAt).Round(time.Second))
			if missing := ts.Missing(a.cfg.Token.Required); len(missing) > 0 {
				fmt.Fprintf(out, "Missing:   %v\n", missing)
			}

			names := make([]string, 0, len(ts.Values))
			for name := range ts.Values {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				v := ts.Values[name]
				if !reveal {
					v = redact(v)
				}
				fmt.Fprintf(out, "  %-24s %s\n", name, v)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "print full token values")
	return cmd
}

func tokensClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop the cached token set so the next scrape acquires a new one",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStores(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer st.close()

			if err := st.tokens.Clear(cmd.Context(), a.cfg.Token.ScopeKey); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared tokens for %s\n", a.cfg.Token.ScopeKey)
			return nil
		},
	}
}

func redact(v string) string {
	if len(v) <= 8 {
		return "********"
	}
	return v[:8] + "..."
}
