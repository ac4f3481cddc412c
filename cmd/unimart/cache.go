package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the server cache (admin token required)",
	}
	cmd.AddCommand(cacheFlushCmd(), cacheInvalidateCmd())
	return cmd
}

func cacheFlushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Remove every cached entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c, release, err := newClient(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer release()

			if err := c.FlushCache(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cache flushed")
			return nil
		},
	}
}

func cacheInvalidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <pattern>",
		Short: "Remove cached entries matching a glob pattern, e.g. 'product:*'",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c, release, err := newClient(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer release()

			removed, err := c.InvalidateCache(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d keys matching %q\n", removed, args[0])
			return nil
		},
	}
}
