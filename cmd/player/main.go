package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/DoyleJ11/echowords/internal/config"
	"github.com/DoyleJ11/echowords/internal/player"
)

func main() {
	cobra.CheckErr(newCmd().ExecuteContext(context.Background()))
}

func newCmd() *cobra.Command {
	cfg := &config.Player{}
	cmd := &cobra.Command{
		Use:           "echowords [flags]",
		Short:         "Play echowords from the terminal.",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ApplyEnv(cmd.Flags()); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log, err := config.NewLogger(cfg.LogLevel, true)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return player.Run(ctx, *cfg, os.Stdin, cmd.OutOrStdout(), log)
		},
	}
	config.BindPlayer(cmd.Flags(), cfg)
	cmd.CompletionOptions.HiddenDefaultCmd = true
	return cmd
}
