package cli

import (
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"prisignal/internal/app"
	"prisignal/internal/config"
	"prisignal/internal/log"
)

func newServeCmd(cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the signal hub over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			if err := log.SetLevelString(cfg.LogLevel); err != nil {
				return err
			}
			if cfg.File != "" {
				log.Info().Str("file", cfg.File).Msg("using config file")
			}

			ctx, stop := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx, cfg)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}
