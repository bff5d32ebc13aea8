package cmd

import (
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nohvenell/steam-game-crawler/internal/config"
	"github.com/nohvenell/steam-game-crawler/internal/logging"
	"github.com/nohvenell/steam-game-crawler/internal/steam"
)

func newAppIDsCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "appids",
		Short: "Fetches the public app catalog and prints its ids",
		Long: `Downloads the full public app catalog and writes one app id per
line, suitable as input for 'crawl --ids'.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			client := steam.NewAppListClient(steam.AppListConfig{
				URL: cfg.Steam.AppListURL,
				Client: steam.ClientConfig{
					MaxAttempts: cfg.Crawl.MaxAttempts,
					BackoffBase: cfg.BackoffBase(),
					UserAgent:   cfg.Steam.UserAgent,
				},
			}, &http.Client{Timeout: cfg.HTTPTimeout()}, nil, logger)

			ids, err := client.AppIDs(cmd.Context())
			if err != nil {
				return err
			}

			dst := os.Stdout
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				defer f.Close()
				dst = f
			}
			for _, id := range ids {
				if _, err := fmt.Fprintln(dst, strconv.FormatInt(id, 10)); err != nil {
					return fmt.Errorf("write app id: %w", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write ids to this file instead of stdout")
	return cmd
}
