package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/goods-scheduler/internal/config"
	"github.com/example/goods-scheduler/internal/probe"
)

func newPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Probe the exchange API host once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			p, err := probe.New(cfg.ExchangeAPIURL, 0, newLogger(cfg.LogLevel))
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			res := p.Measure(ctx)
			fmt.Printf("%s: %s\n", p.Host(), res)
			return nil
		},
	}
}
