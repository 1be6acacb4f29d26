package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/goods-scheduler/internal/config"
	"github.com/example/goods-scheduler/internal/plans"
)

func newPlanCmd() *cobra.Command {
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Inspect exchange plans",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List configured plans and their target times",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			loc, err := time.LoadLocation(cfg.Preference.Timezone)
			if err != nil {
				return fmt.Errorf("%w: resolve timezone %q: %v", config.ErrInvalid, cfg.Preference.Timezone, err)
			}

			source := plans.FileSource{Path: cfg.PlansFile}
			ps, err := source.Plans(cmd.Context())
			if err != nil {
				return err
			}
			if len(ps) == 0 {
				fmt.Println("no exchange plans configured")
				return nil
			}
			for _, p := range ps {
				fmt.Printf("%s  account=%s  good=%s  fires=%s\n",
					p.ID, p.Account.UID, p.Good.Name, p.TargetTime().In(loc).Format(time.RFC3339))
			}
			return nil
		},
	}

	planCmd.AddCommand(listCmd)
	return planCmd
}
