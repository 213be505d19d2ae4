package main

import (
	"github.com/coinkrazygaming/coinkrazy2-sub002/repositories/postgres"
	"github.com/spf13/cobra"
)

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the gateway tables",
		Long:  `Creates users, provider links, handshakes, rate-limit counters and the audit trail. Existing tables are left alone.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			factory, err := postgres.NewRepositoryFactory(c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer factory.Close()

			return factory.InitSchema(cmd.Context())
		},
	}
}
