package cmd

import (
	"github.com/spf13/cobra"
	"poker-pipeline/config"
	server2 "poker-pipeline/server"
)

func server(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "start the pipeline orchestrator",
		Run: func(cmd *cobra.Command, args []string) {
			server2.RunHttp(config)
		},
	}
}
