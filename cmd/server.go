package cmd

import (
	"musichud/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 musichud 服务器",
	Long:  `启动 WebSocket 传输与管理员 HTTP 接口，直到收到 SIGINT/SIGTERM`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
