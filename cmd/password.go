package cmd

import (
	"fmt"
	"log"

	"musichud/core/auth"

	"github.com/spf13/cobra"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password <password>",
	Short: "生成 ADMIN_PASSWORD_HASH 使用的 bcrypt 哈希",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		hash, err := auth.HashPassword(args[0])
		if err != nil {
			log.Fatalf("生成哈希失败: %v", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
	},
}

func init() {
	rootCmd.AddCommand(hashPasswordCmd)
}
