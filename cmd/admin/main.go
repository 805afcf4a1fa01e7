package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Anumulaashok/resume-builder-backend/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "admin",
	Short:         "简历服务运维工具",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var dbFlags databaseFlags

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&dbFlags.host, "db-host", "", "数据库 Host（可选，默认读 DATABASE_HOST）")
	pf.IntVar(&dbFlags.port, "db-port", 0, "数据库 Port（可选，默认读 DATABASE_PORT）")
	pf.StringVar(&dbFlags.name, "db-name", "", "数据库名（可选，默认读 POSTGRES_DB）")
	pf.StringVar(&dbFlags.user, "db-user", "", "数据库用户（可选，默认读 POSTGRES_USER）")
	pf.StringVar(&dbFlags.password, "db-password", "", "数据库密码（可选，默认读 POSTGRES_PASSWORD）")
	pf.StringVar(&dbFlags.sslMode, "db-sslmode", "", "数据库 SSLMODE（可选，默认读 DATABASE_SSLMODE）")
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
