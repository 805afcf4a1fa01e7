package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Anumulaashok/resume-builder-backend/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "管理数据库迁移",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "执行全部未应用的迁移",
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("unwrap sql db: %w", err)
		}
		defer sqlDB.Close()
		if err := database.Migrate(cmd.Context(), sqlDB); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "打印迁移状态",
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("unwrap sql db: %w", err)
		}
		defer sqlDB.Close()
		return database.MigrationStatus(cmd.Context(), sqlDB)
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}
