package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/otcheredev/ris-db-connector/internal/config"
	"github.com/otcheredev/ris-db-connector/internal/database"
	"github.com/otcheredev/ris-db-connector/internal/repository"
	"github.com/otcheredev/ris-db-connector/pkg/logger"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Manage the manifest audit trail",
	}

	var (
		envFile   string
		olderThan time.Duration
	)
	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete audit entries older than a retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}

			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			logger.Init(cfg.Log.Level, cfg.Log.Format)
			if !cfg.Database.Enabled {
				return errors.New("audit trail is disabled (AUDIT_ENABLED=false)")
			}

			if err := database.Connect(database.Config{
				Host:     cfg.Database.Host,
				Port:     cfg.Database.Port,
				User:     cfg.Database.User,
				Password: cfg.Database.Password,
				DBName:   cfg.Database.DBName,
				SSLMode:  cfg.Database.SSLMode,
				LogLevel: cfg.Database.LogLevel,
			}); err != nil {
				return err
			}
			defer database.Close()

			cutoff := time.Now().Add(-olderThan)
			n, err := repository.NewAuditRepository().DeleteOlderThan(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("Audit trail purged")
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d audit entries\n", n)
			return nil
		},
	}
	purgeCmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file to load when present")
	purgeCmd.Flags().DurationVar(&olderThan, "older-than", 90*24*time.Hour, "retention period")

	cmd.AddCommand(purgeCmd)
	return cmd
}
