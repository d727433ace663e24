package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/otcheredev/ris-db-connector/internal/adapters"
	"github.com/otcheredev/ris-db-connector/internal/cache"
	"github.com/otcheredev/ris-db-connector/internal/models"
	"github.com/otcheredev/ris-db-connector/internal/services"
	"github.com/otcheredev/ris-db-connector/pkg/logger"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func queryCmd() *cobra.Command {
	var (
		archiveFile string
		format      string
		baseURL     string
		logLevel    string
		timeout     time.Duration
		params      models.QueryParams
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Build one manifest from an archive property file and write it to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.InitWithWriter(logLevel, "console", os.Stderr)

			f, err := services.ParseFormat(format)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			factory := adapters.NewAdapterFactory()
			defer factory.CloseAll()

			registry := services.NewArchiveRegistry(factory, nil)
			if err := registry.LoadFile(ctx, archiveFile); err != nil {
				return err
			}

			mc := cache.NewMemoryCache()
			defer mc.Close()
			svc := services.NewManifestService(registry, nil, mc, time.Minute, services.WithBaseURL(baseURL))

			result, err := svc.Build(ctx, params)
			if err != nil {
				return err
			}
			if result.Partial != nil {
				log.Warn().Err(result.Partial).Msg("Manifest is missing results of failed queries")
			}
			log.Info().
				Str("archive", result.Archive).
				Int("patients", result.Counts.Patients).
				Int("studies", result.Counts.Studies).
				Int("series", result.Counts.Series).
				Int("instances", result.Counts.Instances).
				Msg("Manifest built")

			if err := svc.Render(cmd.OutOrStdout(), result, f); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&archiveFile, "archive-file", "", "archive property file")
	flags.StringVar(&format, "format", "xml", "manifest format: xml or json")
	flags.StringVar(&baseURL, "base-url", "", "WADO base URL written into XML manifests")
	flags.StringVar(&logLevel, "log-level", "warn", "log level")
	flags.DurationVar(&timeout, "timeout", 30*time.Second, "overall query timeout")
	flags.StringArrayVar(&params.PatientIDs, "patient", nil, "patient ID (repeatable)")
	flags.StringSliceVar(&params.StudyUIDs, "study", nil, "study instance UID (repeatable)")
	flags.StringArrayVar(&params.AccessionNumbers, "accession", nil, "accession number (repeatable)")
	flags.StringSliceVar(&params.SeriesUIDs, "series", nil, "series instance UID (repeatable)")
	flags.StringSliceVar(&params.SOPInstanceUIDs, "sop", nil, "SOP instance UID (repeatable)")
	cmd.MarkFlagRequired("archive-file")

	return cmd
}
