package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/otcheredev/ris-db-connector/internal/adapters"
	"github.com/otcheredev/ris-db-connector/internal/query"
	"github.com/otcheredev/ris-db-connector/internal/services"
	"github.com/spf13/cobra"
)

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file-or-dir>...",
		Short: "Check archive property files without connecting to the databases",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := expandArchiveFiles(args)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var errs []error
			for _, file := range files {
				kinds, err := validateFile(file)
				if err != nil {
					fmt.Fprintf(out, "FAIL %s: %v\n", file, err)
					errs = append(errs, err)
					continue
				}
				fmt.Fprintf(out, "OK   %s: %v\n", file, kinds)
			}
			return errors.Join(errs...)
		},
	}
}

func validateFile(path string) ([]query.KeyKind, error) {
	props, err := query.LoadProperties(path)
	if err != nil {
		return nil, err
	}
	settings, err := adapters.SettingsFromProperties(props, path)
	if err != nil {
		return nil, err
	}
	return services.ValidateArchive(settings, props)
}

func expandArchiveFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(arg, "*.properties"))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, errors.New("no archive property files found")
	}
	return files, nil
}
