package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vango-dev/pomelo/internal/config"
	"github.com/vango-dev/pomelo/internal/errors"
)

func initCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Write a default pomelo.json",
		Long: `Write a pomelo.json with default connection settings.

Examples:
  pomelo init
  pomelo init ./client --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(cmd.OutOrStdout(), dir, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing pomelo.json")

	return cmd
}

func runInit(out io.Writer, dir string, force bool) error {
	if config.Exists(dir) {
		if !force {
			return errors.New(errors.CodeInvalidConfig).
				WithDetail(fmt.Sprintf("%s already exists in %s", config.ConfigFileName, dir)).
				WithSuggestion("Pass --force to overwrite it")
		}
		warn(out, "Overwriting existing %s", config.ConfigFileName)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	path := filepath.Join(dir, config.ConfigFileName)
	if err := config.New().SaveTo(path); err != nil {
		return err
	}

	success(out, "Wrote %s", path)
	info(out, "Edit host and port, then run 'pomelo listen'")
	return nil
}
