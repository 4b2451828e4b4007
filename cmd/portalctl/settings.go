package main

import (
	"errors"
	"fmt"
	"os"

	"incident-portal/internal/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	settingsPath  string
	settingsForce bool
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage the portal settings file",
}

var settingsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default settings file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(settingsPath); err == nil && !settingsForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", settingsPath)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err := config.DefaultSettings().Save(settingsPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", settingsPath)
		return nil
	},
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings (file plus PORTAL_SETTINGS_* overrides)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.LoadSettings(settingsPath)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		defer enc.Close()
		return enc.Encode(s)
	},
}

func init() {
	settingsCmd.PersistentFlags().StringVarP(&settingsPath, "file", "f", defaultSettingsPath(), "settings file path")
	settingsInitCmd.Flags().BoolVar(&settingsForce, "force", false, "overwrite an existing file")
	settingsCmd.AddCommand(settingsInitCmd, settingsShowCmd)
	rootCmd.AddCommand(settingsCmd)
}

func defaultSettingsPath() string {
	if p := os.Getenv("PORTAL_SETTINGS_FILE"); p != "" {
		return p
	}
	return "portal-settings.yaml"
}
