package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sourceplane/flowline/internal/config"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show user settings",
	Long:  "Show the settings stored in the flowline home. Use 'flowline settings set <key> <value>' to change one.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showSettings(cmd)
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setSetting(cmd, args[0], args[1])
	},
}

func registerSettingsCommand(root *cobra.Command) {
	root.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsSetCmd)
}

func showSettings(cmd *cobra.Command) error {
	home := config.Home()
	settings, err := config.LoadSettings(home)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Settings (%s):\n", home)
	for _, key := range config.SettingKeys() {
		value, _ := settings.Get(key)
		fmt.Fprintf(out, "  %s: %s  [%s]\n", key, value, strings.Join(config.Options(key), "|"))
	}
	return nil
}

func setSetting(cmd *cobra.Command, key, value string) error {
	home := config.Home()
	settings, err := config.LoadSettings(home)
	if err != nil {
		return err
	}
	if err := settings.Set(key, value); err != nil {
		return err
	}
	if err := settings.Save(home); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s set to %s\n", key, value)
	return nil
}
