package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/council/internal/config"
)

var configProject bool

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify council configuration.

Without arguments, displays every effective setting.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the value in the user config file.

Configuration is stored at ~/.config/council/config.yaml
Project-specific overrides can be placed in .council.yaml (use --project).
Environment variables such as LLM_MODEL and ANTHROPIC_API_KEY, and a .env
file in the working directory, override both.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch len(args) {
		case 0:
			return displayAllConfig(out)
		case 1:
			value, err := config.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(out, formatConfigValue(args[0], value))
			return nil
		default:
			path := config.GetUserConfigPath()
			if configProject {
				path = config.GetProjectConfigPath()
				if path == "" {
					path = filepath.Join(projectRoot(), ".council.yaml")
				}
			}
			if err := config.SetValue(path, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(out, "Set %s = %s in %s\n", args[0], formatConfigValue(args[0], args[1]), path)
			return nil
		}
	},
}

func init() {
	configCmd.Flags().BoolVar(&configProject, "project", false, "Write to the project .council.yaml instead of the user config")
}

// displayAllConfig prints every known key with its effective value and
// where the Anthropic key comes from.
func displayAllConfig(w io.Writer) error {
	for _, key := range config.Keys() {
		value, err := config.Get(key)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s: %s\n", key, formatConfigValue(key, value))
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "(api key source: %s)\n", config.GetAPIKeySource(cfg))
	return nil
}

// formatConfigValue renders a value for display, masking the API key.
func formatConfigValue(key string, value any) string {
	if key == "llm.api_key" {
		s, _ := value.(string)
		return config.MaskAPIKey(s)
	}
	return fmt.Sprint(value)
}
