package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/eeglink/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long:  `Load the config file (plus defaults and EEGLINK_* overrides) and print the result as YAML.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigShow(configFile, cmd.OutOrStdout())
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := loadConfig(configFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration is valid")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func loadConfig(path string) (*config.GlobalConfig, error) {
	if path == "" {
		return config.Default()
	}
	return config.Load(path)
}

func runConfigShow(path string, out io.Writer) error {
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(map[string]*config.GlobalConfig{"eeglink": cfg})
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = out.Write(data)
	return err
}
