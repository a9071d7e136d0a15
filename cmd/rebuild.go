package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Recompute every embedding and rewrite the index cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		spinner := getSpinner("🔄 Rebuilding index...")
		docs, err := a.index.Rebuild(cmd.Context())
		spinner.Finish()
		if err != nil {
			return err
		}
		color.Green("\n✓ Index rebuilt with %d texts\n", docs)
		return nil
	},
}

var warmupCmd = &cobra.Command{
	Use:   "warmup",
	Short: "Load the chat model into memory and report its health",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		spinner := getSpinner("🤖 Warming up " + cfg.LLM.Model + "...")
		err = a.orchestrator.Warmup(cmd.Context())
		spinner.Finish()
		if err != nil {
			return err
		}
		status := a.orchestrator.Health(cmd.Context())
		if !status.OllamaOK {
			color.Red("\n✗ Model unhealthy: %s\n", status.Error)
			return nil
		}
		color.Green("\n✓ Model ready: %s\n", status.Response)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
	rootCmd.AddCommand(warmupCmd)
}
