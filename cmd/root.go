package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	cfgPkg "github.com/tonyzinh/system-hospital-backend/pkg/config"
)

var (
	configPath string
	ollamaURL  string
	model      string
	dataDir    string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "hospital-ai",
	Short:         "Retrieval and chat assistant for the hospital backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Path to config file")
	flags.StringVar(&ollamaURL, "ollama-url", "", "Ollama server URL")
	flags.StringVar(&model, "model", "", "Chat model to use")
	flags.StringVar(&dataDir, "data-dir", "", "Directory holding the corpus and index files")
	flags.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

// loadConfig reads the config file and lets explicitly set flags win.
func loadConfig(cmd *cobra.Command) (*cfgPkg.Config, error) {
	cfg, err := cfgPkg.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("ollama-url") {
		cfg.LLM.BaseURL = ollamaURL
	}
	if flags.Changed("model") {
		cfg.LLM.Model = model
	}
	if flags.Changed("data-dir") {
		cfg.Index.DataDir = dataDir
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
	}
	return cfg, nil
}
