// Package cli is the argument-parsing shell: command dispatch and flag
// parsing over the core packages, nothing more. It follows a standard
// cobra+viper shape, with this project's config file and env prefix.
package cli

import (
	"fmt"
	"os"

	"github.com/kdorchestrator/kd/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "kd",
	Short: "kd orchestrates a multi-agent software development workflow over git branches",
	Long: `kd coordinates external AI coding assistant CLIs through a structured
pipeline: design, task breakdown, autonomous task execution, multi-reviewer
council consensus, and human approval. State lives as markdown and JSON
files under .kd/ in the repository.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.Version = version.Short()
	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default .kd/config.json)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable verbose output")
	rootCmd.PersistentFlags().String("repo", "", "repository root (default: current directory)")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("repo", rootCmd.PersistentFlags().Lookup("repo"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error getting working directory:", err)
			os.Exit(1)
		}
		viper.AddConfigPath(cwd + "/.kd")
		viper.SetConfigType("json")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("KD")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// repoRoot resolves the --repo flag or the current working directory.
func repoRoot() (string, error) {
	if r := viper.GetString("repo"); r != "" {
		return r, nil
	}
	return os.Getwd()
}
