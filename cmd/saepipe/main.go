// Command saepipe runs the sparse autoencoder pipeline end to end:
// chunking a corpus into sentences, embedding them, training the SAE, and
// interpreting the learned features.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/josephtey/predictive-saes/logging"
)

var version = "0.1.0"

var (
	flagLogStyle string
	flagLogLevel string
	flagConfig   string
)

var rootCmd = &cobra.Command{
	Use:   "saepipe",
	Short: "Saepipe - sparse autoencoder training and feature interpretation",
	Long: `Saepipe trains a sparse autoencoder over sentence embeddings and
produces human-readable interpretations of each learned feature.

Typical flow:
  saepipe chunk     - split a corpus into a sentences CSV
  saepipe embed     - embed the sentences into a .npy matrix
  saepipe train     - train the SAE and write checkpoints to a run folder
  saepipe interpret - label and score features with an LLM`,
	Version: version,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogStyle, "log-style", "terminal", "log output style (terminal, json, noop)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "minimum log level")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "optional YAML config file")

	viper.SetEnvPrefix("SAEPIPE")
	viper.AutomaticEnv()
	_ = viper.BindEnv("openrouter_api_key", "OPENROUTER_API_KEY")
	_ = viper.BindEnv("embed_api_key", "SAEPIPE_EMBED_API_KEY")

	rootCmd.AddCommand(chunkCmd)
	rootCmd.AddCommand(embedCmd)
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(interpretCmd)
}

func newLogger() *zap.Logger {
	return logging.New(logging.Style(flagLogStyle), flagLogLevel)
}
