package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/factloop/internal/metrics"
	"github.com/ppiankov/factloop/internal/model"
	"github.com/ppiankov/factloop/internal/pipeline"
	"github.com/ppiankov/factloop/internal/store"
)

const version = "factloop v0.1.0"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "factloop",
	Short: "Factloop - iterative claim verification with an evaluator in the loop",
	Long: `Factloop checks a claim against retrieved evidence.

It identifies the claim's check points, gathers evidence from the
configured search backends, drafts a verdict and lets an evaluator
score it. Each round either accepts the evaluator's follow-up question,
asks your own, or stops. The final report cites its evidence by index.

Verdicts are one of: false, partially false, true, unverifiable.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.factloop/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig seeds viper with the defaults, then merges the config file and ENV variables
func initConfig() {
	if err := seedDefaults(viper.GetViper()); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading defaults: %v\n", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(filepath.Join(home, ".factloop"))
		viper.SetConfigName("config")
	}

	// FACTLOOP_LLM_PROVIDER overrides llm.provider
	viper.SetEnvPrefix("FACTLOOP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.MergeInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	} else if err != nil && cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Error reading config file %s: %v\n", cfgFile, err)
	}
}

// seedDefaults loads model.DefaultConfig into v so every key is known to
// AutomaticEnv, including keys absent from the config file
func seedDefaults(v *viper.Viper) error {
	data, err := yaml.Marshal(model.DefaultConfig())
	if err != nil {
		return err
	}
	v.SetConfigType("yaml")
	return v.ReadConfig(bytes.NewReader(data))
}

// loadConfig returns the effective configuration
func loadConfig() (*model.Config, error) {
	return decodeConfig(viper.GetViper())
}

func decodeConfig(v *viper.Viper) (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyEnvKeys(cfg)
	return cfg, nil
}

// applyEnvKeys fills credentials left empty by the config from the usual variables
func applyEnvKeys(cfg *model.Config) {
	setIfEmpty := func(dst *string, names ...string) {
		for _, name := range names {
			if *dst != "" {
				return
			}
			*dst = os.Getenv(name)
		}
	}

	switch strings.ToLower(cfg.LLM.Provider) {
	case "openai":
		setIfEmpty(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	case "anthropic", "claude":
		setIfEmpty(&cfg.LLM.APIKey, "ANTHROPIC_API_KEY")
	case "ollama":
		setIfEmpty(&cfg.LLM.BaseURL, "OLLAMA_BASE_URL")
	}

	switch strings.ToLower(cfg.Retrieval.Embedding.Provider) {
	case "", "openai":
		setIfEmpty(&cfg.Retrieval.Embedding.APIKey, "OPENAI_API_KEY")
	case "gemini", "genai":
		setIfEmpty(&cfg.Retrieval.Embedding.APIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	}

	setIfEmpty(&cfg.Retrieval.Elastic.Username, "ELASTIC_USERNAME")
	setIfEmpty(&cfg.Retrieval.Elastic.Password, "ELASTIC_PASSWORD")
	setIfEmpty(&cfg.Retrieval.TFC.Key, "TFC_API_KEY")
}

// newLogger builds the process logger. Logs go to stderr so stdout stays clean for reports.
func newLogger() (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.Encoding = "console"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return zcfg.Build()
}

// runtimeDeps holds what a command needs to run sessions
type runtimeDeps struct {
	cfg      *model.Config
	logger   *zap.Logger
	pipeline *pipeline.Pipeline
	archive  *store.Store
}

func (d *runtimeDeps) Close() {
	if d.archive != nil {
		if err := d.archive.Close(); err != nil {
			d.logger.Warn("closing archive", zap.Error(err))
		}
	}
	_ = d.logger.Sync()
}

// setup loads configuration and builds the pipeline. An archive that cannot
// be opened is logged and skipped.
func setup(ctx context.Context, mutate func(*model.Config)) (*runtimeDeps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(cfg)
	}

	logger, err := newLogger()
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	deps := &runtimeDeps{cfg: cfg, logger: logger}

	var archive pipeline.Archive
	if cfg.Archive.Driver != "" {
		st, err := store.Open(ctx, cfg.Archive)
		if err != nil {
			logger.Warn("session archive disabled", zap.Error(err))
		} else {
			deps.archive = st
			archive = st
		}
	}

	p, err := pipeline.Build(ctx, cfg, logger, metrics.Default(), archive)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.pipeline = p
	return deps, nil
}
