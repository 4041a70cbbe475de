package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/factloop/internal/model"
)

const precedence = `1. CLI flags
2. Environment variables (FACTLOOP_*, e.g. FACTLOOP_REFINE_MAX_ROUNDS,
   plus OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY)
3. Config file (~/.factloop/config.yaml)
4. Defaults`

const envHints = `export OPENAI_API_KEY=sk-...
export ANTHROPIC_API_KEY=sk-ant-...
export GEMINI_API_KEY=...
export ELASTIC_USERNAME=... ELASTIC_PASSWORD=...
export OLLAMA_BASE_URL=http://localhost:11434`

var (
	initPath  string
	initForce bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the factloop configuration",
	Long:  "Settings are merged in this order, first wins:\n\n" + precedence,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the merged configuration with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(redact(*cfg))
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}

		source := viper.ConfigFileUsed()
		if source == "" {
			source = "none, defaults and environment only"
		}

		out := cmd.OutOrStdout()
		banner(out, "Effective configuration")
		fmt.Fprintf(out, "  source: %s\n\n", source)
		fmt.Fprintln(out, strings.TrimRight(string(data), "\n"))
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Precedence:")
		fmt.Fprintln(out, indent(precedence, "  "))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file populated with the defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := initPath
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("locate home directory: %w", err)
			}
			path = filepath.Join(home, ".factloop", "config.yaml")
		}
		if initForce {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("replace %s: %w", path, err)
			}
		}
		if err := writeDefaultConfig(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n  Review it with: factloop config show\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configInitCmd)

	configInitCmd.Flags().StringVar(&initPath, "path", "", "where to write the file (default ~/.factloop/config.yaml)")
	configInitCmd.Flags().BoolVar(&initForce, "force", false, "replace an existing file")
}

// writeDefaultConfig creates path with the defaults. An existing file is an error.
func writeDefaultConfig(path string) (err error) {
	data, err := yaml.Marshal(model.DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal defaults: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if os.IsExist(err) {
		return fmt.Errorf("%s already exists (use --force to replace it)", path)
	}
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	var b strings.Builder
	b.WriteString("# factloop configuration\n#\n# Precedence, first wins:\n")
	b.WriteString(indent(precedence, "#   "))
	b.WriteString("\n\n")
	b.Write(data)
	b.WriteString("\n# Keep credentials out of this file; set them in the environment or .env:\n")
	b.WriteString(indent(envHints, "#   "))
	b.WriteString("\n")

	_, err = io.WriteString(f, b.String())
	return err
}

// redact masks credentials for display
func redact(cfg model.Config) model.Config {
	for _, s := range []*string{
		&cfg.LLM.APIKey,
		&cfg.Retrieval.Embedding.APIKey,
		&cfg.Retrieval.Elastic.Password,
		&cfg.Retrieval.TFC.Key,
	} {
		if *s != "" {
			*s = "********"
		}
	}
	// postgres DSNs carry passwords
	if cfg.Archive.Driver == "pgx" && cfg.Archive.DSN != "" {
		cfg.Archive.DSN = "********"
	}
	return cfg
}

func banner(w io.Writer, title string) {
	rule := strings.Repeat("═", 59)
	fmt.Fprintf(w, "\n%s\n  %s\n%s\n\n", rule, title, rule)
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
