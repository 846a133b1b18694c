package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/pritzvi/linked-out/internal/keys"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "linked-out"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage linked-out configuration.

Running bare 'linked-out config' is the same as 'linked-out config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# linked-out configuration
# See: linked-out config show (for effective values and sources)

# State/data directory (default: ~/.config/linked-out)
# state_dir: {{ .StateDir }}

# SQLite session history path (default: ~/.config/linked-out/linked-out.db)
# db_path: {{ .DBPath }}

# Results CSV files are written under <results_dir>/<search-id>/
results_dir: "{{ .ResultsDir }}"

# API server port
port: {{ .Port }}

# How often the completion rule is checked and progress is printed
poll_interval: "{{ .PollInterval }}"

# Automation worker: receives the launch payload as JSON on stdin and
# writes one JSON event per line on stdout
worker:
  command: "{{ .WorkerCommand }}"
  args: [{{ range $i, $a := .WorkerArgs }}{{ if $i }}, {{ end }}"{{ $a }}"{{ end }}]

# Resume summarization
anthropic:
  # API key (default: $ANTHROPIC_API_KEY)
  # api_key: ""
  model: "{{ .AnthropicModel }}"
`

type configTemplateData struct {
	StateDir       string
	DBPath         string
	ResultsDir     string
	Port           int
	PollInterval   string
	WorkerCommand  string
	WorkerArgs     []string
	AnthropicModel string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:       viper.GetString("state_dir"),
		DBPath:         viper.GetString("db_path"),
		ResultsDir:     viper.GetString("results_dir"),
		Port:           viper.GetInt("port"),
		PollInterval:   viper.GetDuration("poll_interval").String(),
		WorkerCommand:  viper.GetString("worker.command"),
		WorkerArgs:     viper.GetStringSlice("worker.args"),
		AnthropicModel: viper.GetString("anthropic.model"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
	Secret bool
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "LINKEDOUT_STATE_DIR"},
	{Key: "db_path", EnvVar: "LINKEDOUT_DB_PATH"},
	{Key: "results_dir", EnvVar: "LINKEDOUT_RESULTS_DIR"},
	{Key: "port", EnvVar: "LINKEDOUT_PORT"},
	{Key: "poll_interval", EnvVar: "LINKEDOUT_POLL_INTERVAL"},
	{Key: "worker.command", EnvVar: "LINKEDOUT_WORKER_COMMAND"},
	{Key: "worker.args", EnvVar: "LINKEDOUT_WORKER_ARGS"},
	{Key: "anthropic.api_key", EnvVar: "LINKEDOUT_ANTHROPIC_API_KEY", Secret: true},
	{Key: "anthropic.model", EnvVar: "LINKEDOUT_ANTHROPIC_MODEL"},
}

func configShowRun() error {
	cfgPath := viper.ConfigFileUsed()
	if cfgPath == "" {
		p, err := configFilePath()
		if err != nil {
			return err
		}
		cfgPath = p
	}

	fileValues := map[string]bool{}
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
		fileValues = readConfigFileValues(cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	table := ui.Table([]string{"Key", "Value", "Source"})
	for _, k := range configKeys {
		table.Append([]string{k.Key, displayValue(k), detectSource(k.Key, k.EnvVar, fileValues)})
	}
	table.Render()
	return nil
}

// displayValue renders a config value for display, masking secrets.
func displayValue(k configKeyInfo) string {
	val := viper.Get(k.Key)
	if k.Secret {
		if s := viper.GetString(k.Key); s != "" {
			return keys.Mask(s)
		}
	}
	if list, ok := val.([]string); ok {
		return strings.Join(list, " ")
	}
	return fmt.Sprint(val)
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set, set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'linked-out config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
