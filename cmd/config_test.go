package cmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pritzvi/linked-out/internal/output"
)

// testEnv sets up isolated config dir, viper, and output for testing.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	// Override configDirFunc for tests
	origFunc := configDirFunc
	configDirFunc = func() (string, error) { return dir, nil }
	t.Cleanup(func() { configDirFunc = origFunc })

	// Reset viper
	viper.Reset()
	setDefaults(dir)
	t.Cleanup(viper.Reset)

	// Initialize output, discarding what commands print
	ui = output.New()
	ui.Out = io.Discard
	ui.ErrOut = io.Discard

	// Drop any store opened by an earlier test
	dataStore = nil
	t.Cleanup(func() {
		if dataStore != nil {
			_ = dataStore.Close()
			dataStore = nil
		}
	})

	return dir
}

func readConfigFile(t *testing.T, dir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	return string(data)
}

func TestConfigInit_CreatesFile(t *testing.T) {
	dir := testEnv(t)

	require.NoError(t, configInitRun())

	data := readConfigFile(t, dir)
	assert.Contains(t, data, "linked-out configuration")
	assert.Contains(t, data, "worker:")
	assert.Contains(t, data, "port: 8420")
	assert.Contains(t, data, `poll_interval: "10s"`)
	assert.Contains(t, data, `results_dir: "linkedin_searches"`)
	assert.Contains(t, data, "args: []")

	// The generated file must parse back to the same values.
	viper.SetConfigFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, viper.ReadInConfig())
	assert.Equal(t, 8420, viper.GetInt("port"))
	assert.Equal(t, 10*time.Second, viper.GetDuration("poll_interval"))
}

func TestConfigInit_Overwrite(t *testing.T) {
	tests := []struct {
		name    string
		force   bool
		wantErr string
	}{
		{name: "refused without force", wantErr: "already exists"},
		{name: "replaced with force", force: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := testEnv(t)
			cfgPath := filepath.Join(dir, "config.yaml")
			require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0o644))

			configForce = tt.force
			t.Cleanup(func() { configForce = false })

			err := configInitRun()
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				assert.Equal(t, "existing", readConfigFile(t, dir))
				return
			}
			require.NoError(t, err)
			assert.Contains(t, readConfigFile(t, dir), "linked-out configuration")
		})
	}
}

func TestConfigInit_DryRun(t *testing.T) {
	dir := testEnv(t)
	dryRun = true
	ui.DryRun = true
	t.Cleanup(func() { dryRun = false })

	require.NoError(t, configInitRun())
	assert.NoFileExists(t, filepath.Join(dir, "config.yaml"))
}

func TestConfigInit_WorkerArgs(t *testing.T) {
	dir := testEnv(t)
	viper.Set("worker.command", "python3")
	viper.Set("worker.args", []string{"worker.py", "--headless"})

	require.NoError(t, configInitRun())

	data := readConfigFile(t, dir)
	assert.Contains(t, data, `command: "python3"`)
	assert.Contains(t, data, `args: ["worker.py", "--headless"]`)
}

func TestConfigShow(t *testing.T) {
	dir := testEnv(t)
	var buf bytes.Buffer
	ui.Out = &buf

	require.NoError(t, configShowRun())
	assert.Contains(t, buf.String(), "(none)")
	assert.Contains(t, buf.String(), "(default)")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("port: 9000\n"), 0o644))
	t.Setenv("LINKEDOUT_RESULTS_DIR", "/tmp/results")
	buf.Reset()

	require.NoError(t, configShowRun())
	out := buf.String()
	assert.Contains(t, out, filepath.Join(dir, "config.yaml"))
	assert.Contains(t, out, "(file)")
	assert.Contains(t, out, "(env: LINKEDOUT_RESULTS_DIR)")
}

func TestConfigShow_MasksSecrets(t *testing.T) {
	testEnv(t)
	var buf bytes.Buffer
	ui.Out = &buf
	viper.Set("anthropic.api_key", "sk-ant-secret-1234")

	require.NoError(t, configShowRun())
	assert.NotContains(t, buf.String(), "sk-ant-secret")
	assert.Contains(t, buf.String(), "1234")
}

func TestDisplayValue(t *testing.T) {
	testEnv(t)
	viper.Set("worker.args", []string{"-m", "worker"})

	assert.Equal(t, "-m worker", displayValue(configKeyInfo{Key: "worker.args"}))
	assert.Equal(t, "8420", displayValue(configKeyInfo{Key: "port"}))
	assert.Equal(t, "", displayValue(configKeyInfo{Key: "anthropic.api_key", Secret: true}))
}

func TestConfigEdit_Errors(t *testing.T) {
	testEnv(t)

	t.Run("no editor", func(t *testing.T) {
		t.Setenv("EDITOR", "")
		t.Setenv("VISUAL", "")
		assert.ErrorContains(t, configEditRun(), "$EDITOR is not set")
	})

	t.Run("no config file", func(t *testing.T) {
		t.Setenv("EDITOR", "echo")
		assert.ErrorContains(t, configEditRun(), "not found")
	})
}

func TestDetectSource(t *testing.T) {
	fileValues := map[string]bool{"port": true}
	t.Setenv("LINKEDOUT_TEST_KEY", "val")

	assert.Equal(t, "(env: LINKEDOUT_TEST_KEY)", detectSource("test_key", "LINKEDOUT_TEST_KEY", fileValues))
	assert.Equal(t, "(file)", detectSource("port", "LINKEDOUT_PORT_UNSET", fileValues))
	assert.Equal(t, "(default)", detectSource("results_dir", "LINKEDOUT_RESULTS_DIR_UNSET", fileValues))
}

func TestFlattenKeys(t *testing.T) {
	input := map[string]any{
		"port": 8420,
		"worker": map[string]any{
			"command": "python3",
			"args":    []any{"worker.py"},
		},
	}

	result := make(map[string]bool)
	flattenKeys("", input, result)

	assert.True(t, result["port"])
	assert.True(t, result["worker.command"])
	assert.True(t, result["worker.args"])
	assert.False(t, result["worker"])
}
