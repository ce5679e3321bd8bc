package config

import (
	"os"
	"testing"

	"github.com/jesseduffield/yaml"
)

func TestNewAppConfigAppliesDefaults(t *testing.T) {
	t.Setenv("CONFIG_DIR", t.TempDir())

	conf, err := NewAppConfig("name", "version", "commit", "date", "buildSource", false, false)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}

	if conf.UserConfig.Defaults.Term != "xterm" {
		t.Fatalf("Expected default term xterm, got %s", conf.UserConfig.Defaults.Term)
	}
	if conf.UserConfig.Defaults.MagicSudoPrompt == "" {
		t.Fatalf("Expected a non-empty magic sudo prompt")
	}
}

func TestWritingToConfigFile(t *testing.T) {
	t.Setenv("CONFIG_DIR", t.TempDir())

	conf, err := NewAppConfig("name", "version", "commit", "date", "buildSource", false, false)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}

	testFn := func(t *testing.T, ac *AppConfig, newValue int) {
		t.Helper()
		updateFn := func(uc *UserConfig) error {
			uc.MaxAutoRetries = newValue
			return nil
		}

		if err := ac.WriteToUserConfig(updateFn); err != nil {
			t.Fatalf("Unexpected error: %s", err)
		}

		file, err := os.OpenFile(ac.ConfigFilename(), os.O_RDONLY, 0o660)
		if err != nil {
			t.Fatalf("Unexpected error: %s", err)
		}

		sampleUC := UserConfig{}
		if err := yaml.NewDecoder(file).Decode(&sampleUC); err != nil {
			t.Fatalf("Unexpected error: %s", err)
		}

		if err := file.Close(); err != nil {
			t.Fatalf("Unexpected error: %s", err)
		}

		if sampleUC.MaxAutoRetries != newValue {
			t.Fatalf("Got %v, Expected %v\n", sampleUC.MaxAutoRetries, newValue)
		}
	}

	testFn(t, conf, 3)
	testFn(t, conf, 0)
}
