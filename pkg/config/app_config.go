// Package config handles all of the user-configuration for the fleet
// runner. The fields here are all in PascalCase but in your actual
// config.yml they'll be in camelCase. You can view the default config by
// passing --config to the binary.
package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/OpenPeeDeeP/xdg"
	yaml "github.com/jesseduffield/yaml"
)

// DefaultsConfig holds fleet-wide host defaults. Only Term and
// MagicSudoPrompt are read, by App.LocalHost; the SSH fields are not copied
// into SSHHostSpec values, which carry their own settings.
type DefaultsConfig struct {
	// Term is the terminal type string sent with every PTY request.
	Term string `yaml:"term,omitempty"`

	// MagicSudoPrompt is the sentinel string we tell sudo to use as its
	// password prompt (via -p), so the PTY relay can recognize a password
	// request in the middle of a command's output stream.
	MagicSudoPrompt string `yaml:"magicSudoPrompt,omitempty"`

	// SSHTimeout bounds how long a connection attempt (resolve, dial,
	// handshake, auth) may take before ConnectionFailed is returned.
	SSHTimeout time.Duration `yaml:"sshTimeout,omitempty"`

	// SSHKeepaliveInterval is the interval between keepalive pings sent on
	// an established SSH transport.
	SSHKeepaliveInterval time.Duration `yaml:"sshKeepaliveInterval,omitempty"`

	// SSHConfigPath, when non-empty, is read for identityfile/user/port/
	// connecttimeout before a host's explicit fields are applied on top.
	SSHConfigPath string `yaml:"sshConfigPath,omitempty"`

	// RejectUnknownHosts, when true, makes an unrecognized host key fatal;
	// when false, host keys are accepted without being checked or recorded.
	RejectUnknownHosts bool `yaml:"rejectUnknownHosts,omitempty"`
}

// LoggingConfig controls the per-run activity log.
type LoggingConfig struct {
	// Level is one of logrus's level names (debug, info, warn, error).
	Level string `yaml:"level,omitempty"`

	// LogFile, when non-empty, is the path the debug-mode log is appended to
	// instead of development.log in the config directory. Outside debug
	// mode, log output is discarded.
	LogFile string `yaml:"logFile,omitempty"`
}

// ConsoleConfig controls the interactive console used for retry/skip/abort
// prompts and sudo-password entry.
type ConsoleConfig struct {
	// AllowRandomChoice names a 'random' shortcut on choice prompts. It is
	// not read: the dispatcher's isolate-one-only prompt always offers the
	// random entry.
	AllowRandomChoice bool `yaml:"allowRandomChoice,omitempty"`

	// ProgressBarWidth is a width in characters for progress bars. It is not
	// read: the console's progress bar prints a step count, not a bar.
	ProgressBarWidth int `yaml:"progressBarWidth,omitempty"`
}

// UserConfig holds all of the user-configurable options.
type UserConfig struct {
	// Defaults holds host defaults; see DefaultsConfig for which are read.
	Defaults DefaultsConfig `yaml:"defaults,omitempty"`

	// Logging controls how run activity is recorded.
	Logging LoggingConfig `yaml:"logging,omitempty"`

	// Console controls interactive prompting behaviour.
	Console ConsoleConfig `yaml:"console,omitempty"`

	// MaxAutoRetries bounds how many times the action dispatcher will
	// automatically retry a failed isolation before falling back to an
	// interactive Retry/Skip/Abort prompt. Zero disables auto-retry.
	MaxAutoRetries int `yaml:"maxAutoRetries,omitempty"`
}

// GetDefaultConfig returns the application default configuration. NOTE (to
// contributors, not users): do not default a boolean to true, because false
// is the boolean zero value and this will be ignored when parsing the
// user's config.
func GetDefaultConfig() UserConfig {
	return UserConfig{
		Defaults: DefaultsConfig{
			Term:                 "xterm",
			MagicSudoPrompt:      "[sudo-password-prompt]",
			SSHTimeout:           30 * time.Second,
			SSHKeepaliveInterval: 30 * time.Second,
			RejectUnknownHosts:   false,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Console: ConsoleConfig{
			AllowRandomChoice: false,
			ProgressBarWidth:  40,
		},
		MaxAutoRetries: 0,
	}
}

// AppConfig contains the base configuration fields required to boot the
// fleet runner.
type AppConfig struct {
	Debug       bool   `long:"debug" env:"DEBUG" default:"false"`
	Version     string `long:"version" env:"VERSION" default:"unversioned"`
	Commit      string `long:"commit" env:"COMMIT"`
	BuildDate   string `long:"build-date" env:"BUILD_DATE"`
	Name        string `long:"name" env:"NAME" default:"fleetctl"`
	BuildSource string `long:"build-source" env:"BUILD_SOURCE" default:""`
	DryRun      bool   `long:"dry-run" env:"DRY_RUN" default:"false"`
	UserConfig  *UserConfig
	ConfigDir   string
}

// NewAppConfig makes a new app config.
func NewAppConfig(name, version, commit, date string, buildSource string, debuggingFlag bool, dryRun bool) (*AppConfig, error) {
	configDir, err := findOrCreateConfigDir(name)
	if err != nil {
		return nil, err
	}

	userConfig, err := loadUserConfigWithDefaults(configDir)
	if err != nil {
		return nil, err
	}

	appConfig := &AppConfig{
		Name:        name,
		Version:     version,
		Commit:      commit,
		BuildDate:   date,
		Debug:       debuggingFlag || os.Getenv("DEBUG") == "TRUE",
		BuildSource: buildSource,
		DryRun:      dryRun,
		UserConfig:  userConfig,
		ConfigDir:   configDir,
	}

	return appConfig, nil
}

func configDirForVendor(vendor string, projectName string) string {
	envConfigDir := os.Getenv("CONFIG_DIR")
	if envConfigDir != "" {
		return envConfigDir
	}
	configDirs := xdg.New(vendor, projectName)
	return configDirs.ConfigHome()
}

func configDir(projectName string) string {
	return configDirForVendor("", projectName)
}

func findOrCreateConfigDir(projectName string) (string, error) {
	folder := configDir(projectName)

	err := os.MkdirAll(folder, 0755)
	if err != nil {
		return "", err
	}

	return folder, nil
}

func loadUserConfigWithDefaults(configDir string) (*UserConfig, error) {
	config := GetDefaultConfig()

	return loadUserConfig(configDir, &config)
}

func loadUserConfig(configDir string, base *UserConfig) (*UserConfig, error) {
	fileName := filepath.Join(configDir, "config.yml")

	if _, err := os.Stat(fileName); err != nil {
		if os.IsNotExist(err) {
			file, err := os.Create(fileName)
			if err != nil {
				return nil, err
			}
			file.Close()
		} else {
			return nil, err
		}
	}

	content, err := ioutil.ReadFile(fileName)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(content, base); err != nil {
		return nil, err
	}

	return base, nil
}

// WriteToUserConfig allows you to set a value on the user config to be
// saved. Note that if you set a zero-value, it may be ignored: we use the
// omitempty yaml directive so that we don't write a heap of zero values to
// the user's config.yml.
func (c *AppConfig) WriteToUserConfig(updateConfig func(*UserConfig) error) error {
	userConfig, err := loadUserConfig(c.ConfigDir, &UserConfig{})
	if err != nil {
		return err
	}

	if err := updateConfig(userConfig); err != nil {
		return err
	}

	file, err := os.OpenFile(c.ConfigFilename(), os.O_WRONLY|os.O_CREATE, 0666)
	if err != nil {
		return err
	}

	return yaml.NewEncoder(file).Encode(userConfig)
}

// ConfigFilename returns the filename of the current config file.
func (c *AppConfig) ConfigFilename() string {
	return filepath.Join(c.ConfigDir, "config.yml")
}
