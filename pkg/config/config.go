// Package config handles configuration for pagekit.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/devicelab-dev/pagekit/pkg/core"
)

const envPrefix = "PAGEKIT"

// Defaults
const (
	DefaultTimeout       = 10 * time.Second
	DefaultPollInterval  = 250 * time.Millisecond
	DefaultActionTimeout = 5 * time.Second
	DefaultArtifactsDir  = "artifacts"
)

// candidates are tried in order by LoadFromDir.
var candidates = []string{"config.yaml", "config.yml", "config.json", "TestConfig.json", "pagekit.yaml"}

// Config represents the framework configuration.
type Config struct {
	// Run selects the platform block used by default.
	Run string `mapstructure:"run"`

	// Platforms are keyed by a free-form name (android, ios, lambdatest, chrome, game...).
	Platforms map[string]Platform `mapstructure:"config"`

	Timeouts  Timeouts  `mapstructure:"timeouts"`
	Artifacts Artifacts `mapstructure:"artifacts"`
	Files     Files     `mapstructure:"files"`

	// Path of the file the config was read from, empty for defaults.
	Source string `mapstructure:"-"`
}

// Platform describes how to open one automation session.
type Platform struct {
	Name            string `mapstructure:"-"`
	Platform        string `mapstructure:"platform"` // android, ios, lambdatest, browserstack, web, game
	Backend         string `mapstructure:"backend"`  // mobile, web, webdriver, game, mock; derived from Platform when empty
	DeviceName      string `mapstructure:"deviceName"`
	PlatformVersion string `mapstructure:"platformVersion"`
	AutomationName  string `mapstructure:"automationName"`
	AppPackage      string `mapstructure:"appPackage"`
	AppActivity     string `mapstructure:"appActivity"`
	App             string `mapstructure:"app"`
	BundleID        string `mapstructure:"bundleId"`
	ServerURL       string `mapstructure:"serverUrl"`
	Browser         string `mapstructure:"browser"` // chromium, firefox, webkit, chrome
	BaseURL         string `mapstructure:"baseUrl"`
	Headless        bool   `mapstructure:"headless"`
	IsRealMobile    bool   `mapstructure:"isRealMobile"`
	AppName         string `mapstructure:"appName"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`

	// Extra capabilities. A list rather than a map so names keep their case.
	Capabilities []Capability `mapstructure:"capabilities"`
}

// Capability is one extra session capability.
type Capability struct {
	Name  string      `mapstructure:"name"`
	Value interface{} `mapstructure:"value"`
}

// Timeouts holds the one default find timeout and the poll interval.
type Timeouts struct {
	Default time.Duration `mapstructure:"default"`
	Poll    time.Duration `mapstructure:"poll"`
	Action  time.Duration `mapstructure:"action"`
}

// Artifacts configures screenshot capture.
type Artifacts struct {
	Dir              string `mapstructure:"dir"`
	CaptureOnFailure bool   `mapstructure:"captureOnFailure"`
	CaptureOnSuccess bool   `mapstructure:"captureOnSuccess"`
}

// Files configures the test-data base directory.
type Files struct {
	Dir string `mapstructure:"dir"`
}

// BackendKind returns the backend family for the platform.
func (p Platform) BackendKind() (core.BackendKind, error) {
	name := p.Backend
	if name == "" {
		switch strings.ToLower(p.Platform) {
		case "lambdatest", "browserstack":
			name = "mobile"
		default:
			name = p.Platform
		}
	}
	kind, err := core.ParseBackendKind(name)
	if err != nil {
		return 0, core.ErrConfig.WithMessagef("platform %q", p.Name).WithCause(err)
	}
	return kind, nil
}

// ArtifactConfig converts the artifacts block for the page layer.
func (a Artifacts) ArtifactConfig() core.ArtifactConfig {
	return core.ArtifactConfig{
		CaptureOnFailure: a.CaptureOnFailure,
		CaptureOnSuccess: a.CaptureOnSuccess,
		CaptureOnTimeout: a.CaptureOnFailure,
	}
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("run", "")
	v.SetDefault("timeouts.default", DefaultTimeout)
	v.SetDefault("timeouts.poll", DefaultPollInterval)
	v.SetDefault("timeouts.action", DefaultActionTimeout)
	v.SetDefault("artifacts.dir", DefaultArtifactsDir)
	v.SetDefault("artifacts.captureOnFailure", true)
	v.SetDefault("artifacts.captureOnSuccess", false)
	v.SetDefault("files.dir", "")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load loads configuration from a YAML or JSON file. A .env file next to it is
// loaded into the environment first; variables already set are kept.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	if err := LoadEnv(filepath.Dir(path)); err != nil {
		return nil, err
	}

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, core.ErrConfig.WithMessagef("reading %s", path).WithCause(err)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.Source = path
	return cfg, nil
}

// LoadFromDir looks for config.yaml, config.yml, config.json, TestConfig.json
// or pagekit.yaml in the directory. Without any, defaults plus environment apply.
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range candidates {
		configPath := filepath.Join(dir, name)
		if _, err := os.Stat(configPath); err == nil {
			return Load(configPath)
		}
	}

	if err := LoadEnv(dir); err != nil {
		return nil, err
	}
	return decode(newViper())
}

// Default returns the built-in configuration with environment overrides.
func Default() *Config {
	cfg, err := decode(newViper())
	if err != nil {
		return &Config{
			Timeouts:  Timeouts{Default: DefaultTimeout, Poll: DefaultPollInterval, Action: DefaultActionTimeout},
			Artifacts: Artifacts{Dir: DefaultArtifactsDir, CaptureOnFailure: true},
		}
	}
	return cfg
}

// LoadEnv loads dir/.env if it exists.
func LoadEnv(dir string) error {
	envPath := filepath.Join(dir, ".env")
	if _, err := os.Stat(envPath); err != nil {
		return nil
	}
	if err := godotenv.Load(envPath); err != nil {
		return core.ErrConfig.WithMessagef("reading %s", envPath).WithCause(err)
	}
	return nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, core.ErrConfig.WithMessage("decoding config").WithCause(err)
	}
	for name, p := range cfg.Platforms {
		p.Name = name
		cfg.Platforms[name] = p
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks timeouts and the run selection.
func (c *Config) Validate() error {
	var problems []string
	if c.Timeouts.Default <= 0 {
		problems = append(problems, "timeouts.default must be positive")
	}
	if c.Timeouts.Poll <= 0 {
		problems = append(problems, "timeouts.poll must be positive")
	}
	if c.Timeouts.Action < 0 {
		problems = append(problems, "timeouts.action must not be negative")
	}
	if c.Run != "" && len(c.Platforms) > 0 {
		if _, ok := c.Platforms[strings.ToLower(c.Run)]; !ok {
			problems = append(problems, fmt.Sprintf("run %q names no config block", c.Run))
		}
	}
	if len(problems) > 0 {
		return core.ErrConfig.WithMessage(strings.Join(problems, "; "))
	}
	return nil
}

// Selected returns the platform named by Run, or by name when given.
func (c *Config) Selected(name ...string) (Platform, error) {
	key := c.Run
	if len(name) > 0 && name[0] != "" {
		key = name[0]
	}
	if key == "" {
		return Platform{}, core.ErrConfig.WithMessagef("no platform selected; set run or %s_RUN (known: %s)",
			envPrefix, strings.Join(c.PlatformNames(), ", "))
	}
	p, ok := c.Platforms[strings.ToLower(key)]
	if !ok {
		return Platform{}, core.ErrConfig.WithMessagef("unknown platform %q", key)
	}
	return p, nil
}

// PlatformNames returns the configured platform keys, sorted.
func (c *Config) PlatformNames() []string {
	names := make([]string, 0, len(c.Platforms))
	for name := range c.Platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsNotFound reports whether err came from a missing config file.
func IsNotFound(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
