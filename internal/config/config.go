// Package config loads lpdoc settings from layered JSONC files.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/natefinch/atomic"
	"github.com/sirupsen/logrus"
	"github.com/tailscale/hujson"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrConfigExists       = errors.New("config file already exists")
	ErrInvalidValue       = errors.New("invalid value")
)

// Autosave decides what happens to autosave data found when opening a
// document.
type Autosave string

const (
	AutosaveAsk     Autosave = "ask"
	AutosaveRestore Autosave = "restore"
	AutosaveIgnore  Autosave = "ignore"
)

// Lock decides what happens when a document is locked by another process.
type Lock string

const (
	LockFail     Lock = "fail"
	LockOverride Lock = "override"
)

// FileName is the project config file name.
const FileName = ".lpdoc.json"

// EnvUnstable enables unstable migrations when set to "1" or "true".
const EnvUnstable = "LPDOC_UNSTABLE_MIGRATIONS"

// Config holds all configuration options.
type Config struct {
	UnstableMigrations bool     `json:"unstable_migrations"`
	Autosave           Autosave `json:"autosave"`
	Lock               Lock     `json:"lock"`
	ExportExclude      []string `json:"export_exclude"`
	LogLevel           string   `json:"log_level"`

	// Absolute working directory (from -C flag or os.Getwd).
	EffectiveCwd string `json:"-"`

	Sources Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string
	Project string
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Autosave:      AutosaveAsk,
		Lock:          LockFail,
		ExportExclude: []string{},
		LogLevel:      logrus.WarnLevel.String(),
	}
}

// Level returns the parsed log level. Load validates it.
func (c Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.WarnLevel
	}

	return level
}

// Excluded reports whether rel matches one of the export exclude globs.
func (c Config) Excluded(rel string) bool {
	for _, pattern := range c.ExportExclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}

	return false
}

// Overrides are command line values that win over every file.
type Overrides struct {
	LogLevel      string
	ExportExclude []string
	Unstable      bool
}

// LoadInput holds the inputs for Load.
type LoadInput struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // -c/--config flag value
	Overrides       Overrides         // flag values
	Env             map[string]string // environment variables
}

// GlobalPath returns $XDG_CONFIG_HOME/lpdoc/config.json if set, otherwise
// ~/.config/lpdoc/config.json. Returns an empty string without a home
// directory.
func GlobalPath(env map[string]string) string {
	if xdgConfig := env["XDG_CONFIG_HOME"]; xdgConfig != "" {
		return filepath.Join(xdgConfig, "lpdoc", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "lpdoc", "config.json")
	}

	return ""
}

// Load loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config
// 3. Project config file (.lpdoc.json, if exists)
// 4. Explicit config file via ConfigPath (if non-empty)
// 5. Environment
// 6. CLI overrides.
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	workDir, err := filepath.Abs(workDir)
	if err != nil {
		return Config{}, fmt.Errorf("cannot resolve working directory: %w", err)
	}

	cfg := Default()

	if path := GlobalPath(input.Env); path != "" {
		layer, loaded, err := loadFile(path, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg = layer.apply(cfg)
			cfg.Sources.Global = path
		}
	}

	projectPath, mustExist := filepath.Join(workDir, FileName), false
	if input.ConfigPath != "" {
		projectPath, mustExist = input.ConfigPath, true
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}
	}

	layer, loaded, err := loadFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg = layer.apply(cfg)
		cfg.Sources.Project = projectPath
	}

	switch input.Env[EnvUnstable] {
	case "1", "true":
		cfg.UnstableMigrations = true
	}

	if input.Overrides.Unstable {
		cfg.UnstableMigrations = true
	}

	if input.Overrides.LogLevel != "" {
		cfg.LogLevel = input.Overrides.LogLevel
	}

	cfg.ExportExclude = append(cfg.ExportExclude, input.Overrides.ExportExclude...)

	err = Validate(cfg)
	if err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir

	return cfg, nil
}

// Validate checks every value of cfg.
func Validate(cfg Config) error {
	if !slices.Contains([]Autosave{AutosaveAsk, AutosaveRestore, AutosaveIgnore}, cfg.Autosave) {
		return fmt.Errorf("%w: autosave must be ask, restore or ignore, got %q", ErrInvalidValue, cfg.Autosave)
	}

	if cfg.Lock != LockFail && cfg.Lock != LockOverride {
		return fmt.Errorf("%w: lock must be fail or override, got %q", ErrInvalidValue, cfg.Lock)
	}

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level: %w", ErrInvalidValue, err)
	}

	for _, pattern := range cfg.ExportExclude {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("%w: export_exclude: bad pattern %q", ErrInvalidValue, pattern)
		}
	}

	return nil
}

// layer is one config file. Nil fields were absent.
type layer struct {
	UnstableMigrations *bool     `json:"unstable_migrations"`
	Autosave           *Autosave `json:"autosave"`
	Lock               *Lock     `json:"lock"`
	ExportExclude      []string  `json:"export_exclude"`
	LogLevel           *string   `json:"log_level"`
}

func (l layer) apply(cfg Config) Config {
	if l.UnstableMigrations != nil {
		cfg.UnstableMigrations = *l.UnstableMigrations
	}

	if l.Autosave != nil {
		cfg.Autosave = *l.Autosave
	}

	if l.Lock != nil {
		cfg.Lock = *l.Lock
	}

	if l.ExportExclude != nil {
		cfg.ExportExclude = slices.Clone(l.ExportExclude)
	}

	if l.LogLevel != nil {
		cfg.LogLevel = *l.LogLevel
	}

	return cfg
}

// loadFile loads a config file. If mustExist is false, missing files are
// reported as not loaded.
func loadFile(path string, mustExist bool) (layer, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if mustExist {
				return layer{}, false, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
			}

			return layer{}, false, nil
		}

		return layer{}, false, fmt.Errorf("%w: %s: %w", ErrConfigFileRead, path, err)
	}

	l, err := parse(data)
	if err != nil {
		return layer{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return l, true, nil
}

func parse(data []byte) (layer, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return layer{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var l layer

	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()

	err = dec.Decode(&l)
	if err != nil {
		return layer{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return l, nil
}

// Format returns the config as indented JSON.
func Format(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format config: %w", err)
	}

	return string(data), nil
}

// Init writes the default configuration to path. An existing file is left
// alone and reported with ErrConfigExists.
func Init(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	}

	formatted, err := Format(Default())
	if err != nil {
		return err
	}

	err = os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	err = atomic.WriteFile(path, bytes.NewReader([]byte(formatted+"\n")))
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}
