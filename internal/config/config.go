// Package config loads runview's YAML configuration.
//
// A file is checked against an embedded CUE schema before it is decoded,
// so type and range mistakes are reported with their line numbers. Values
// missing from the file keep their defaults; environment variables and
// command-line flags override what the file says.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Default values.
const (
	DefaultTitle     = "Tests"
	DefaultTimeout   = 2 * time.Second
	DefaultSlow      = 75 * time.Millisecond
	DefaultListen    = "127.0.0.1:8080"
	DefaultThreshold = 80.0
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvDatabase = "RUNVIEW_DB"
	EnvListen   = "RUNVIEW_LISTEN"
	EnvLogLevel = "RUNVIEW_LOG_LEVEL"
)

// Config is the complete runview configuration.
type Config struct {
	// Title is the page title used when a script does not set one.
	Title string `yaml:"title"`

	// Timeout and Slow are the root suite's limits.
	Timeout time.Duration `yaml:"timeout"`
	Slow    time.Duration `yaml:"slow"`

	// Linters lists the suite prefixes grouped at the end of a run.
	Linters []string `yaml:"linters"`

	// Listen is the serve command's address.
	Listen string `yaml:"listen"`

	// Database is the run log path. Empty disables recording.
	Database string `yaml:"database"`

	// Output is where the final report HTML is written. Empty skips it.
	Output string `yaml:"output"`

	Coverage Coverage `yaml:"coverage"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Coverage configures the coverage report.
type Coverage struct {
	// Profile is a Go cover profile. Empty disables the report.
	Profile string `yaml:"profile"`

	// Threshold is the percentage below which a file is marked failed.
	Threshold float64 `yaml:"threshold"`

	// Root and Module map profile file names onto source files.
	Root   string `yaml:"root"`
	Module string `yaml:"module"`
}

// ValidationError is one schema violation.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s: %s", e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ErrInvalid is wrapped by the error Parse returns for schema violations.
var ErrInvalid = errors.New("invalid configuration")

// InvalidError carries every schema violation found in a file.
type InvalidError struct {
	Errors []ValidationError
}

func (e *InvalidError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, v := range e.Errors {
		msgs[i] = v.Error()
	}
	return fmt.Sprintf("%s: %s", ErrInvalid, strings.Join(msgs, "; "))
}

func (e *InvalidError) Unwrap() error { return ErrInvalid }

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Title:     DefaultTitle,
		Timeout:   DefaultTimeout,
		Slow:      DefaultSlow,
		Linters:   []string{"JSHint", "JSCS"},
		Listen:    DefaultListen,
		Coverage:  Coverage{Threshold: DefaultThreshold},
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
	}
}

// Load reads path and returns the resulting configuration. An empty path
// yields Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(path, data)
}

// Parse validates data against the schema and decodes it over the
// defaults. filename only labels error positions.
func Parse(filename string, data []byte) (Config, error) {
	if err := Validate(filename, data); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return cfg, nil
}

// Validate checks data against the embedded schema. Schema violations are
// returned as an *InvalidError. An empty document is valid.
func Validate(filename string, data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	value := ctx.BuildFile(file)
	if err := value.Err(); err != nil {
		return fmt.Errorf("building config value: %w", err)
	}
	// A document holding only comments extracts as null.
	if value.IsNull() {
		return nil
	}

	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return &InvalidError{Errors: convertCUEErrors(err)}
	}
	return nil
}

// convertCUEErrors flattens a CUE error list, keeping the position in the
// YAML file when one is known.
func convertCUEErrors(err error) []ValidationError {
	var out []ValidationError
	for _, e := range cueerrors.Errors(err) {
		path := e.Path()
		if len(path) > 0 && path[0] == "#Config" {
			path = path[1:]
		}
		v := ValidationError{
			Field:   strings.Join(path, "."),
			Message: cueMessage(e),
		}
		for _, pos := range cueerrors.Positions(e) {
			if pos.Filename() != "schema.cue" && pos.IsValid() {
				v.Line = pos.Line()
				break
			}
		}
		if v.Field == "" {
			v.Field = "config"
		}
		out = append(out, v)
	}
	return out
}

func cueMessage(e cueerrors.Error) string {
	format, args := e.Msg()
	return fmt.Sprintf(format, args...)
}

// ApplyEnv overrides fields from the environment. getenv is os.Getenv in
// production.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvDatabase); v != "" {
		c.Database = v
	}
	if v := getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// Level maps LogLevel to a slog level. Unknown names mean info.
func (c Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
