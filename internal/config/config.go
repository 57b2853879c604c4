// Package config assembles the inspector configuration from command-line
// flags, ONNX_INSPECT_* environment variables and an optional
// onnx-inspect.yaml file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/born-ml/onnx-inspect/internal/inspect"
	"github.com/born-ml/onnx-inspect/internal/ortsession"
)

// Engines selectable with --engine.
const (
	EngineNative = "native"
	EngineORT    = "ort"
)

// Keys shared by flags, environment variables and the config file.
const (
	KeyNoInfer   = "no-infer"
	KeyTestRun   = "test-run"
	KeyEngine    = "engine"
	KeyOrtLib    = "ort-lib"
	KeyProviders = "providers"
	KeyWallClass = "wall-class"
	KeyDim       = "dim"
	KeyOps       = "ops"
)

const envPrefix = "ONNX_INSPECT"

// ErrInvalidDim is returned for malformed or non-positive --dim values.
var ErrInvalidDim = errors.New("invalid dimension override")

// Config is the validated configuration of one invocation.
type Config struct {
	ModelPath   string
	InferShapes bool
	TestRun     bool
	Engine      string
	OrtLib      string
	Providers   []string
	WallClass   int
	Dims        map[string]int
	ShowOps     bool
}

// Resolver returns a shape resolver honoring the dimension overrides.
func (c *Config) Resolver() *inspect.Resolver {
	return inspect.NewResolver(c.Dims)
}

// ORTOptions returns the onnxruntime options for this configuration.
func (c *Config) ORTOptions() ortsession.Options {
	return ortsession.Options{LibraryPath: c.OrtLib, Providers: c.Providers}
}

// Flags lists which optional flags a command exposes.
type Flags struct {
	NoInfer bool
	Ops     bool
	// DefaultEngine is the --engine default for the command.
	DefaultEngine string
}

// Bind registers the flags on cmd and binds them, the environment and the
// config file to a fresh viper instance.
func Bind(cmd *cobra.Command, flags Flags) *viper.Viper {
	v := viper.New()
	fs := cmd.Flags()

	if flags.NoInfer {
		fs.Bool(KeyNoInfer, false, "skip shape inference before printing")
	}
	if flags.Ops {
		fs.Bool(KeyOps, false, "print a table of the operator types in the graph")
	}
	fs.Bool(KeyTestRun, false, "run one forward pass with a zero-filled input")
	fs.String(KeyEngine, flags.DefaultEngine, "engine for --test-run: native or ort")
	fs.String(KeyOrtLib, "", "path to the onnxruntime shared library")
	fs.StringSlice(KeyProviders, []string{ortsession.ProviderCPU}, "onnxruntime execution providers: cpu, cuda, coreml")
	fs.Int(KeyWallClass, inspect.DefaultWallClass, "channel whose mean and rank are reported (negative disables)")
	fs.StringArray(KeyDim, nil, "symbolic dimension size as name=value (repeatable)")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetConfigName("onnx-inspect")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/onnx-inspect")

	// BindPFlags only fails on a nil flag set.
	_ = v.BindPFlags(fs)
	return v
}

// Load reads the bound values and validates them. A missing config file is
// not an error.
func Load(v *viper.Viper, modelPath string) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		ModelPath:   modelPath,
		InferShapes: !v.GetBool(KeyNoInfer),
		TestRun:     v.GetBool(KeyTestRun),
		Engine:      strings.ToLower(v.GetString(KeyEngine)),
		OrtLib:      v.GetString(KeyOrtLib),
		Providers:   splitList(v.GetStringSlice(KeyProviders)),
		WallClass:   v.GetInt(KeyWallClass),
		ShowOps:     v.GetBool(KeyOps),
	}
	if cfg.Engine == "" {
		cfg.Engine = EngineNative
	}

	dims, err := ParseDims(splitList(v.GetStringSlice(KeyDim)))
	if err != nil {
		return nil, err
	}
	cfg.Dims = dims

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the engine and provider names.
func (c *Config) Validate() error {
	switch c.Engine {
	case EngineNative, EngineORT:
	default:
		return fmt.Errorf("unknown engine %q (want %s or %s)", c.Engine, EngineNative, EngineORT)
	}
	for name, n := range c.Dims {
		if n <= 0 {
			return fmt.Errorf("%w: %s=%d must be positive", ErrInvalidDim, name, n)
		}
	}
	return ortsession.ValidateProviders(c.Providers)
}

// ParseDims parses name=value pairs into a symbol table. Values must be
// positive integers.
func ParseDims(pairs []string) (map[string]int, error) {
	dims := make(map[string]int, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q is not name=value", ErrInvalidDim, pair)
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidDim, pair, err)
		}
		if n <= 0 {
			return nil, fmt.Errorf("%w: %s=%d must be positive", ErrInvalidDim, name, n)
		}
		dims[name] = n
	}
	return dims, nil
}

// splitList flattens comma-separated entries; environment variables arrive
// as a single string.
func splitList(items []string) []string {
	var out []string
	for _, it := range items {
		for _, part := range strings.Split(it, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
