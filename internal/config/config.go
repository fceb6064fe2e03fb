// Package config loads the checkpoint daemon configuration. Sources are
// applied in order, later ones overriding earlier ones: built-in defaults, a
// YAML file, then CHECKPOINT_ environment variables, where
// CHECKPOINT_BUFFER_MAX sets buffer.max.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/inhies/go-bytesize"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes the environment variables read by Load.
const EnvPrefix = "CHECKPOINT_"

// Size is a byte size such as "64KB" or "1MB".
type Size string

// Bytes parses s.
func (s Size) Bytes() (int, error) {
	b, err := bytesize.Parse(string(s))
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return int(b), nil
}

type Config struct {
	// Listen is the gRPC address.
	Listen string `koanf:"listen" validate:"required,hostname_port"`
	// HTTP serves metrics and the status page when set.
	HTTP    string        `koanf:"http" validate:"omitempty,hostname_port"`
	Log     LogConfig     `koanf:"log"`
	Buffer  BufferConfig  `koanf:"buffer"`
	Retain  int           `koanf:"retain" validate:"gte=0,lte=100000"`
	Debug   bool          `koanf:"debug"`
	Store   StoreConfig   `koanf:"store"`
	Capture CaptureConfig `koanf:"capture"`
}

type LogConfig struct {
	Level string `koanf:"level" validate:"oneof=trace debug info warn error off"`
	JSON  bool   `koanf:"json"`
}

type BufferConfig struct {
	Initial Size `koanf:"initial" validate:"required,bytesize"`
	Max     Size `koanf:"max" validate:"required,bytesize"`
}

type StoreConfig struct {
	Dir    string `koanf:"dir" validate:"required_without=Memory"`
	Memory bool   `koanf:"memory"`
	Retain int    `koanf:"retain" validate:"gte=0"`
}

type CaptureConfig struct {
	// Interval between periodic checkpoints. Zero disables them.
	Interval time.Duration `koanf:"interval" validate:"gte=0"`
	// Rate and Burst limit remote capture requests per second.
	Rate  float64 `koanf:"rate" validate:"gt=0"`
	Burst int     `koanf:"burst" validate:"gte=1"`
	// Threads writes a checkpoint for every thread start.
	Threads bool `koanf:"threads"`
}

// Defaults returns the built-in configuration values.
func Defaults() map[string]any {
	return map[string]any{
		"listen":           "127.0.0.1:7171",
		"http":             "",
		"log.level":        "info",
		"log.json":         false,
		"buffer.initial":   "4KB",
		"buffer.max":       "1MB",
		"retain":           16,
		"debug":            false,
		"store.dir":        "",
		"store.memory":     true,
		"store.retain":     1024,
		"capture.interval": "0s",
		"capture.rate":     10.0,
		"capture.burst":    5,
		"capture.threads":  false,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("bytesize", func(fl validator.FieldLevel) bool {
		_, err := bytesize.Parse(fl.Field().String())
		return err == nil
	}); err != nil {
		panic(err)
	}
	return v
}

// Load reads the configuration. path may be empty.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(mapProvider(Defaults()), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks c.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	initial, err := c.Buffer.Initial.Bytes()
	if err != nil {
		return err
	}
	maxSize, err := c.Buffer.Max.Bytes()
	if err != nil {
		return err
	}
	if initial > maxSize {
		return fmt.Errorf("invalid config: buffer.initial %s exceeds buffer.max %s", c.Buffer.Initial, c.Buffer.Max)
	}
	return nil
}

// mapProvider is a koanf provider reading from a map.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("config: map provider does not support ReadBytes")
}

func (m mapProvider) Read() (map[string]any, error) {
	return m, nil
}
