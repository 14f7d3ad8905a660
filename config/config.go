// Package config - YAML configuration for the edgevision commands.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/edge-vision/inference"
	"github.com/nvr-ai/edge-vision/inference/providers"
	"github.com/nvr-ai/edge-vision/logger"
	"github.com/nvr-ai/edge-vision/models/model"
)

// Config is the file format read by Load.
type Config struct {
	// Backend selects the engine: host, tflite or onnx.
	Backend inference.EngineType `json:"backend" yaml:"backend"`
	// Model is the model file. The host backend reads a tensor manifest instead.
	Model string `json:"model" yaml:"model"`
	// Architecture is a model type hint; "auto" probes every architecture.
	Architecture model.Type `json:"architecture" yaml:"architecture"`
	// Labels names the class ids: "coco", "voc" or a label file.
	Labels string `json:"labels" yaml:"labels"`

	// Detection holds the initial model options.
	Detection model.Options `json:"detection" yaml:",inline"`

	// Threads is the interpreter thread count for tflite. 0 keeps the backend default.
	Threads int `json:"threads" yaml:"threads"`
	// EdgeTPU attaches an Edge TPU to the tflite interpreter.
	EdgeTPU bool `json:"edgetpu" yaml:"edgetpu"`
	// ArenaSize is the byte size of the engine scratch arena. 0 lets the engine decide.
	ArenaSize int `json:"arena_size" yaml:"arena_size"`
	// ONNX configures the onnxruntime library and its execution providers.
	ONNX providers.Config `json:"onnx" yaml:"onnx"`

	// Workers bounds concurrent frame reads.
	Workers int `json:"workers" yaml:"workers"`
	// ReportInterval is how often the profiler logs.
	ReportInterval time.Duration `json:"report_interval" yaml:"report_interval"`
	// Log is the logger mode: production or development.
	Log logger.Mode `json:"log" yaml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Backend:        inference.EngineTFLite,
		Architecture:   model.TypeAuto,
		Labels:         "coco",
		Detection:      model.DefaultOptions(),
		ONNX:           providers.DefaultConfig(),
		Workers:        4,
		ReportInterval: 5 * time.Second,
		Log:            logger.ModeProduction,
	}
}

// Load reads a YAML file over Default and validates the result.
//
// Arguments:
//   - path: The file to read. An empty path returns Default.
//
// Returns:
//   - Config: The merged configuration.
//   - error: An error if the file cannot be read, parsed or validated.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return c, errors.Wrapf(err, "read config %s", path)
	}
	if err := Parse(data, &c); err != nil {
		return c, errors.Wrapf(err, "config %s", path)
	}
	return c, nil
}

// Parse decodes YAML over c and validates the result. Keys absent from data keep the values
// already in c.
func Parse(data []byte, c *Config) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrap(err, "parse yaml")
	}
	return c.Validate()
}

// Validate checks every field that has a closed set of values or a range.
func (c Config) Validate() error {
	if _, err := inference.ParseEngineType(string(c.Backend)); err != nil {
		return errors.Wrap(err, "backend")
	}
	if _, err := model.ParseType(string(c.Architecture)); err != nil {
		return errors.Wrap(err, "architecture")
	}
	if _, err := model.NewOptions(func(o *model.Options) { *o = c.Detection }); err != nil {
		return errors.Wrap(err, "detection")
	}
	switch c.Log {
	case logger.ModeProduction, logger.ModeDevelopment, "":
	default:
		return errors.Errorf("log: unknown mode %q", c.Log)
	}
	if c.Threads < 0 {
		return errors.Errorf("threads: %d is negative", c.Threads)
	}
	if c.ArenaSize < 0 {
		return errors.Errorf("arena_size: %d is negative", c.ArenaSize)
	}
	if c.Backend == inference.EngineONNX {
		if err := c.ONNX.Validate(); err != nil {
			return errors.Wrap(err, "onnx")
		}
	}
	return nil
}

// ModelOptions converts Detection into constructor options.
func (c Config) ModelOptions() []model.OptionFunc {
	d := c.Detection
	return []model.OptionFunc{func(o *model.Options) { *o = d }}
}
