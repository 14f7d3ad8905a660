// Command edgevision runs a detection model over still frames and inspects model files.
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/nvr-ai/edge-vision/config"
	"github.com/nvr-ai/edge-vision/inference"
	"github.com/nvr-ai/edge-vision/inference/engines"
	"github.com/nvr-ai/edge-vision/logger"
	"github.com/nvr-ai/edge-vision/models"
	"github.com/nvr-ai/edge-vision/models/model"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "edgevision",
		Short:         "On-device vision model runner",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "YAML configuration file")
	flags.StringP("backend", "b", "", "Engine backend: host, tflite or onnx")
	flags.StringP("model", "m", "", "Model file (tensor manifest for the host backend)")
	flags.StringP("arch", "a", "", "Architecture hint, or auto")
	flags.String("labels", "", "Label set: coco, voc or a label file")
	flags.Float32("threshold", model.DefaultThreshold, "Score threshold")
	flags.Float32("nms", model.DefaultNMS, "NMS IoU threshold")
	flags.Bool("letterbox", false, "Keep the frame aspect ratio")
	flags.Int("threads", 0, "Interpreter threads (tflite)")
	flags.Bool("edgetpu", false, "Attach an Edge TPU (tflite)")
	flags.String("log", "", "Log mode: production or development")

	root.AddCommand(newRunCmd(), newInspectCmd())
	return root
}

// loadConfig reads the configuration file, applies the flags the user set and installs the
// logger.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	c, err := config.Load(path)
	if err != nil {
		return c, err
	}

	flags := cmd.Flags()
	if flags.Changed("backend") {
		v, _ := flags.GetString("backend")
		c.Backend = inference.EngineType(v)
	}
	if flags.Changed("model") {
		c.Model, _ = flags.GetString("model")
	}
	if flags.Changed("arch") {
		v, _ := flags.GetString("arch")
		c.Architecture = model.Type(v)
	}
	if flags.Changed("labels") {
		c.Labels, _ = flags.GetString("labels")
	}
	if flags.Changed("threshold") {
		c.Detection.Threshold, _ = flags.GetFloat32("threshold")
	}
	if flags.Changed("nms") {
		c.Detection.NMS, _ = flags.GetFloat32("nms")
	}
	if flags.Changed("letterbox") {
		c.Detection.Letterbox, _ = flags.GetBool("letterbox")
	}
	if flags.Changed("threads") {
		c.Threads, _ = flags.GetInt("threads")
	}
	if flags.Changed("edgetpu") {
		c.EdgeTPU, _ = flags.GetBool("edgetpu")
	}
	if flags.Changed("log") {
		v, _ := flags.GetString("log")
		c.Log = logger.Mode(v)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	if c.Model == "" {
		return c, errors.New("no model given, set --model or model in the config file")
	}
	if err := logger.Init(c.Log); err != nil {
		return c, err
	}
	return c, nil
}

func openEngine(c config.Config) (inference.Engine, error) {
	return engines.Open(engines.Settings{
		Type:      c.Backend,
		Threads:   c.Threads,
		EdgeTPU:   c.EdgeTPU,
		ArenaSize: c.ArenaSize,
		ONNX:      c.ONNX,
	}, c.Model)
}

// openModel loads the engine and binds the configured architecture to it.
func openModel(c config.Config) (model.Model, models.Labels, error) {
	labels, err := models.LoadLabels(c.Labels)
	if err != nil {
		return nil, nil, err
	}
	e, err := openEngine(c)
	if err != nil {
		return nil, nil, err
	}
	m, err := models.Create(e, c.Architecture, c.ModelOptions()...)
	if err != nil {
		_ = e.Close()
		return nil, nil, err
	}
	return m, labels, nil
}

// closeModel releases m and closes its engine.
func closeModel(m model.Model) {
	e := m.Engine()
	models.Remove(m)
	if e != nil {
		_ = e.Close()
	}
	logger.Sync()
}
