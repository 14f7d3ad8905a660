package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nvr-ai/edge-vision/logger"
	"github.com/nvr-ai/edge-vision/models"
	"github.com/nvr-ai/edge-vision/profiler"
	"github.com/nvr-ai/edge-vision/util"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run DIR",
		Short: "Run the model over every image in a directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runHandler,
	}
	cmd.Flags().Int("workers", 0, "Concurrent image reads (default from config)")
	cmd.Flags().Int("repeat", 1, "Passes over the directory")
	return cmd
}

func runHandler(cmd *cobra.Command, args []string) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("workers") {
		c.Workers, _ = cmd.Flags().GetInt("workers")
	}
	repeat, _ := cmd.Flags().GetInt("repeat")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	files, err := util.LoadDirectoryImageFiles(ctx, args[0], c.Workers)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.Errorf("no images in %s", args[0])
	}

	m, labels, err := openModel(c)
	if err != nil {
		return err
	}
	defer closeModel(m)

	log := logger.Log()
	log.Info("model ready",
		zap.String("type", string(m.Type())),
		zap.String("model", c.Model),
		zap.Int("images", len(files)),
	)

	prof := profiler.New(profiler.Options{ReportInterval: c.ReportInterval})
	prof.Start(ctx)
	defer prof.Stop()

	failed := 0
	for pass := 0; pass < repeat; pass++ {
		for i := range files {
			if ctx.Err() != nil {
				return nil
			}
			f := &files[i]
			f.Image.Timestamp = time.Now()
			if err := m.Run(ctx, &f.Image); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				failed++
				log.Warn("frame failed", zap.String("path", f.Path), zap.Error(err))
				continue
			}
			prof.RecordPerf(m.Perf())
			if pass == 0 {
				log.Info("frame", append([]zap.Field{zap.String("path", f.Path), zap.Int("frame", f.Frame)},
					models.Fields(m, labels)...)...)
			}
		}
	}
	prof.Report()

	if failed == len(files)*repeat {
		return errors.New("every frame failed")
	}
	return nil
}
