// Command webcam runs a detection model on frames from a capture device and draws the results.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/edge-vision/config"
	"github.com/nvr-ai/edge-vision/images/cv"
	"github.com/nvr-ai/edge-vision/inference/engines"
	"github.com/nvr-ai/edge-vision/logger"
	"github.com/nvr-ai/edge-vision/models"
	"github.com/nvr-ai/edge-vision/profiler"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	deviceID := flag.Int("device", 0, "Capture device")
	show := flag.Bool("show", true, "Display frames in a window")
	motionArea := flag.Float64("motion-area", 0, "Skip frames without a moving region of this many pixels (0 runs every frame)")
	flag.Parse()

	c, err := config.Load(*configPath)
	if err == nil {
		err = logger.Init(c.Log)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "webcam:", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Log()

	labels, err := models.LoadLabels(c.Labels)
	if err != nil {
		log.Fatal("labels", zap.Error(err))
	}
	engine, err := engines.Open(engines.Settings{
		Type:      c.Backend,
		Threads:   c.Threads,
		EdgeTPU:   c.EdgeTPU,
		ArenaSize: c.ArenaSize,
		ONNX:      c.ONNX,
	}, c.Model)
	if err != nil {
		log.Fatal("open engine", zap.Error(err))
	}
	defer engine.Close()

	m, err := models.Create(engine, c.Architecture, c.ModelOptions()...)
	if err != nil {
		log.Fatal("create model", zap.Error(err))
	}
	defer models.Remove(m)

	webcam, err := gocv.OpenVideoCapture(*deviceID)
	if err != nil {
		log.Fatal("open capture device", zap.Int("device", *deviceID), zap.Error(err))
	}
	defer webcam.Close()

	var window *gocv.Window
	if *show {
		window = gocv.NewWindow("edgevision")
		defer window.Close()
	}

	mat := gocv.NewMat()
	defer mat.Close()

	var gate *cv.MotionGate
	if *motionArea > 0 {
		gate = cv.NewMotionGate(*motionArea)
		defer gate.Close()
	}

	green := color.RGBA{0, 255, 0, 0}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	prof := profiler.New(profiler.Options{ReportInterval: c.ReportInterval})
	prof.Start(ctx)
	defer prof.Stop()

	log.Info("start reading camera", zap.Int("device", *deviceID), zap.String("model", string(m.Type())))
	var last [16]byte
	for ctx.Err() == nil {
		if ok := webcam.Read(&mat); !ok {
			log.Error("cannot read device", zap.Int("device", *deviceID))
			return
		}
		if mat.Empty() {
			continue
		}
		// Drivers sometimes hand back the previous buffer.
		sum, ok := cv.Checksum(mat)
		if ok && sum == last {
			continue
		}
		last = sum

		if gate != nil {
			moving, err := gate.Moving(mat)
			if err != nil {
				log.Warn("motion", zap.Error(err))
			}
			if !moving {
				if window != nil {
					window.IMShow(mat)
					window.WaitKey(1)
				}
				continue
			}
		}

		frame, err := cv.FromMat(mat, time.Now())
		if err != nil {
			log.Warn("frame", zap.Error(err))
			continue
		}
		if err := m.Run(ctx, &frame); err != nil {
			log.Warn("run", zap.Error(err))
			continue
		}
		prof.RecordPerf(m.Perf())
		log.Debug("frame", models.Fields(m, labels)...)

		if window == nil {
			continue
		}
		w, h := mat.Cols(), mat.Rows()
		for _, b := range models.Boxes(m) {
			x1, y1, x2, y2 := b.Extents()
			r := image.Rect(int(x1*float32(w)), int(y1*float32(h)), int(x2*float32(w)), int(y2*float32(h)))
			gocv.Rectangle(&mat, r, green, 2)
			gocv.PutText(&mat, labels.Name(b.Label), r.Min.Add(image.Pt(0, -4)), gocv.FontHersheySimplex, 0.5, green, 1)
		}
		window.IMShow(mat)
		if window.WaitKey(1) == 27 {
			return
		}
	}
}
