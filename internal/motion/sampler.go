package motion

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	domain "rouse/internal/domain/alarm"
	"rouse/internal/logger"
)

// Sensor produces one motion magnitude per poll.
// Driver specifics (I2C registers, scaling) live behind this interface.
type Sensor interface {
	Read(ctx context.Context) (float64, error)
}

// SensorFunc adapts a plain function to the Sensor interface.
type SensorFunc func(ctx context.Context) (float64, error)

// Read calls the wrapped function.
func (f SensorFunc) Read(ctx context.Context) (float64, error) {
	return f(ctx)
}

// FileSensor reads a magnitude scalar from a file on every poll, the way
// kernel drivers export sensor values under sysfs.
type FileSensor struct {
	// path is the exported sensor value file.
	path string
}

// NewFileSensor creates a sensor backed by the provided file path.
func NewFileSensor(path string) *FileSensor {
	return &FileSensor{
		path: path,
	}
}

// Read parses the current magnitude from the file.
func (s *FileSensor) Read(_ context.Context) (float64, error) {
	contents, err := os.ReadFile(s.path)
	if err != nil {
		return 0, fmt.Errorf("read sensor: %w", err)
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(string(contents)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse sensor value: %w", err)
	}

	return value, nil
}

// Sampler polls a sensor at a fixed rate and emits timestamped samples.
// A poll that fails is logged and skipped; the stream resumes on the next
// tick, so a flaky sensor degrades the detector without stopping it.
type Sampler struct {
	// sensor is the magnitude source.
	sensor Sensor
	// interval is the polling period.
	interval time.Duration
}

// NewSampler creates a sampler polling the sensor at the provided interval.
func NewSampler(sensor Sensor, interval time.Duration) *Sampler {
	return &Sampler{
		sensor:   sensor,
		interval: interval,
	}
}

// Run polls until the context is canceled, sending samples to out.
// When the consumer lags behind, samples are dropped rather than blocking:
// a stale motion sample is worthless and the engine's tick path must never
// wait on this goroutine.
func (s *Sampler) Run(ctx context.Context, out chan<- domain.MotionSample) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			magnitude, err := s.sensor.Read(ctx)
			if err != nil {
				logger.DebugKV(ctx, "Sensor poll failed", "error", err)

				continue
			}

			sample := domain.MotionSample{
				At:        time.Now().UTC(),
				Magnitude: magnitude,
			}

			select {
			case out <- sample:
			default:
				// Consumer is behind, drop the sample.
			}
		}
	}
}
