package resource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/cpu"
)

// NeutralCPU is the CPU percentage assumed when no signal is available. It
// sits between the default water marks, so Adjust leaves limits unchanged.
const NeutralCPU = 50.0

// ErrNoSample is returned when a monitor produced no reading.
var ErrNoSample = errors.New("no load sample")

// LoadSignal is one reading of host load.
type LoadSignal struct {
	// CPU is the utilization percentage, 0–100.
	CPU float64
}

// Neutral returns the signal used when load is unknown.
func Neutral() LoadSignal { return LoadSignal{CPU: NeutralCPU} }

// Monitor produces load signals.
type Monitor interface {
	Sample(ctx context.Context) (LoadSignal, error)
}

// MonitorFunc adapts a function to Monitor.
type MonitorFunc func(ctx context.Context) (LoadSignal, error)

// Sample implements Monitor.
func (f MonitorFunc) Sample(ctx context.Context) (LoadSignal, error) { return f(ctx) }

// Static always reports the same signal.
type Static LoadSignal

// Sample implements Monitor.
func (s Static) Sample(context.Context) (LoadSignal, error) { return LoadSignal(s), nil }

// CPUMonitor samples total host CPU utilization via gopsutil.
type CPUMonitor struct {
	// Interval is the measuring window. Zero compares against the previous
	// call, which is non-blocking.
	Interval time.Duration

	percent func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error)
}

// NewCPUMonitor creates a CPU monitor measuring over interval.
func NewCPUMonitor(interval time.Duration) *CPUMonitor {
	return &CPUMonitor{Interval: interval, percent: cpu.PercentWithContext}
}

// Sample implements Monitor.
func (m *CPUMonitor) Sample(ctx context.Context) (LoadSignal, error) {
	pcts, err := m.percent(ctx, m.Interval, false)
	if err != nil {
		return Neutral(), fmt.Errorf("sample cpu: %w", err)
	}
	if len(pcts) == 0 {
		return Neutral(), ErrNoSample
	}
	return LoadSignal{CPU: min(100, max(0, pcts[0]))}, nil
}

// Observe samples m and falls back to Neutral on a nil monitor or any error.
func Observe(ctx context.Context, m Monitor) (LoadSignal, error) {
	if m == nil {
		return Neutral(), nil
	}
	sig, err := m.Sample(ctx)
	if err != nil {
		return Neutral(), err
	}
	return sig, nil
}
