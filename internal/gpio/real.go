//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "water-level"

// RealPanel reads float switches from actual hardware using the Linux GPIO
// character device.
type RealPanel struct {
	chip  *gpiocdev.Chip
	lines *gpiocdev.Lines
	pins  []int
}

// NewRealPanel requests the configured switch lines as inputs.
func NewRealPanel(cfg PanelConfig) (*RealPanel, error) {
	if len(cfg.Pins) != SwitchCount {
		return nil, fmt.Errorf("panel needs %d pins, got %d", SwitchCount, len(cfg.Pins))
	}

	chip, err := gpiocdev.NewChip(cfg.Chip, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", cfg.Chip, err)
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput}
	switch cfg.Bias {
	case BiasPullUp:
		opts = append(opts, gpiocdev.WithPullUp)
	case BiasDisabled:
		opts = append(opts, gpiocdev.WithBiasDisabled)
	default:
		opts = append(opts, gpiocdev.WithPullDown)
	}
	if cfg.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	lines, err := chip.RequestLines(cfg.Pins, opts...)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request switch pins %v: %w", cfg.Pins, err)
	}

	return &RealPanel{
		chip:  chip,
		lines: lines,
		pins:  cfg.Pins,
	}, nil
}

// Read returns the logical state of every switch.
func (p *RealPanel) Read() (Switches, error) {
	var s Switches
	values := make([]int, SwitchCount)
	if err := p.lines.Values(values); err != nil {
		return s, fmt.Errorf("read switch pins %v: %w", p.pins, err)
	}
	for i, v := range values {
		s[i] = v == 1
	}
	return s, nil
}

// Close releases the switch lines and the chip.
func (p *RealPanel) Close() error {
	var errs []error
	if p.lines != nil {
		if err := p.lines.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close switch lines: %w", err))
		}
	}
	if p.chip != nil {
		if err := p.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	return errors.Join(errs...)
}

// RealRelay drives the pump relay through a GPIO output line.
type RealRelay struct {
	line       *gpiocdev.Line
	pin        int
	activeHigh bool
}

// NewRealRelay requests the relay pin as an output in the released state.
func NewRealRelay(cfg RelayConfig) (*RealRelay, error) {
	r := &RealRelay{pin: cfg.Pin, activeHigh: cfg.ActiveHigh}

	line, err := gpiocdev.RequestLine(cfg.Chip, cfg.Pin,
		gpiocdev.AsOutput(r.value(false)),
		gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("request relay pin %d: %w", cfg.Pin, err)
	}
	r.line = line
	return r, nil
}

// Set energises or releases the relay.
func (r *RealRelay) Set(on bool) error {
	if err := r.line.SetValue(r.value(on)); err != nil {
		return fmt.Errorf("set relay pin %d: %w", r.pin, err)
	}
	return nil
}

// Close releases the relay before freeing the line so the pump is left off.
func (r *RealRelay) Close() error {
	if r.line == nil {
		return nil
	}
	var errs []error
	if err := r.line.SetValue(r.value(false)); err != nil {
		errs = append(errs, fmt.Errorf("release relay pin %d: %w", r.pin, err))
	}
	if err := r.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close relay pin %d: %w", r.pin, err))
	}
	return errors.Join(errs...)
}

func (r *RealRelay) value(on bool) int {
	if on == r.activeHigh {
		return 1
	}
	return 0
}
