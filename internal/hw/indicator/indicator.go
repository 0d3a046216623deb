package indicator

import (
	"time"

	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/hw/gpio"
)

// Indicator gives physical feedback for the capture screen.
type Indicator interface {
	// SetTally lights (or clears) the "preview live" LED.
	SetTally(on bool) error
	// Flash pulses the flash LED once for a still capture.
	Flash() error
}

// Nop is an Indicator that does nothing. Used when no LEDs are wired.
type Nop struct{}

func (Nop) SetTally(bool) error { return nil }
func (Nop) Flash() error        { return nil }

// GPIOIndicator drives two LEDs wired to GPIO pins:
// - TALLY: lit while the live preview is bound (active HIGH)
// - FLASH: pulsed HIGH for flashDelay around every still
//
// A pin number of 0 disables the corresponding LED.
type GPIOIndicator struct {
	gpio       gpio.Driver
	tallyPin   int
	flashPin   int
	flashDelay time.Duration // how long FLASH stays HIGH
}

// NewGPIOIndicator configures the pins as outputs and switches both LEDs off.
func NewGPIOIndicator(g gpio.Driver, tallyPin, flashPin int, flashDelay time.Duration) *GPIOIndicator {
	for _, pin := range []int{tallyPin, flashPin} {
		if pin == 0 {
			continue
		}
		_ = g.SetupPin(pin, gpio.Output)
		_ = g.WritePin(pin, gpio.Low)
	}

	return &GPIOIndicator{
		gpio:       g,
		tallyPin:   tallyPin,
		flashPin:   flashPin,
		flashDelay: flashDelay,
	}
}

func (i *GPIOIndicator) SetTally(on bool) error {
	if i.tallyPin == 0 {
		return nil
	}
	debug.Verbose("Indicator: tally %v (pin %d)", on, i.tallyPin)
	return i.gpio.WritePin(i.tallyPin, gpio.Level(on))
}

// Flash raises FLASH, holds it, then releases it.
// Sequence: FLASH -> HIGH -> hold -> LOW
func (i *GPIOIndicator) Flash() error {
	if i.flashPin == 0 {
		return nil
	}
	debug.Verbose("Indicator: flash (pin %d -> HIGH for %v)", i.flashPin, i.flashDelay)
	if err := i.gpio.WritePin(i.flashPin, gpio.High); err != nil {
		return err
	}
	time.Sleep(i.flashDelay)
	return i.gpio.WritePin(i.flashPin, gpio.Low)
}
