package spimaster

import (
	"time"

	"github.com/pkg/errors"
	"go.viam.com/utils"
	"periph.io/x/conn/v3/physic"

	"go.viam.com/spimaster/chip/stm32l0"
)

// Defaults applied to zero-valued Config fields.
const (
	DefaultPrescaler      = 2
	DefaultInputClockHz   = 16000000
	DefaultPollAttempts   = 100000
	DefaultPollTimeoutMs  = 10
	DefaultReleaseDelayUs = 1
)

// Config describes the SPI1 master. Only the chip-select line is required.
type Config struct {
	ChipSelect     string `json:"chip_select"`
	Prescaler      int    `json:"prescaler,omitempty"`
	InputClockHz   int    `json:"input_clock_hz,omitempty"`
	PollAttempts   int    `json:"poll_attempts,omitempty"`
	PollTimeoutMs  int    `json:"poll_timeout_ms,omitempty"`
	ReleaseDelayUs int    `json:"release_delay_us,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if conf.ChipSelect == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "chip_select")
	}
	pin, err := stm32l0.ParsePin(conf.ChipSelect)
	if err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	for _, fixed := range busPins {
		if pin == fixed.pin {
			return utils.NewConfigValidationError(path,
				errors.Errorf("chip_select %s is already used as %s", pin, fixed.role))
		}
	}
	if conf.Prescaler != 0 {
		if _, err := stm32l0.BaudRateFor(conf.Prescaler); err != nil {
			return utils.NewConfigValidationError(path, err)
		}
	}
	if conf.InputClockHz < 0 {
		return utils.NewConfigValidationError(path, errors.New("input_clock_hz cannot be negative"))
	}
	if conf.PollAttempts < 0 {
		return utils.NewConfigValidationError(path, errors.New("poll_attempts cannot be negative"))
	}
	if conf.PollTimeoutMs < 0 {
		return utils.NewConfigValidationError(path, errors.New("poll_timeout_ms cannot be negative"))
	}
	if conf.ReleaseDelayUs < 0 {
		return utils.NewConfigValidationError(path, errors.New("release_delay_us cannot be negative"))
	}
	return nil
}

// settings is a validated Config with defaults applied.
type settings struct {
	chipSelect   stm32l0.Pin
	baudRate     stm32l0.BaudRate
	inputClock   physic.Frequency
	pollAttempts int
	pollTimeout  time.Duration
	releaseDelay int
}

func (conf *Config) resolve() (settings, error) {
	if err := conf.Validate(""); err != nil {
		return settings{}, err
	}
	s := settings{
		inputClock:   physic.Frequency(orDefault(conf.InputClockHz, DefaultInputClockHz)) * physic.Hertz,
		pollAttempts: orDefault(conf.PollAttempts, DefaultPollAttempts),
		pollTimeout:  time.Duration(orDefault(conf.PollTimeoutMs, DefaultPollTimeoutMs)) * time.Millisecond,
		releaseDelay: orDefault(conf.ReleaseDelayUs, DefaultReleaseDelayUs),
	}
	var err error
	if s.chipSelect, err = stm32l0.ParsePin(conf.ChipSelect); err != nil {
		return settings{}, err
	}
	if s.baudRate, err = stm32l0.BaudRateFor(orDefault(conf.Prescaler, DefaultPrescaler)); err != nil {
		return settings{}, err
	}
	return s, nil
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
