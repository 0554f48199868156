package spimaster

import (
	"testing"
	"time"

	"go.viam.com/test"
	"periph.io/x/conn/v3/physic"
)

func TestConfigValidate(t *testing.T) {
	path := "attributes"
	for _, tc := range []struct {
		name string
		conf Config
		err  string
	}{
		{"missing chip select", Config{}, "chip_select"},
		{"bad chip select", Config{ChipSelect: "PF1"}, "no such GPIO port"},
		{"bus pin", Config{ChipSelect: "PA5"}, "already used as SCK"},
		{"prescaler", Config{ChipSelect: "PA4", Prescaler: 3}, "power of two"},
		{"clock", Config{ChipSelect: "PA4", InputClockHz: -1}, "input_clock_hz"},
		{"attempts", Config{ChipSelect: "PA4", PollAttempts: -1}, "poll_attempts"},
		{"timeout", Config{ChipSelect: "PA4", PollTimeoutMs: -1}, "poll_timeout_ms"},
		{"delay", Config{ChipSelect: "PA4", ReleaseDelayUs: -1}, "release_delay_us"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.conf.Validate(path)
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.err)
		})
	}

	conf := Config{ChipSelect: "PA4", Prescaler: 256}
	test.That(t, conf.Validate(path), test.ShouldBeNil)
}

func TestConfigDefaults(t *testing.T) {
	conf := Config{ChipSelect: "PA4"}
	s, err := conf.resolve()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.chipSelect, test.ShouldResemble, pa4)
	test.That(t, s.baudRate.Divider(), test.ShouldEqual, DefaultPrescaler)
	test.That(t, s.inputClock, test.ShouldEqual, 16*physic.MegaHertz)
	test.That(t, s.pollAttempts, test.ShouldEqual, DefaultPollAttempts)
	test.That(t, s.pollTimeout, test.ShouldEqual, 10*time.Millisecond)
	test.That(t, s.releaseDelay, test.ShouldEqual, 1)
}
