package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"

	"go.viam.com/spimaster/components/buses/spimaster"
	"go.viam.com/spimaster/logging"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spictl.json")
	test.That(t, os.WriteFile(path, []byte(contents), 0o600), test.ShouldBeNil)
	return path
}

func TestRead(t *testing.T) {
	logger := logging.NewTestLogger(t)
	t.Setenv("SPICTL_PRESCALER", "16")

	path := writeConfig(t, `{
		"backend": "sim",
		"attributes": {
			"chip_select": "PA4",
			"prescaler": "${SPICTL_PRESCALER}",
			"poll_attempts": 500
		},
		"log": [{"pattern": "spictl.*", "level": "debug"}],
		"sim_registers": {"0x50": "0x60", "0x08": 17}
	}`)

	cfg, err := Read(context.Background(), path, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, path)
	test.That(t, cfg.Backend, test.ShouldEqual, BackendSim)
	test.That(t, cfg.Master, test.ShouldResemble, spimaster.Config{
		ChipSelect:   "PA4",
		Prescaler:    16,
		PollAttempts: 500,
	})
	test.That(t, cfg.Registers, test.ShouldResemble, map[byte]byte{0x50: 0x60, 0x08: 17})
	test.That(t, cfg.Log, test.ShouldHaveLength, 1)
}

func TestReadDefaultsAndWarnings(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	cfg, err := FromReader(context.Background(), "", strings.NewReader(
		`{"attributes": {"chip_select": "PB0", "unknown_knob": 1}}`), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Backend, test.ShouldEqual, BackendSim)
	test.That(t, cfg.Registers, test.ShouldBeEmpty)
	test.That(t, logs.FilterMessage("ignoring unknown attribute").Len(), test.ShouldEqual, 1)
}

func TestReadErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)
	for _, tc := range []struct {
		name     string
		contents string
		err      string
	}{
		{"not json", `{`, "failed to decode"},
		{"no attributes", `{"backend": "sim"}`, "attributes"},
		{"backend", `{"backend": "i2c", "attributes": {"chip_select": "PA4"}}`, "unknown backend"},
		{"chip select", `{"attributes": {}}`, "chip_select"},
		{"prescaler", `{"attributes": {"chip_select": "PA4", "prescaler": "three"}}`, "decoding attributes"},
		{"register key", `{"attributes": {"chip_select": "PA4"}, "sim_registers": {"0x100": 1}}`, "register address"},
		{"read flag in key", `{"attributes": {"chip_select": "PA4"}, "sim_registers": {"0x80": 1}}`, "bit 7 is the read flag"},
		{"log pattern", `{"attributes": {"chip_select": "PA4"}, "log": [{"pattern": "a..b", "level": "info"}]}`, "invalid logger pattern"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromReader(context.Background(), "", strings.NewReader(tc.contents), logger)
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.err)
		})
	}

	_, err := Read(context.Background(), filepath.Join(t.TempDir(), "missing.json"), logger)
	test.That(t, err, test.ShouldNotBeNil)
}
