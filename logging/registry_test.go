package logging

import (
	"testing"

	"go.viam.com/test"
)

func TestPatternValidation(t *testing.T) {
	for _, pattern := range []string{"spictl", "spictl.*", "*.spi1", "a-b_c.d"} {
		test.That(t, LoggerPatternConfig{Pattern: pattern, Level: "debug"}.Validate(), test.ShouldBeNil)
	}
	for _, pattern := range []string{"", "spictl.", ".spi1", "spi 1", "spictl..spi1"} {
		test.That(t, LoggerPatternConfig{Pattern: pattern, Level: "debug"}.Validate(), test.ShouldNotBeNil)
	}
	test.That(t, LoggerPatternConfig{Pattern: "spictl", Level: "loud"}.Validate(), test.ShouldNotBeNil)
}

func TestRegistryUpdateConfig(t *testing.T) {
	registry := NewRegistry()
	root := registry.GetOrRegister("spictl", NewBlankLogger("spictl"))
	bus := registry.GetOrRegister("spictl.spi1", root.Sublogger("spi1"))
	test.That(t, registry.GetOrRegister("spictl", NewBlankLogger("other")), test.ShouldEqual, root)
	test.That(t, registry.Names(), test.ShouldResemble, []string{"spictl", "spictl.spi1"})

	errLogger, logs := NewObservedTestLogger(t)
	registry.UpdateConfig([]LoggerPatternConfig{
		{Pattern: "spictl.*", Level: "debug"},
		{Pattern: "bad..pattern", Level: "error"},
	}, errLogger)
	test.That(t, root.GetLevel(), test.ShouldEqual, INFO)
	test.That(t, bus.GetLevel(), test.ShouldEqual, DEBUG)
	test.That(t, logs.FilterMessage("ignoring logger pattern").Len(), test.ShouldEqual, 1)

	late := registry.GetOrRegister("spictl.cli", NewBlankLogger("cli"))
	test.That(t, late.GetLevel(), test.ShouldEqual, DEBUG)

	registry.UpdateConfig(nil, errLogger)
	test.That(t, bus.GetLevel(), test.ShouldEqual, INFO)

	logger, ok := registry.LoggerNamed("spictl.spi1")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, logger, test.ShouldEqual, bus)
}
