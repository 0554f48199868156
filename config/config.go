// Package config defines the spictl configuration file.
package config

import (
	"strconv"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/spimaster/components/buses/spimaster"
	"go.viam.com/spimaster/logging"
)

// Register backends.
const (
	// BackendSim runs against the simulated peripheral.
	BackendSim = "sim"
	// BackendMem maps the physical register blocks through /dev/mem.
	BackendMem = "mem"
)

// maxRegister is the highest simulated register address.
const maxRegister = 0x7f

// Config is the on-disk configuration of an SPI1 master.
type Config struct {
	ConfigFilePath string `json:"-"`

	Backend    string                        `json:"backend,omitempty"`
	Attributes map[string]interface{}        `json:"attributes"`
	Log        []logging.LoggerPatternConfig `json:"log,omitempty"`

	// SimRegisters preloads the simulated device. Keys are register addresses such as "0xd0".
	SimRegisters map[string]interface{} `json:"sim_registers,omitempty"`

	// Filled in by Ensure.
	Master    spimaster.Config `json:"-"`
	Registers map[byte]byte    `json:"-"`
}

// Ensure applies defaults, decodes the attributes into Master and validates the result.
func (c *Config) Ensure(logger logging.Logger) error {
	if c.Backend == "" {
		c.Backend = BackendSim
	}
	switch c.Backend {
	case BackendSim, BackendMem:
	default:
		return utils.NewConfigValidationError("backend",
			errors.Errorf("unknown backend %q, expected %q or %q", c.Backend, BackendSim, BackendMem))
	}

	if c.Attributes == nil {
		return utils.NewConfigValidationFieldRequiredError("", "attributes")
	}
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &c.Master,
		Metadata:         &md,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(c.Attributes); err != nil {
		return errors.Wrap(err, "decoding attributes")
	}
	for _, key := range md.Unused {
		logger.Warnw("ignoring unknown attribute", "attribute", key)
	}
	if err := c.Master.Validate("attributes"); err != nil {
		return err
	}

	for i, lpc := range c.Log {
		if err := lpc.Validate(); err != nil {
			return utils.NewConfigValidationError("log."+strconv.Itoa(i), err)
		}
	}

	registers, err := decodeRegisters(c.SimRegisters)
	if err != nil {
		return utils.NewConfigValidationError("sim_registers", err)
	}
	if len(registers) != 0 && c.Backend != BackendSim {
		logger.Warnw("sim_registers only apply to the sim backend", "backend", c.Backend)
	}
	c.Registers = registers
	return nil
}

func decodeRegisters(raw map[string]interface{}) (map[byte]byte, error) {
	var values map[string]uint8
	if err := mapstructure.WeakDecode(raw, &values); err != nil {
		return nil, err
	}
	registers := make(map[byte]byte, len(values))
	for key, v := range values {
		addr, err := strconv.ParseUint(key, 0, 8)
		if err != nil {
			return nil, errors.Wrapf(err, "register address %q", key)
		}
		if addr > maxRegister {
			return nil, errors.Errorf("register address %q is above %#02x, bit 7 is the read flag", key, maxRegister)
		}
		registers[byte(addr)] = v
	}
	return registers, nil
}
