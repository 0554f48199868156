package cli

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/spimaster/chip/stm32l0"
	"go.viam.com/spimaster/components/buses/fake"
	"go.viam.com/spimaster/components/buses/spimaster"
	"go.viam.com/spimaster/config"
	"go.viam.com/spimaster/logging"
	"go.viam.com/spimaster/mmio"
	"go.viam.com/spimaster/timing"
)

// session is an initialized master plus whatever backs its registers.
type session struct {
	ctx      context.Context
	cfg      *config.Config
	logger   logging.Logger
	registry *logging.Registry
	master   *spimaster.Master
	window   mmio.Window
	periph   *fake.Peripheral
	physical *mmio.Physical
}

func openSession(c *cli.Context) (*session, error) {
	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}

	logger := logging.NewBlankLogger("spictl")
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
	registry := logging.NewRegistry()
	logger = registry.GetOrRegister("spictl", logger)
	busLogger := registry.GetOrRegister("spictl.spi1", logger.Sublogger("spi1"))

	cfg, err := config.Read(ctx, c.String(flagConfig), logger)
	if err != nil {
		return nil, err
	}
	registry.UpdateConfig(cfg.Log, logger)
	if c.Bool(flagDebug) {
		ctx = logging.EnableDebugMode(ctx, "")
		for _, name := range registry.Names() {
			if l, ok := registry.LoggerNamed(name); ok {
				l.SetLevel(logging.DEBUG)
			}
		}
	}

	s := &session{ctx: ctx, cfg: cfg, logger: logger, registry: registry}
	var window mmio.Window
	var delay timing.Service
	switch cfg.Backend {
	case config.BackendSim:
		pin, err := stm32l0.ParsePin(cfg.Master.ChipSelect)
		if err != nil {
			return nil, err
		}
		s.periph = fake.NewPeripheral(pin, fake.NewRegisterDevice(cfg.Registers))
		window = s.periph
		delay = s.periph.Timing()
	case config.BackendMem:
		s.physical, err = mmio.MapPhysical(stm32l0.Regions()...)
		if err != nil {
			return nil, errors.Wrap(err, "mapping SPI1 registers")
		}
		window = s.physical
		delay = timing.New(nil)
	default:
		return nil, errors.Errorf("unknown backend %q", cfg.Backend)
	}

	s.window = window
	s.master, err = spimaster.NewMaster(window, &cfg.Master, delay, nil, busLogger)
	if err != nil {
		return nil, multierr.Combine(err, s.closeBackend())
	}
	return s, nil
}

func (s *session) closeBackend() error {
	if s.physical == nil {
		return nil
	}
	return s.physical.Close()
}

// close releases the bus and, when asked, prints the simulated bus trace.
func (s *session) close(c *cli.Context) error {
	err := multierr.Combine(s.master.Close(s.ctx), s.closeBackend(), s.logger.Sync())
	if c.Bool(flagTrace) && s.periph != nil {
		for _, cycle := range s.periph.Cycles() {
			fmt.Fprintf(c.App.ErrWriter, "cycle %s\n", cycle)
		}
		for _, event := range s.periph.Events() {
			fmt.Fprintf(c.App.ErrWriter, "event %s\n", event)
		}
	}
	return err
}

func parseRegister(s string) (byte, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return 0, errors.Wrapf(err, "bad register address %q", s)
	}
	return byte(v), nil
}

func parseData(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.NewReplacer(" ", "", ":", "", ",", "").Replace(s)
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrapf(err, "bad hex payload %q", s)
	}
	return data, nil
}

// WriteAction writes the payload to the register.
func WriteAction(c *cli.Context) (err error) {
	register, err := parseRegister(c.String(flagRegister))
	if err != nil {
		return err
	}
	data, err := parseData(c.String(flagData))
	if err != nil {
		return err
	}
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, s.close(c))
	}()

	if err := s.master.WriteRegister(s.ctx, register, data); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "wrote %d bytes to 0x%02x\n", len(data), register)
	return nil
}

// ReadAction reads --count bytes starting at the register and prints them as hex.
func ReadAction(c *cli.Context) (err error) {
	register, err := parseRegister(c.String(flagRegister))
	if err != nil {
		return err
	}
	count := c.Int(flagCount)
	if count < 0 {
		return errors.Errorf("count cannot be negative, got %d", count)
	}
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, s.close(c))
	}()

	buf := make([]byte, count)
	if err := s.master.ReadRegister(s.ctx, register, buf); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, hex.EncodeToString(buf))
	return nil
}

// InfoAction initializes the bus and prints its configuration.
func InfoAction(c *cli.Context) (err error) {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, s.close(c))
	}()

	spi := stm32l0.NewSPI1(s.window)
	w := c.App.Writer
	fmt.Fprintf(w, "backend:     %s\n", s.cfg.Backend)
	fmt.Fprintf(w, "chip select: %s (%s)\n", s.master.ChipSelect(), s.master.ChipSelect().Function())
	fmt.Fprintf(w, "speed:       %s\n", s.master.Speed())
	fmt.Fprintf(w, "CR1:         %s\n", spi.CR1())
	fmt.Fprintf(w, "CR2:         %s\n", spi.CR2())
	fmt.Fprintf(w, "loggers:     %s\n", strings.Join(s.registry.Names(), ", "))
	return nil
}
