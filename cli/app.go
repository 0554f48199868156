// Package cli contains the spictl command line application.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	flagConfig   = "config"
	flagDebug    = "debug"
	flagTrace    = "trace"
	flagRegister = "register"
	flagData     = "data"
	flagCount    = "count"
)

var app = &cli.App{
	Name:            "spictl",
	Usage:           "run register transactions on an STM32L0 SPI1 master",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     flagConfig,
			Aliases:  []string{"c"},
			Usage:    "load configuration from `FILE`",
			Required: true,
		},
		&cli.BoolFlag{
			Name:    flagDebug,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
		&cli.BoolFlag{
			Name:  flagTrace,
			Usage: "print the simulated bus trace after the command (sim backend only)",
		},
	},
	Commands: []*cli.Command{
		{
			Name:      "write",
			Usage:     "write a payload to a register",
			UsageText: "spictl -c FILE write --register 0x60 --data b6",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     flagRegister,
					Aliases:  []string{"r"},
					Usage:    "register address, e.g. 0x60",
					Required: true,
				},
				&cli.StringFlag{
					Name:    flagData,
					Aliases: []string{"d"},
					Usage:   "payload as hex, e.g. b6 or 0102ff",
				},
			},
			Action: WriteAction,
		},
		{
			Name:      "read",
			Usage:     "read bytes starting at a register",
			UsageText: "spictl -c FILE read --register 0xd0 --count 1",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     flagRegister,
					Aliases:  []string{"r"},
					Usage:    "register address, e.g. 0xd0",
					Required: true,
				},
				&cli.IntFlag{
					Name:    flagCount,
					Aliases: []string{"n"},
					Usage:   "number of bytes to read",
					Value:   1,
				},
			},
			Action: ReadAction,
		},
		{
			Name:   "info",
			Usage:  "initialize the bus and print its configuration",
			Action: InfoAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
