package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	ConfigFile string `short:"c" long:"config" default:"lerobot-convert.toml" description:"Configuration file (defaults apply when it does not exist)"`

	Convert  ConvertCommand  `command:"convert" alias:"conv" description:"Convert a zarr replay buffer into LeRobot datasets"`
	Inspect  InspectCommand  `command:"inspect" description:"List the arrays of a zarr replay buffer"`
	Features FeaturesCommand `command:"features" description:"Show the dataset features for a mode"`
	Init     InitCommand     `command:"init" description:"Write a default configuration file"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "lerobot-convert - Convert PushT scara replay buffers to LeRobot v2.0 datasets"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
