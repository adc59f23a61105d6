package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/gwillem/zarr2lerobot/pkg/config"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type InitCommand struct {
	Force bool `long:"force" description:"Overwrite an existing file without asking"`
}

func (c *InitCommand) Execute(args []string) error {
	path := opts.ConfigFile

	if _, err := os.Stat(path); err == nil && !c.Force {
		if !isTerminal() {
			fmt.Fprintf(os.Stderr, "%s already exists. Use --force to overwrite it.\n", path)
			os.Exit(1)
		}
		var overwrite bool
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("%s already exists. Overwrite it with defaults?", path)).
					Affirmative("Overwrite").
					Negative("Keep").
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil || !overwrite {
			fmt.Println("Kept existing configuration.")
			return nil
		}
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error checking %s: %v\n", path, err)
		os.Exit(1)
	}

	cfg := config.Default()
	if err := cfg.SaveTo(path); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(successStyle.Render("Configuration written to " + path))
	fmt.Println()
	fmt.Println(subHeaderStyle.Render("Next steps"))
	fmt.Printf("  Check the store:  %s\n", headerStyle.Render("lerobot-convert inspect "+cfg.StorePath()))
	fmt.Printf("  Convert:          %s\n", headerStyle.Render("lerobot-convert convert"))
	return nil
}
