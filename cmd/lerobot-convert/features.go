package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/zarr2lerobot/pkg/features"
)

type FeaturesCommand struct {
	Mode     string `long:"mode" default:"image" description:"Observation mode: image, video or keypoints"`
	Defaults bool   `long:"defaults" description:"Include the per-frame bookkeeping features"`
	JSON     bool   `long:"json" description:"Print the info.json features object"`
}

func (c *FeaturesCommand) Execute(args []string) error {
	mode, err := features.ParseMode(c.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fs, err := features.Build(mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if c.Defaults {
		fs = fs.WithDefaults()
	}

	if c.JSON {
		data, err := json.MarshalIndent(fs, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
		return nil
	}

	rows := make([][]string, 0, fs.Len())
	for _, key := range fs.Keys() {
		f, _ := fs.Get(key)
		dtype := string(f.DType)
		if f.DType == features.Pending {
			dtype = "-"
		}
		rows = append(rows, []string{key, dtype, dims(f.Shape), strings.Join(f.Names, ", ")})
	}

	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableNameStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Feature", "DType", "Shape", "Names").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			if col == 0 {
				return tableNameStyle
			}
			return tableCellStyle
		})

	fmt.Println(headerStyle.Render("Features ") + dimStyle.Render(string(mode)))
	fmt.Println(t.Render())
	return nil
}
