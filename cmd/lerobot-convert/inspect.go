package main

import (
	"fmt"
	"maps"
	"os"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/gwillem/zarr2lerobot/pkg/episode"
	"github.com/gwillem/zarr2lerobot/pkg/replay"
	"github.com/gwillem/zarr2lerobot/pkg/zarr"
)

type InspectCommand struct {
	Args struct {
		Store string `positional-arg-name:"store" description:"Replay buffer directory (default: from config)"`
	} `positional-args:"yes"`
}

func (c *InspectCommand) Execute(args []string) error {
	storePath := c.Args.Store
	if storePath == "" {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		storePath = cfg.StorePath()
	}

	buf, err := replay.Open(storePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", storePath, err)
		explain(err)
		os.Exit(1)
	}

	var rows [][]string
	var stored, raw int64
	for _, group := range []struct {
		name string
		keys func() ([]string, error)
		open func(string) (*zarr.Array, error)
	}{
		{"data", buf.Keys, buf.Array},
		{"meta", buf.MetaKeys, buf.MetaArray},
	} {
		keys, err := group.keys()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing %s: %v\n", group.name, err)
			os.Exit(1)
		}
		for _, key := range keys {
			a, err := group.open(key)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error opening %s/%s: %v\n", group.name, key, err)
				os.Exit(1)
			}
			size, err := a.StoredBytes()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error sizing %s/%s: %v\n", group.name, key, err)
				os.Exit(1)
			}
			n := int64(a.NumElements()) * int64(a.DType().Size)
			stored += size
			raw += n
			rows = append(rows, []string{
				path.Join(group.name, key),
				dims(a.Shape()),
				dims(a.Chunks()),
				a.DType().String(),
				compressorName(a.Metadata().Compressor),
				humanize.Bytes(uint64(size)),
				humanize.Bytes(uint64(n)),
			})
		}
	}

	fmt.Println(headerStyle.Render("Replay buffer ") + dimStyle.Render(buf.Path()))
	for _, line := range attrLines(buf.Attrs()) {
		fmt.Println(dimStyle.Render(line))
	}
	fmt.Println()

	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableNameStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)
	tableSizeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1).Align(lipgloss.Right)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Array", "Shape", "Chunks", "DType", "Compressor", "Stored", "Raw").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch col {
			case 0:
				return tableNameStyle
			case 5, 6:
				return tableSizeStyle
			default:
				return tableCellStyle
			}
		})
	fmt.Println(t.Render())

	ratio := 0.0
	if stored > 0 {
		ratio = float64(raw) / float64(stored)
	}
	fmt.Printf("%s stored, %s raw (%.1fx)\n", humanize.Bytes(uint64(stored)), humanize.Bytes(uint64(raw)), ratio)

	ends, err := buf.EpisodeEnds()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading episode ends: %v\n", err)
		os.Exit(1)
	}
	ranges, err := episode.Ranges(ends)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid episode ends: %v\n", err)
		os.Exit(1)
	}
	shortest, longest := ranges[0].Len(), ranges[0].Len()
	for _, r := range ranges {
		shortest = min(shortest, r.Len())
		longest = max(longest, r.Len())
	}
	fmt.Printf("%s episodes, %s frames (episode length %d to %d)\n",
		humanize.Comma(int64(len(ranges))), humanize.Comma(episode.Total(ranges)), shortest, longest)
	return nil
}

// attrLines renders root attributes as sorted key: value lines.
func attrLines(attrs map[string]any) []string {
	lines := make([]string, 0, len(attrs))
	for _, k := range slices.Sorted(maps.Keys(attrs)) {
		lines = append(lines, fmt.Sprintf("%s: %v", k, attrs[k]))
	}
	return lines
}

func dims(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, "×")
}

func compressorName(c *zarr.Compressor) string {
	switch {
	case c == nil:
		return "none"
	case c.ID == "blosc":
		s := fmt.Sprintf("blosc/%s:%d", c.CName, c.CLevel)
		if c.Shuffle != 0 {
			s += " shuffle"
		}
		return s
	case c.Level != 0:
		return fmt.Sprintf("%s:%d", c.ID, c.Level)
	default:
		return c.ID
	}
}
