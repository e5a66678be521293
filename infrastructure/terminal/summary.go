package terminal

import (
	"fmt"
	"io"
	"time"

	"mp4-mp3/domain/conversion"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// HumanSize formats a byte count the way file managers do, e.g. "5.2 MB"
func HumanSize(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// SourceInfo is the line shown before a conversion starts
func SourceInfo(src conversion.Source) string {
	return fmt.Sprintf("File: %s (%s)", src.Name, HumanSize(src.Size()))
}

// Summary describes a finished conversion
type Summary struct {
	Source     conversion.Source
	Quality    string
	Result     *conversion.Result
	OutputPath string
	SharedURL  string
}

// RenderSummary writes a table describing a finished conversion
func RenderSummary(w io.Writer, s Summary) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignLeft},
	})

	tw.AppendRow(table.Row{"Source", fmt.Sprintf("%s (%s)", s.Source.Name, HumanSize(s.Source.Size()))})
	tw.AppendRow(table.Row{"Quality", s.Quality})
	if s.Result != nil {
		tw.AppendRow(table.Row{"Output", fmt.Sprintf("%s (%s)", s.Result.FileName, HumanSize(s.Result.Size()))})
		tw.AppendRow(table.Row{"Elapsed", s.Result.Elapsed.Round(100 * time.Millisecond).String()})
	}
	if s.OutputPath != "" {
		tw.AppendRow(table.Row{"Saved to", s.OutputPath})
	}
	if s.SharedURL != "" {
		tw.AppendRow(table.Row{"Shared", s.SharedURL})
	}

	tw.Render()
}
