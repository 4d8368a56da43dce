package main

import (
	"io"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"llamactx/internal/registry"
	"llamactx/pkg/types"
)

func newModelsCmd(root *rootOptions) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List model files in the models directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("models-dir") {
				cfg.ModelsDir = dir
			}
			models, err := registry.LoadDir(cfg.ModelsDir)
			if err != nil {
				return err
			}
			renderModels(cmd.OutOrStdout(), models)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "models-dir", "", "Directory to scan")
	return cmd
}

func renderModels(w io.Writer, models []types.Model) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Backend", "Family", "Quant", "Size"})
	var total uint64
	for _, m := range models {
		size := uint64(max(m.SizeBytes, 0))
		total += size
		t.AppendRow(table.Row{m.ID, m.Backend, m.Family, m.Quant, humanize.Bytes(size)})
	}
	t.AppendFooter(table.Row{"", "", "", len(models), humanize.Bytes(total)})
	t.Render()
}
