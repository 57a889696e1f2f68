package main

import (
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/hupe1980/taskmesh/core"
)

func newPipelinesCmd(ro *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pipelines",
		Short: "List the registered pipelines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mesh, err := ro.open(cmd.Context())
			if err != nil {
				return err
			}
			defer mesh.Close()

			table := newTable(cmd, "Name", "Policy", "Participants", "Description")
			for _, name := range mesh.Engine().Pipelines() {
				p, _ := mesh.Engine().Pipeline(name)
				cfg := p.Config()
				policy := cfg.TurnPolicy.Kind
				if policy == "" {
					policy = "round_robin"
				}
				ids := make([]string, 0, len(cfg.Participants))
				for _, ps := range cfg.Participants {
					ids = append(ids, participantLabel(ps))
				}
				table.Append([]string{name, policy, strings.Join(ids, ", "), cfg.Description})
			}
			table.Render()
			return nil
		},
	}
}

func participantLabel(ps core.ParticipantSpec) string {
	if len(ps.Tools) == 0 {
		return ps.ID
	}
	return ps.ID + " [" + strings.Join(ps.Tools, ",") + "]"
}

func newTable(cmd *cobra.Command, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	return table
}
