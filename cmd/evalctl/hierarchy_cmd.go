package main

import (
	"context"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/spec-kit/evaluation-service/internal/api/dto"
	"github.com/spec-kit/evaluation-service/internal/app"
)

func hierarchyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "hierarchy", Short: "Inspect the org hierarchy"}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print positions and their holders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(ctx context.Context, c *app.Container) error {
				src, snap, err := c.Hierarchy.GetHierarchy(ctx)
				if err != nil {
					return err
				}
				resp := dto.NewHierarchyResponse(src, snap)
				return render(resp, func() table.Writer {
					tw := newTable(table.Row{"Position", "Title", "Parent", "Aggregate", "Holders"})
					for _, p := range resp.Positions {
						tw.AppendRow(table.Row{p.ID, p.Title, deref(p.ParentPositionID), p.IsAggregate, strings.Join(p.Holders, ",")})
					}
					tw.AppendFooter(table.Row{"", "", "", "bound", resp.BoundEmployees})
					return tw
				})
			})
		},
	})
	return cmd
}
