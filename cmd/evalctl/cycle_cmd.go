package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spec-kit/evaluation-service/internal/api/dto"
	"github.com/spec-kit/evaluation-service/internal/app"
	"github.com/spec-kit/evaluation-service/internal/domain"
	"github.com/spec-kit/evaluation-service/internal/repository"
	"github.com/spec-kit/evaluation-service/internal/service"
)

func cycleCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "cycle", Short: "Manage evaluation cycles"}
	cmd.AddCommand(cycleListCmd())
	cmd.AddCommand(cycleShowCmd())
	cmd.AddCommand(cycleCreateCmd())
	cmd.AddCommand(cyclePreviewCmd())
	cmd.AddCommand(cyclePublishCmd("publish", "Publish a draft cycle"))
	cmd.AddCommand(cyclePublishCmd("republish", "Reconcile a published cycle with the current hierarchy"))
	cmd.AddCommand(cycleCloseCmd())
	cmd.AddCommand(cycleEvaluationsCmd())
	cmd.AddCommand(cycleHistoryCmd())
	return cmd
}

func cycleTable(cycles ...domain.EvaluationCycle) table.Writer {
	tw := newTable(table.Row{"ID", "Title", "Status", "Types", "Start", "End", "Published"})
	for _, c := range cycles {
		types := make([]string, 0, len(c.EvaluationTypes))
		for _, t := range c.EvaluationTypes {
			types = append(types, string(t))
		}
		tw.AppendRow(table.Row{
			c.ID, c.Title, c.Status, strings.Join(types, ","),
			c.StartDate.Format("2006-01-02"), c.EndDate.Format("2006-01-02"), formatTime(c.PublishedAt),
		})
	}
	return tw
}

func cycleListCmd() *cobra.Command {
	var (
		status string
		limit  int
		offset int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cycles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(ctx context.Context, c *app.Container) error {
				filter := repository.CycleFilter{Limit: limit, Offset: offset}
				if status != "" {
					s := domain.CycleStatus(strings.ToUpper(status))
					filter.Status = &s
				}
				cycles, err := c.Cycles.ListCycles(ctx, filter)
				if err != nil {
					return err
				}
				return render(responses(cycles), func() table.Writer { return cycleTable(cycles...) })
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "DRAFT, PUBLISHED or CLOSED")
	cmd.Flags().IntVar(&limit, "limit", 50, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	return cmd
}

func responses(cycles []domain.EvaluationCycle) []dto.CycleResponse {
	out := make([]dto.CycleResponse, 0, len(cycles))
	for i := range cycles {
		out = append(out, dto.NewCycleResponse(&cycles[i]))
	}
	return out
}

func cycleShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <cycle-id>",
		Short: "Show one cycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(ctx context.Context, c *app.Container) error {
				cycle, err := c.Cycles.GetCycle(ctx, args[0])
				if err != nil {
					return err
				}
				return render(dto.NewCycleResponse(cycle), func() table.Writer { return cycleTable(*cycle) })
			})
		},
	}
}

func cycleCreateCmd() *cobra.Command {
	var (
		req      dto.CreateCycleRequest
		deadline string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a draft cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			if deadline != "" {
				req.SubmissionDeadline = &deadline
			}
			input, err := req.ToInput()
			if err != nil {
				return err
			}
			return withContainer(cmd.Context(), func(ctx context.Context, c *app.Container) error {
				cycle, err := c.Cycles.CreateCycle(ctx, input)
				if err != nil {
					return err
				}
				return render(dto.NewCycleResponse(cycle), func() table.Writer { return cycleTable(*cycle) })
			})
		},
	}
	cmd.Flags().StringVar(&req.Title, "title", "", "cycle title (required)")
	cmd.Flags().StringVar(&req.TemplateID, "template", "", "evaluation template id (required)")
	cmd.Flags().StringSliceVar(&req.EvaluationTypes, "types", nil, "evaluation types, e.g. SELF,MANAGER,PEER")
	cmd.Flags().StringVar(&req.StartDate, "start", "", "start date YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&req.EndDate, "end", "", "end date YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&deadline, "deadline", "", "submission deadline YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("template")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func cyclePreviewCmd() *cobra.Command {
	var summary bool
	cmd := &cobra.Command{
		Use:   "preview <cycle-id>",
		Short: "Show the assignments a publish would create, without writing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(ctx context.Context, c *app.Container) error {
				preview, err := c.Publications.PreviewCycle(ctx, args[0])
				if err != nil {
					return err
				}
				if summary {
					preview.Triples = nil
				}
				return render(preview, func() table.Writer { return previewTable(preview) })
			})
		},
	}
	cmd.Flags().BoolVar(&summary, "summary", false, "only print counts")
	return cmd
}

func previewTable(p service.Preview) table.Writer {
	if len(p.Triples) == 0 {
		tw := newTable(table.Row{"Type", "Count"})
		types := make([]string, 0, len(p.CountByType))
		for t := range p.CountByType {
			types = append(types, string(t))
		}
		sort.Strings(types)
		for _, t := range types {
			tw.AppendRow(table.Row{t, p.CountByType[domain.EvaluationType(t)]})
		}
		tw.AppendFooter(table.Row{"TOTAL", p.Total})
		return tw
	}
	tw := newTable(table.Row{"Employee", "Evaluator", "Type"})
	for _, t := range p.Triples {
		tw.AppendRow(table.Row{t.EmployeeID, t.EvaluatorID, t.EvaluationType})
	}
	tw.AppendFooter(table.Row{"", fmt.Sprintf("existing: %d", p.ExistingEvaluations), fmt.Sprintf("total: %d", p.Total)})
	return tw
}

func cyclePublishCmd(use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <cycle-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(ctx context.Context, c *app.Container) error {
				run := c.Publications.PublishCycle
				if use == "republish" {
					run = c.Publications.RepublishCycle
				}
				result, err := run(ctx, viper.GetString("actor-id"), args[0])
				if err != nil {
					return err
				}
				return render(result, func() table.Writer {
					tw := newTable(table.Row{"Cycle", "Status", "Created", "Removed", "Published"})
					tw.AppendRow(table.Row{result.CycleID, result.Status, result.EvaluationsCreated, result.EvaluationsRemoved, formatTime(result.PublishedAt)})
					return tw
				})
			})
		},
	}
}

func cycleCloseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close <cycle-id>",
		Short: "Close a published cycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(ctx context.Context, c *app.Container) error {
				cycle, err := c.Cycles.CloseCycle(ctx, viper.GetString("actor-id"), args[0])
				if err != nil {
					return err
				}
				return render(dto.NewCycleResponse(cycle), func() table.Writer { return cycleTable(*cycle) })
			})
		},
	}
}

func cycleEvaluationsCmd() *cobra.Command {
	var (
		employee  string
		evaluator string
		evalType  string
		limit     int
		offset    int
	)
	cmd := &cobra.Command{
		Use:   "evaluations <cycle-id>",
		Short: "List evaluations materialized for a cycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(ctx context.Context, c *app.Container) error {
				filter := repository.EvaluationFilter{Limit: limit, Offset: offset}
				if employee != "" {
					filter.EmployeeID = &employee
				}
				if evaluator != "" {
					filter.EvaluatorID = &evaluator
				}
				if evalType != "" {
					t := domain.EvaluationType(strings.ToUpper(evalType))
					filter.EvaluationType = &t
				}
				items, err := c.Cycles.ListEvaluations(ctx, args[0], filter)
				if err != nil {
					return err
				}
				out := make([]dto.EvaluationResponse, 0, len(items))
				for i := range items {
					out = append(out, dto.NewEvaluationResponse(&items[i]))
				}
				return render(out, func() table.Writer {
					tw := newTable(table.Row{"ID", "Employee", "Evaluator", "Type", "Status"})
					for _, e := range items {
						tw.AppendRow(table.Row{e.ID, e.EmployeeID, e.EvaluatorID, e.EvaluationType, e.Status})
					}
					return tw
				})
			})
		},
	}
	cmd.Flags().StringVar(&employee, "employee", "", "filter by evaluated employee")
	cmd.Flags().StringVar(&evaluator, "evaluator", "", "filter by evaluator")
	cmd.Flags().StringVar(&evalType, "type", "", "filter by evaluation type")
	cmd.Flags().IntVar(&limit, "limit", 100, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	return cmd
}

func cycleHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <cycle-id>",
		Short: "Show publication history, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(ctx context.Context, c *app.Container) error {
				items, err := c.Cycles.ListPublications(ctx, args[0])
				if err != nil {
					return err
				}
				out := make([]dto.PublicationHistoryResponse, 0, len(items))
				for i := range items {
					out = append(out, dto.NewPublicationHistoryResponse(&items[i]))
				}
				return render(out, func() table.Writer {
					tw := newTable(table.Row{"At", "Action", "Created", "Removed", "Actor"})
					for _, p := range items {
						at := p.CreatedAt
						tw.AppendRow(table.Row{formatTime(&at), p.Action, p.EvaluationsCreated, p.EvaluationsRemoved, deref(p.ActorID)})
					}
					return tw
				})
			})
		},
	}
}
