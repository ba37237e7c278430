package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"processmap/internal/app"
	"processmap/internal/engine"
)

func followUpCmd() *cobra.Command {
	f := &cobra.Command{
		Use:     "followup",
		Aliases: []string{"fu"},
		Short:   "Questions pinned to attributes",
	}
	f.AddCommand(followUpListCmd())
	f.AddCommand(followUpAskCmd())
	f.AddCommand(followUpResolveCmd())
	f.AddCommand(followUpDeleteCmd())
	f.AddCommand(followUpCountsCmd())
	return f
}

func followUpListCmd() *cobra.Command {
	var subProcessID string
	cmd := &cobra.Command{
		Use:   "list PROCESS_ID",
		Short: "List follow-ups of a process title",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), false, func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Engine.ListFollowUps(ctx, args[0], subProcessID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Sub-process", "Attribute", "Status", "Question")
				for _, fu := range items {
					tw.AppendRow(table.Row{fu.ID, fu.SubProcessID, fu.AttributeKey, fu.Status, fu.Question})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&subProcessID, "sub", "", "only this sub-process")
	return cmd
}

func followUpAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask SUB_PROCESS_ID KEY QUESTION...",
		Short: "Open a follow-up, or replace the open question on that attribute",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), false, func(ctx context.Context, ws *app.Workspace) error {
				sp, err := ws.Engine.GetSubProcess(ctx, args[0])
				if err != nil {
					return err
				}
				fu, err := ws.Engine.AskFollowUp(ctx, engine.AskOptions{
					ProcessID:    sp.ProcessID,
					SubProcessID: sp.ID,
					AttributeKey: args[1],
					Question:     strings.Join(args[2:], " "),
					ActorID:      actorID(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(fu)
			})
		},
	}
}

func followUpResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve FOLLOW_UP_ID",
		Short: "Resolve a follow-up",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), false, func(ctx context.Context, ws *app.Workspace) error {
				fu, err := ws.Engine.ResolveFollowUp(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(fu)
			})
		},
	}
}

func followUpDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm FOLLOW_UP_ID",
		Aliases: []string{"delete"},
		Short:   "Delete a follow-up",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), false, func(ctx context.Context, ws *app.Workspace) error {
				return ws.Engine.DeleteFollowUp(ctx, args[0], actorID())
			})
		},
	}
}

func followUpCountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "counts PROCESS_ID",
		Short: "Open follow-ups per sub-process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), false, func(ctx context.Context, ws *app.Workspace) error {
				counts, err := ws.Engine.OpenFollowUpCounts(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				ids := make([]string, 0, len(counts))
				for id := range counts {
					ids = append(ids, id)
				}
				sort.Strings(ids)
				tw := newTable("Sub-process", "Open")
				for _, id := range ids {
					tw.AppendRow(table.Row{id, counts[id]})
				}
				tw.Render()
				if len(ids) == 0 {
					fmt.Println("no open follow-ups")
				}
				return nil
			})
		},
	}
}
