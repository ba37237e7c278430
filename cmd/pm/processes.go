package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"processmap/internal/app"
	"processmap/internal/domain"
	"processmap/internal/engine"
)

func processCmd() *cobra.Command {
	p := &cobra.Command{Use: "process", Short: "Manage process titles"}
	p.AddCommand(processListCmd())
	p.AddCommand(processCreateCmd())
	p.AddCommand(processShowCmd())
	p.AddCommand(processUpdateCmd())
	p.AddCommand(processDeleteCmd())
	return p
}

func processListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List process titles in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), false, func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Engine.ListProcesses(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Seq", "Name", "Depends on")
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Seq, p.Name, deref(p.DependsOn)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func processCreateCmd() *cobra.Command {
	var id, dependsOn string
	var seq int
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a process title",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), false, func(ctx context.Context, ws *app.Workspace) error {
				p, err := ws.Engine.CreateProcess(ctx, engine.ProcessCreateOptions{
					ID:        id,
					Name:      args[0],
					Seq:       seq,
					DependsOn: dependsOn,
					ActorID:   actorID(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "process id (derived from the name when empty)")
	cmd.Flags().IntVar(&seq, "seq", 0, "sequence number (defaults to 1)")
	cmd.Flags().StringVar(&dependsOn, "depends-on", "", "process id this one follows")
	return cmd
}

func processShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show PROCESS_ID",
		Short: "Show a process title and its sub-processes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), false, func(ctx context.Context, ws *app.Workspace) error {
				p, err := ws.Engine.GetProcess(ctx, args[0])
				if err != nil {
					return err
				}
				subs, err := ws.Engine.ListSubProcesses(ctx, p.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(struct {
						domain.ProcessTitle
						SubProcesses []domain.SubProcess `json:"sub_processes"`
					}{p, subs})
				}
				fmt.Printf("%s  %s (seq %d)\n", p.ID, p.Name, p.Seq)
				printSubProcesses(subs)
				return nil
			})
		},
	}
}

func processUpdateCmd() *cobra.Command {
	var name, dependsOn string
	var seq int
	cmd := &cobra.Command{
		Use:   "update PROCESS_ID",
		Short: "Rename, reorder or relink a process title",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.ProcessUpdateOptions{ID: args[0], ActorID: actorID()}
			if cmd.Flags().Changed("name") {
				opts.Name = &name
			}
			if cmd.Flags().Changed("seq") {
				opts.Seq = &seq
			}
			if cmd.Flags().Changed("depends-on") {
				opts.DependsOn = &dependsOn
			}
			return withWorkspace(cmd.Context(), false, func(ctx context.Context, ws *app.Workspace) error {
				p, err := ws.Engine.UpdateProcess(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().IntVar(&seq, "seq", 0, "new position")
	cmd.Flags().StringVar(&dependsOn, "depends-on", "", "process id this one follows (empty clears)")
	return cmd
}

func processDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete PROCESS_ID",
		Short: "Delete a process title with its sub-processes and follow-ups",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), false, func(ctx context.Context, ws *app.Workspace) error {
				return ws.Engine.DeleteProcess(ctx, args[0], actorID())
			})
		},
	}
}

func subCmd() *cobra.Command {
	s := &cobra.Command{Use: "sub", Aliases: []string{"subprocess"}, Short: "Manage sub-processes"}
	s.AddCommand(subListCmd())
	s.AddCommand(subAddCmd())
	s.AddCommand(subUpdateCmd())
	s.AddCommand(subDeleteCmd())
	return s
}

func subListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list PROCESS_ID",
		Short: "List sub-processes of a process title",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), false, func(ctx context.Context, ws *app.Workspace) error {
				subs, err := ws.Engine.ListSubProcesses(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(subs)
				}
				printSubProcesses(subs)
				return nil
			})
		},
	}
}

func subAddCmd() *cobra.Command {
	var id, dependsOn string
	var seq int
	cmd := &cobra.Command{
		Use:   "add PROCESS_ID NAME",
		Short: "Add a sub-process",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), false, func(ctx context.Context, ws *app.Workspace) error {
				sp, err := ws.Engine.CreateSubProcess(ctx, engine.SubProcessCreateOptions{
					ID:        id,
					ProcessID: args[0],
					Name:      args[1],
					Seq:       seq,
					DependsOn: dependsOn,
					ActorID:   actorID(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(sp)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "sub-process id (generated when empty)")
	cmd.Flags().IntVar(&seq, "seq", 0, "sequence number (defaults to 1)")
	cmd.Flags().StringVar(&dependsOn, "depends-on", "", "sub-process id this one follows")
	return cmd
}

func subUpdateCmd() *cobra.Command {
	var name, dependsOn string
	var seq int
	cmd := &cobra.Command{
		Use:   "update SUB_PROCESS_ID",
		Short: "Rename, reorder or relink a sub-process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.SubProcessUpdateOptions{ID: args[0], ActorID: actorID()}
			if cmd.Flags().Changed("name") {
				opts.Name = &name
			}
			if cmd.Flags().Changed("seq") {
				opts.Seq = &seq
			}
			if cmd.Flags().Changed("depends-on") {
				opts.DependsOn = &dependsOn
			}
			return withWorkspace(cmd.Context(), false, func(ctx context.Context, ws *app.Workspace) error {
				sp, err := ws.Engine.UpdateSubProcess(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(sp)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().IntVar(&seq, "seq", 0, "new position")
	cmd.Flags().StringVar(&dependsOn, "depends-on", "", "sub-process id this one follows (empty clears)")
	return cmd
}

func subDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete SUB_PROCESS_ID",
		Short: "Delete a sub-process and its follow-ups",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), false, func(ctx context.Context, ws *app.Workspace) error {
				return ws.Engine.DeleteSubProcess(ctx, args[0], actorID())
			})
		},
	}
}

func printSubProcesses(subs []domain.SubProcess) {
	tw := newTable("ID", "Seq", "Name", "Depends on", "Attributes")
	for _, sp := range subs {
		tw.AppendRow(table.Row{sp.ID, sp.Seq, sp.Name, deref(sp.DependsOn), sp.Attributes.Len()})
	}
	tw.Render()
}
