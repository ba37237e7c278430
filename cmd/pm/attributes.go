package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"processmap/internal/app"
	"processmap/internal/attr"
	"processmap/internal/editor"
	"processmap/internal/engine"
	"processmap/internal/render"
)

func attrCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "attr",
		Short: "Edit sub-process attributes",
		Long: `Attributes are typed: string, number, boolean, array (comma separated),
object (one --field per row) and richtext (markdown).`,
	}
	a.AddCommand(attrShowCmd())
	a.AddCommand(attrSetCmd())
	a.AddCommand(attrRemoveCmd())
	a.AddCommand(attrFormCmd())
	return a
}

func attrShowCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show SUB_PROCESS_ID [KEY]",
		Short: "Render a sub-process's attributes",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), false, func(ctx context.Context, ws *app.Workspace) error {
				sp, err := ws.Engine.GetSubProcess(ctx, args[0])
				if err != nil {
					return err
				}
				node := render.Attributes(sp.Attributes)
				if len(args) == 2 {
					v, ok := sp.Attributes.Get(args[1])
					if !ok {
						return fmt.Errorf("%w: %s", editor.ErrUnknownAttribute, args[1])
					}
					node = render.Render(v, 0)
				}
				if viper.GetBool("json") {
					return printJSON(node)
				}
				switch format {
				case "html":
					fmt.Println(render.HTML(node))
				case "text", "":
					fmt.Print(render.Text(node))
				default:
					return fmt.Errorf("unknown format %q (text, html)", format)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format (text, html)")
	return cmd
}

func attrSetCmd() *cobra.Command {
	var kind, value, valueFile, rename string
	var fields []string
	cmd := &cobra.Command{
		Use:   "set SUB_PROCESS_ID KEY",
		Short: "Add or edit an attribute",
		Example: `  pm attr set SP_1 Duration --type number --value 15
  pm attr set SP_1 Roles --type array --value "nurse, receptionist"
  pm attr set SP_1 Contact --type object --field phone=555-0100 --field "urgent:boolean=true"
  pm attr set SP_1 Duration --rename "Duration (min)" --type number --value 15`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := attr.ParseKind(kind)
			if err != nil {
				return err
			}
			if valueFile != "" {
				b, err := os.ReadFile(valueFile)
				if err != nil {
					return err
				}
				value = string(b)
			}
			rows, err := parseFieldRows(fields)
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), false, func(ctx context.Context, ws *app.Workspace) error {
				sp, err := ws.Engine.GetSubProcess(ctx, args[0])
				if err != nil {
					return err
				}
				key := args[1]
				original := ""
				if sp.Attributes.Has(key) {
					original = key
				}
				if rename != "" {
					if original == "" {
						return fmt.Errorf("%w: %s", editor.ErrUnknownAttribute, key)
					}
					key = rename
				}
				sp, res, err := ws.Engine.EditAttribute(ctx, engine.EditAttributeOptions{
					SubProcessID: sp.ID,
					OriginalKey:  original,
					Draft:        editor.Draft{Key: key, Kind: k, Value: value, Rows: rows},
					ActorID:      actorID(),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sp)
				}
				switch {
				case res.Created:
					fmt.Printf("added %s\n", res.Key)
				case res.Renamed != "":
					fmt.Printf("renamed %s to %s\n", res.Renamed, res.Key)
				default:
					fmt.Printf("updated %s\n", res.Key)
				}
				fmt.Print(render.Text(render.Render(res.Value, 0)))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&kind, "type", "t", "string", "value type (string, number, boolean, array, object, richtext)")
	cmd.Flags().StringVar(&value, "value", "", "raw value")
	cmd.Flags().StringVar(&valueFile, "value-file", "", "read the raw value from a file")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "object row as key[:type]=value, repeatable")
	cmd.Flags().StringVar(&rename, "rename", "", "new name for an existing attribute")
	return cmd
}

// parseFieldRows reads key[:type]=value rows. Nested objects are built
// through the API or an import document.
func parseFieldRows(fields []string) ([]attr.Row, error) {
	var rows []attr.Row
	for _, f := range fields {
		head, value, ok := strings.Cut(f, "=")
		if !ok {
			return nil, fmt.Errorf("field %q: expected key[:type]=value", f)
		}
		key, kind, hasKind := strings.Cut(head, ":")
		row := attr.Row{Key: strings.TrimSpace(key), Kind: attr.KindString, Value: value}
		if hasKind {
			k, err := attr.ParseKind(kind)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f, err)
			}
			row.Kind = k
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func attrRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm SUB_PROCESS_ID KEY",
		Aliases: []string{"delete"},
		Short:   "Remove an attribute",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), false, func(ctx context.Context, ws *app.Workspace) error {
				sp, err := ws.Engine.DeleteAttribute(ctx, args[0], args[1], actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sp)
				}
				fmt.Printf("removed %s (%d attributes left)\n", args[1], sp.Attributes.Len())
				return nil
			})
		},
	}
}

func attrFormCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "form SUB_PROCESS_ID KEY",
		Short: "Show the editable form of an attribute",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), false, func(ctx context.Context, ws *app.Workspace) error {
				d, err := ws.Engine.AttributeForm(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(d)
			})
		},
	}
}

func namesCmd() *cobra.Command {
	n := &cobra.Command{Use: "names", Short: "Attribute name suggestions"}
	n.AddCommand(namesListCmd())
	n.AddCommand(namesSweepCmd())
	return n
}

func namesListCmd() *cobra.Command {
	var query, current string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Suggest attribute names",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), false, func(ctx context.Context, ws *app.Workspace) error {
				names, err := ws.Engine.Names.Lookup(ctx, query, current)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(names)
				}
				tw := newTable("Name", "Type")
				for _, n := range names {
					tw.AppendRow(table.Row{n.Name, n.Type})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "partial name")
	cmd.Flags().StringVar(&current, "current", "", "name being edited, excluded from results")
	return cmd
}

func namesSweepCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove names no sub-process uses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), false, func(ctx context.Context, ws *app.Workspace) error {
				removed, err := ws.Engine.Names.Sweep(ctx, dryRun)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(removed)
				}
				verb := "removed"
				if dryRun {
					verb = "would remove"
				}
				fmt.Printf("%s %d name(s)\n", verb, len(removed))
				for _, name := range removed {
					fmt.Println("  " + name)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without deleting")
	return cmd
}
