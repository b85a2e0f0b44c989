package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/tokenguard/internal/app"
	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
)

func taskCmd(c *cli) *cobra.Command {
	root := &cobra.Command{Use: "task", Short: "Tareas periódicas"}

	var node string
	list := &cobra.Command{
		Use:   "list",
		Short: "Lista las tareas con su próxima ejecución por nodo",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withContainer(cmd, func(ctx context.Context, ct *app.Container) error {
				tasks, err := ct.Scheduler.List(ctx, repository.PeriodicTaskFilter{Node: node})
				if err != nil {
					return err
				}
				type row struct {
					ID       int64                `json:"id"`
					Name     string               `json:"name"`
					Active   bool                 `json:"active"`
					Interval string               `json:"interval"`
					Module   string               `json:"taskmodule"`
					NextRuns map[string]time.Time `json:"next_runs,omitempty"`
					Error    string               `json:"error,omitempty"`
				}
				rows := make([]row, 0, len(tasks))
				for i := range tasks {
					t := &tasks[i]
					r := row{ID: t.ID, Name: t.Name, Active: t.Active, Interval: t.Interval, Module: t.TaskModule}
					if next, err := ct.Scheduler.Next(t); err != nil {
						r.Error = err.Error()
					} else {
						r.NextRuns = next
					}
					rows = append(rows, r)
				}
				c.print(rows, func() {
					for _, r := range rows {
						fmt.Printf("%d\t%-20s\tactive=%t\t%q\t%s\n", r.ID, r.Name, r.Active, r.Interval, r.Module)
						nodes := make([]string, 0, len(r.NextRuns))
						for n := range r.NextRuns {
							nodes = append(nodes, n)
						}
						sort.Strings(nodes)
						for _, n := range nodes {
							fmt.Printf("\t  %s next %s\n", n, r.NextRuns[n].Format(time.RFC3339))
						}
						if r.Error != "" {
							fmt.Printf("\t  error: %s\n", r.Error)
						}
					}
				})
				return nil
			})
		},
	}
	list.Flags().StringVar(&node, "node", "", "sólo las tareas de este nodo")

	var runNode string
	run := &cobra.Command{
		Use:   "run ID",
		Short: "Ejecuta una tarea ahora en el nodo indicado",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("id inválido %q", args[0])
			}
			return c.withContainer(cmd, func(ctx context.Context, ct *app.Container) error {
				n := runNode
				if n == "" {
					n = ct.Cfg.App.Node
				}
				if err := ct.Runner.RunTask(ctx, id, n); err != nil {
					return err
				}
				c.print(map[string]any{"id": id, "node": n, "status": true}, func() {
					fmt.Printf("task %d ran on %s\n", id, n)
				})
				return nil
			})
		},
	}
	run.Flags().StringVar(&runNode, "node", "", "nodo (default app.node)")

	var dueNode string
	due := &cobra.Command{
		Use:   "run-due",
		Short: "Ejecuta una vez todas las tareas vencidas del nodo",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withContainer(cmd, func(ctx context.Context, ct *app.Container) error {
				n := dueNode
				if n == "" {
					n = ct.Cfg.App.Node
				}
				count, err := ct.Runner.RunDue(ctx, n, time.Now())
				c.print(map[string]any{"node": n, "ran": count}, func() {
					fmt.Printf("%d tasks ran on %s\n", count, n)
				})
				return err
			})
		},
	}
	due.Flags().StringVar(&dueNode, "node", "", "nodo (default app.node)")

	root.AddCommand(list, run, due)
	return root
}
