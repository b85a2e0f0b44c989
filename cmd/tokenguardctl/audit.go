package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/tokenguard/internal/app"
	"github.com/dropDatabas3/tokenguard/internal/audit"
	"github.com/dropDatabas3/tokenguard/internal/scheduler"
	"github.com/dropDatabas3/tokenguard/internal/util/atomicwrite"
)

type searchFlags struct {
	filter    map[string]string
	success   string
	timelimit string
	asc       bool
}

func (f *searchFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringToStringVar(&f.filter, "filter", nil, "columna=valor; '*' es comodín (repetible)")
	cmd.Flags().StringVar(&f.success, "success", "", "true|false")
	cmd.Flags().StringVar(&f.timelimit, "timelimit", "", "sólo las entradas de los últimos N (ej. 2h, 7d)")
	cmd.Flags().BoolVar(&f.asc, "asc", false, "orden ascendente por id")
}

func (f *searchFlags) params() (audit.SearchParams, error) {
	p := audit.SearchParams{Filter: f.filter, SortDesc: !f.asc}
	switch f.success {
	case "":
	case "true", "false":
		b := f.success == "true"
		p.Success = &b
	default:
		return p, fmt.Errorf("--success debe ser true|false")
	}
	if f.timelimit != "" {
		d, err := scheduler.ParseAge(f.timelimit)
		if err != nil {
			return p, fmt.Errorf("--timelimit: %w", err)
		}
		p.TimeLimit = d
	}
	return p, nil
}

func readable(ct *app.Container) (audit.Ledger, error) {
	l := ct.Ledgers.New()
	if !l.IsReadable() {
		return nil, fmt.Errorf("audit read module %q is not readable", ct.Cfg.Audit.ReadModule)
	}
	return l, nil
}

func auditCmd(c *cli) *cobra.Command {
	root := &cobra.Command{Use: "audit", Short: "Consulta y mantenimiento del log de auditoría"}

	var (
		sf       searchFlags
		page     int
		pageSize int
	)
	search := &cobra.Command{
		Use:   "search",
		Short: "Busca entradas paginadas",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := sf.params()
			if err != nil {
				return err
			}
			p.Page, p.PageSize = page, pageSize
			return c.withContainer(cmd, func(ctx context.Context, ct *app.Container) error {
				l, err := readable(ct)
				if err != nil {
					return err
				}
				res, err := l.Search(ctx, p)
				if err != nil {
					return err
				}
				rows := make([]map[string]any, 0, len(res.Entries))
				for _, e := range res.Entries {
					rows = append(rows, l.EntryToMap(e))
				}
				c.print(map[string]any{"auditdata": rows, "count": res.Count, "current": res.Current}, func() {
					for _, e := range res.Entries {
						fmt.Printf("%d\t%s\t%-5t\t%s\t%s\tsig=%s\tline=%s\n",
							e.ID, e.Date.Format(time.RFC3339), e.Success, e.Action, e.Serial, e.SigCheck, e.MissingLine)
					}
					fmt.Printf("page %d, %d entries total\n", res.Current, res.Count)
				})
				return nil
			})
		},
	}
	sf.bind(search)
	search.Flags().IntVar(&page, "page", 1, "página (desde 1)")
	search.Flags().IntVar(&pageSize, "page-size", 15, "tamaño de página")

	var (
		ef     searchFlags
		format string
		output string
	)
	export := &cobra.Command{
		Use:   "export",
		Short: "Exporta todas las entradas que cumplen el filtro a CSV o JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := ef.params()
			if err != nil {
				return err
			}
			if format != "csv" && format != "json" {
				return fmt.Errorf("--format debe ser csv|json")
			}
			return c.withContainer(cmd, func(ctx context.Context, ct *app.Container) error {
				l, err := readable(ct)
				if err != nil {
					return err
				}
				var buf bytes.Buffer
				var w io.Writer = os.Stdout
				if output != "" {
					w = &buf
				}
				if format == "csv" {
					err = audit.WriteCSV(ctx, l, p, w, true)
				} else {
					err = audit.WriteJSON(ctx, l, p, w)
				}
				if err != nil || output == "" {
					return err
				}
				return atomicwrite.WriteFile(output, buf.Bytes(), 0o600)
			})
		},
	}
	ef.bind(export)
	export.Flags().StringVar(&format, "format", "csv", "csv|json")
	export.Flags().StringVarP(&output, "output", "o", "", "archivo destino (default stdout)")

	var vf searchFlags
	verify := &cobra.Command{
		Use:   "verify",
		Short: "Verifica firmas y continuidad de ids de todas las entradas",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := vf.params()
			if err != nil {
				return err
			}
			p.SortDesc = false
			return c.withContainer(cmd, func(ctx context.Context, ct *app.Container) error {
				if ct.Signer == nil {
					return fmt.Errorf("no audit key configured: set audit.public_key_file")
				}
				l, err := readable(ct)
				if err != nil {
					return err
				}
				var total, badSig, gaps int
				var failed []int64
				err = l.SearchQuery(ctx, p, func(e audit.Entry) error {
					total++
					bad := false
					if e.SigCheck != audit.CheckOK {
						badSig++
						bad = true
					}
					if e.MissingLine != audit.CheckOK {
						gaps++
						bad = true
					}
					if bad {
						failed = append(failed, e.ID)
					}
					return nil
				})
				if err != nil {
					return err
				}
				res := map[string]any{"total": total, "bad_signature": badSig, "missing_line": gaps, "failed_ids": failed}
				c.print(res, func() {
					fmt.Printf("checked %d entries: %d bad signatures, %d missing neighbours\n", total, badSig, gaps)
					if len(failed) > 0 {
						fmt.Printf("failed ids: %v\n", failed)
					}
				})
				if badSig > 0 {
					return fmt.Errorf("audit log has %d entries with invalid signature", badSig)
				}
				return nil
			})
		},
	}
	vf.bind(verify)

	var age string
	rotate := &cobra.Command{
		Use:   "rotate",
		Short: "Borra entradas más viejas que --age",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := scheduler.ParseAge(age)
			if err != nil {
				return fmt.Errorf("--age: %w", err)
			}
			return c.withContainer(cmd, func(ctx context.Context, ct *app.Container) error {
				n, err := ct.Ledgers.Rotate(ctx, time.Now().Add(-d))
				if err != nil {
					return err
				}
				c.print(map[string]int64{"deleted": n}, func() { fmt.Printf("deleted %d entries\n", n) })
				return nil
			})
		},
	}
	rotate.Flags().StringVar(&age, "age", "180d", "antigüedad máxima a conservar")

	root.AddCommand(search, export, verify, rotate)
	return root
}
