package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// csvColumns es el orden de columnas del export CSV.
var csvColumns = []string{
	"number", "date", "startdate", "duration", "action", "success",
	"serial", "token_type", "user", "realm", "resolver", "administrator",
	"action_detail", "info", "server", "client", "policies",
	"sig_check", "missing_line",
}

// WriteCSV escribe una línea por entrada, con cabecera opcional.
// Las filas se emiten a medida que se leen del backend.
func WriteCSV(ctx context.Context, l Ledger, p SearchParams, w io.Writer, header bool) error {
	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write(csvColumns); err != nil {
			return err
		}
	}
	n := 0
	err := l.SearchQuery(ctx, p, func(e Entry) error {
		if err := cw.Write(csvRecord(e)); err != nil {
			return err
		}
		n++
		if n%annotateBatch == 0 {
			cw.Flush()
			return cw.Error()
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("audit: csv export: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

func csvRecord(e Entry) []string {
	return []string{
		strconv.FormatInt(e.ID, 10),
		e.Date.UTC().Format(time.RFC3339Nano),
		e.StartDate.UTC().Format(time.RFC3339Nano),
		e.Duration.String(),
		e.Action,
		strconv.FormatBool(e.Success),
		e.Serial,
		e.TokenType,
		e.User,
		e.Realm,
		e.Resolver,
		e.Administrator,
		e.ActionDetail,
		e.Info,
		e.Server,
		e.Client,
		e.Policies,
		e.SigCheck,
		e.MissingLine,
	}
}

// WriteJSON emite un array JSON incrementalmente: "[", un objeto por
// entrada separado por comas, "]". Un array vacío es "[]".
func WriteJSON(ctx context.Context, l Ledger, p SearchParams, w io.Writer) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return err
	}
	first := true
	err := l.SearchQuery(ctx, p, func(e Entry) error {
		b, err := json.Marshal(l.EntryToMap(e))
		if err != nil {
			return err
		}
		if !first {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}
		first = false
		_, err = w.Write(b)
		return err
	})
	if err != nil {
		return fmt.Errorf("audit: json export: %w", err)
	}
	_, err = io.WriteString(w, "]")
	return err
}
