package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"d365odata/pkg/dynamics"
)

// render writes result to w: JSON when it was requested or the mode is raw, a table otherwise.
// An empty result writes nothing.
func render(w io.Writer, result *dynamics.Result) error {
	if result.JSON != "" {
		_, err := fmt.Fprintln(w, result.JSON)
		return err
	}

	switch result.Mode {
	case dynamics.ModeRaw:
		var buf bytes.Buffer
		if err := json.Indent(&buf, result.Document, "", "  "); err != nil {
			return fmt.Errorf("cannot render raw document: %w", err)
		}
		buf.WriteByte('\n')
		_, err := buf.WriteTo(w)
		return err

	case dynamics.ModeEntityList:
		rows := make([]table.Row, 0, len(result.Entities))
		for _, e := range result.Entities {
			rows = append(rows, table.Row{e.Name, e.EntitySetName, e.IsReadOnly, e.LabelID})
		}
		renderTable(w, table.Row{"Name", "EntitySetName", "IsReadOnly", "LabelId"}, rows)

	case dynamics.ModeEntityNamesOnly:
		rows := make([]table.Row, 0, len(result.Names))
		for _, n := range result.Names {
			rows = append(rows, table.Row{n.DataEntityName, n.EntityName})
		}
		renderTable(w, table.Row{"DataEntityName", "EntityName"}, rows)

	case dynamics.ModeEntityKeys:
		rows := make([]table.Row, 0, len(result.Keys))
		for _, k := range result.Keys {
			rows = append(rows, table.Row{k.Name, k.EntitySetName, strings.Join(k.Keys, ", ")})
		}
		renderTable(w, table.Row{"Name", "EntitySetName", "Keys"}, rows)

	case dynamics.ModeEnumFlattened:
		rows := make([]table.Row, 0, len(result.Enums))
		for _, v := range result.Enums {
			rows = append(rows, table.Row{v.EnumName, v.EnumValueName, v.EnumIntValue, v.EnumValueLabelID})
		}
		renderTable(w, table.Row{"EnumName", "EnumValueName", "EnumIntValue", "EnumValueLabelId"}, rows)

	default:
		return fmt.Errorf("cannot render output mode %s", result.Mode)
	}
	return nil
}

func renderTable(w io.Writer, header table.Row, rows []table.Row) {
	if len(rows) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	t.AppendRows(rows)
	t.Render()
}
