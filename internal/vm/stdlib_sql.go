package vm

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/fizzlang/fizz/internal/types"
)

// The Sql module wraps database/sql over the embedded sqlite driver.
// Connections live on the script heap as resources, so one dropped by the
// script is closed by the next sweep; Sql.close releases it eagerly.
func installSql(reg *Registry) {
	conn := &types.TCon{Name: "sqlconn"}

	reg.RegisterTyped("Sql.open", 1, mono(arrow(types.Str, conn)),
		func(m *VM, args []Value) (Value, error) {
			dsn, err := strArg(m, "Sql.open", args[0])
			if err != nil {
				return Unit, err
			}
			db, err := sql.Open("sqlite", dsn)
			if err != nil {
				return Unit, fmt.Errorf("Sql.open: %w", err)
			}
			if err := db.Ping(); err != nil {
				db.Close()
				return Unit, fmt.Errorf("Sql.open: %w", err)
			}
			return m.heap.AllocResource("sqlconn", db, db.Close), nil
		})

	reg.RegisterTyped("Sql.exec", 2, mono(arrow(conn, types.Str, types.Int)),
		func(m *VM, args []Value) (Value, error) {
			db, err := sqlConnArg(m, "Sql.exec", args[0])
			if err != nil {
				return Unit, err
			}
			stmt, err := strArg(m, "Sql.exec", args[1])
			if err != nil {
				return Unit, err
			}
			res, err := db.Exec(stmt)
			if err != nil {
				return Unit, fmt.Errorf("Sql.exec: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				n = 0
			}
			return IntValue(n), nil
		})

	// Rows come back as string lists; every column is rendered as text.
	reg.RegisterTyped("Sql.query", 2, mono(arrow(conn, types.Str, list(list(types.Str)))),
		func(m *VM, args []Value) (Value, error) {
			db, err := sqlConnArg(m, "Sql.query", args[0])
			if err != nil {
				return Unit, err
			}
			stmt, err := strArg(m, "Sql.query", args[1])
			if err != nil {
				return Unit, err
			}
			rows, err := db.Query(stmt)
			if err != nil {
				return Unit, fmt.Errorf("Sql.query: %w", err)
			}
			defer rows.Close()
			cols, err := rows.Columns()
			if err != nil {
				return Unit, fmt.Errorf("Sql.query: %w", err)
			}
			var out []Value
			pinned := 0
			for rows.Next() {
				raw := make([]sql.NullString, len(cols))
				ptrs := make([]interface{}, len(cols))
				for i := range raw {
					ptrs[i] = &raw[i]
				}
				if err := rows.Scan(ptrs...); err != nil {
					m.heap.Unpin(pinned)
					return Unit, fmt.Errorf("Sql.query: %w", err)
				}
				cells := make([]Value, len(raw))
				rowPinned := 0
				for i, cell := range raw {
					cells[i] = m.heap.AllocStr(cell.String)
					m.heap.Pin(cells[i])
					rowPinned++
				}
				row := MakeListValue(m.heap, cells)
				m.heap.Unpin(rowPinned)
				m.heap.Pin(row)
				pinned++
				out = append(out, row)
			}
			if err := rows.Err(); err != nil {
				m.heap.Unpin(pinned)
				return Unit, fmt.Errorf("Sql.query: %w", err)
			}
			result := MakeListValue(m.heap, out)
			m.heap.Unpin(pinned)
			return result, nil
		})

	reg.RegisterTyped("Sql.close", 1, mono(arrow(conn, types.Unit)),
		func(m *VM, args []Value) (Value, error) {
			if args[0].Kind != ValResource {
				return Unit, fmt.Errorf("Sql.close: expected connection, got %s", args[0].Kind)
			}
			res := m.heap.Resource(args[0].Handle())
			if err := res.Finalize(); err != nil {
				return Unit, fmt.Errorf("Sql.close: %w", err)
			}
			return Unit, nil
		})
}

func sqlConnArg(m *VM, name string, v Value) (*sql.DB, error) {
	if v.Kind != ValResource {
		return nil, fmt.Errorf("%s: expected connection, got %s", name, v.Kind)
	}
	res := m.heap.Resource(v.Handle())
	db, ok := res.Data.(*sql.DB)
	if !ok || res.Finalized() {
		return nil, fmt.Errorf("%s: connection is closed", name)
	}
	return db, nil
}
