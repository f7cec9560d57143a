package script

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	_ "modernc.org/sqlite"
)

// The sql module lets transform and filter scripts consult relational
// sources (HR databases, staging tables) during value computation.
func makeSQLModule(ctx context.Context) *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "sql",
		Members: starlark.StringDict{
			"open": starlark.NewBuiltin("sql.open", func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var driver, dsn string
				if err := starlark.UnpackArgs("sql.open", args, kwargs, "driver", &driver, "dsn", &dsn); err != nil {
					return nil, err
				}
				db, err := sql.Open(driver, dsn)
				if err != nil {
					return nil, err
				}
				return &sqlConn{ctx: ctx, db: db, driver: driver}, nil
			}),
		},
	}
}

type sqlConn struct {
	ctx    context.Context
	db     *sql.DB
	driver string
}

func (s *sqlConn) String() string        { return fmt.Sprintf("sql.Connection<%s>", s.driver) }
func (s *sqlConn) Type() string          { return "sql.Connection" }
func (s *sqlConn) Freeze()               {}
func (s *sqlConn) Truth() starlark.Bool  { return starlark.True }
func (s *sqlConn) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: sql.Connection") }

func (s *sqlConn) Attr(name string) (starlark.Value, error) {
	switch name {
	case "query":
		return starlark.NewBuiltin("query", s.query), nil
	case "exec":
		return starlark.NewBuiltin("exec", s.exec), nil
	case "close":
		return starlark.NewBuiltin("close", s.close), nil
	}
	return nil, nil
}

func (s *sqlConn) AttrNames() []string {
	return []string{"query", "exec", "close"}
}

func (s *sqlConn) query(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	query, queryArgs, err := unpackQuery("query", args, kwargs)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(s.ctx, query, queryArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var result []starlark.Value
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := starlark.NewDict(len(cols))
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			_ = row.SetKey(starlark.String(col), toStarlark(v))
		}
		result = append(result, row)
	}
	return starlark.NewList(result), rows.Err()
}

func (s *sqlConn) exec(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	query, queryArgs, err := unpackQuery("exec", args, kwargs)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(s.ctx, query, queryArgs...)
	if err != nil {
		return nil, err
	}
	affected, _ := res.RowsAffected()
	return starlark.MakeInt64(affected), nil
}

func (s *sqlConn) close(_ *starlark.Thread, _ *starlark.Builtin, _ starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
	return starlark.None, s.db.Close()
}

func unpackQuery(name string, args starlark.Tuple, _ []starlark.Tuple) (string, []any, error) {
	if len(args) == 0 {
		return "", nil, fmt.Errorf("%s: query string required", name)
	}
	query, ok := args[0].(starlark.String)
	if !ok {
		return "", nil, fmt.Errorf("%s: query must be a string", name)
	}
	out := make([]any, 0, len(args)-1)
	for _, a := range args[1:] {
		out = append(out, fromStarlark(a))
	}
	return string(query), out, nil
}
