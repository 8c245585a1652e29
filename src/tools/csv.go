package tools

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	agent "github.com/Protocol-Lattice/go-dbagent"
	"github.com/Protocol-Lattice/go-dbagent/src/dsn"
)

const (
	ListCSVFilesTool  = "list_csv_files"
	ReadCSVFileTool   = "read_csv_file"
	GetColumnsTool    = "get_columns"
	QueryCSVFileTool  = "query_csv_file"
	defaultCSVPreview = 20
)

// CSVInstructions steer the model through the CSV tools in the order they
// work best.
var CSVInstructions = []string{
	"First always get the list of files",
	"Then check the columns in the file",
	"Then run the query to answer the question",
	"Always wrap column names with double quotes if they contain spaces or special characters",
	`Remember to escape the quotes in the JSON string (use \")`,
	"Use single quotes for string values",
}

// CSVToolkit exposes a fixed set of CSV files. Each file is addressed by its
// name without extension and becomes a table of the same name when queried.
type CSVToolkit struct {
	files map[string]string
	order []string

	mu     sync.Mutex
	db     *sql.DB
	loaded map[string]bool
}

// NewCSVToolkit registers paths. Files must exist; their names must be
// unique once the extension is dropped.
func NewCSVToolkit(paths ...string) (*CSVToolkit, error) {
	if len(paths) == 0 {
		return nil, errors.New("at least one csv file is required")
	}
	k := &CSVToolkit{files: make(map[string]string), loaded: make(map[string]bool)}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("csv file %s: %w", p, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("csv file %s is a directory", p)
		}
		name := csvName(p)
		key := strings.ToLower(name)
		if _, dup := k.files[key]; dup {
			return nil, fmt.Errorf("csv file %s already registered", name)
		}
		k.files[key] = p
		k.order = append(k.order, name)
	}
	return k, nil
}

func csvName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Names returns the registered file names in registration order.
func (k *CSVToolkit) Names() []string {
	return append([]string(nil), k.order...)
}

func (k *CSVToolkit) resolve(name string) (string, string, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.TrimSuffix(key, ".csv")
	path, ok := k.files[key]
	if !ok {
		return "", "", fmt.Errorf("csv file %q not found, available: %s", name, strings.Join(k.order, ", "))
	}
	return csvName(path), path, nil
}

// Read returns the header and up to limit data rows of a file.
func (k *CSVToolkit) Read(name string, limit int) (QueryResult, error) {
	_, path, err := k.resolve(name)
	if err != nil {
		return QueryResult{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return QueryResult{}, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return QueryResult{}, fmt.Errorf("read header of %s: %w", name, err)
	}
	res := QueryResult{Columns: header, Rows: [][]any{}}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return QueryResult{}, fmt.Errorf("read %s: %w", name, err)
		}
		if limit > 0 && len(res.Rows) >= limit {
			res.Truncated = true
			break
		}
		row := make([]any, len(rec))
		for i, v := range rec {
			row[i] = v
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

// Columns returns the header row of a file.
func (k *CSVToolkit) Columns(name string) ([]string, error) {
	res, err := k.Read(name, 1)
	if err != nil {
		return nil, err
	}
	return res.Columns, nil
}

// Query loads the file into an in-memory SQLite table named after it and
// runs stmt there.
func (k *CSVToolkit) Query(ctx context.Context, name, stmt string) (QueryResult, error) {
	if strings.TrimSpace(stmt) == "" {
		return QueryResult{}, errors.New("sql_query is empty")
	}
	table, path, err := k.resolve(name)
	if err != nil {
		return QueryResult{}, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.db == nil {
		db, err := openDatabase(dsn.Info{Dialect: dsn.SQLite, Conn: "sqlite://"})
		if err != nil {
			return QueryResult{}, err
		}
		k.db = db
	}
	if !k.loaded[table] {
		if err := loadCSV(ctx, k.db, table, path); err != nil {
			return QueryResult{}, err
		}
		k.loaded[table] = true
	}
	q := &sqlQuerier{db: k.db}
	return q.query(ctx, maxQueryRows, stmt)
}

// Close drops the in-memory tables.
func (k *CSVToolkit) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.db == nil {
		return nil
	}
	err := k.db.Close()
	k.db = nil
	k.loaded = make(map[string]bool)
	return err
}

func loadCSV(ctx context.Context, db *sql.DB, table, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read header of %s: %w", table, err)
	}

	cols := make([]string, len(header))
	marks := make([]string, len(header))
	for i, h := range header {
		if strings.TrimSpace(h) == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		cols[i] = quoteIdent(h)
		marks[i] = "?"
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(cols, ", "))); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(table), strings.Join(marks, ", ")))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", table, err)
		}
		args := make([]any, len(header))
		for i := range args {
			if i < len(rec) {
				args[i] = inferValue(rec[i])
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("load %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// inferValue stores numbers as numbers so comparisons and aggregates work.
func inferValue(s string) any {
	t := strings.TrimSpace(s)
	if t == "" {
		return nil
	}
	if i, err := strconv.ParseInt(t, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(t, 64); err == nil {
		return f
	}
	return s
}

// Tools returns the four CSV tools.
func (k *CSVToolkit) Tools() []agent.Tool {
	return []agent.Tool{
		newTool(agent.ToolSpec{
			Name:        ListCSVFilesTool,
			Description: "List the CSV files that can be read and queried.",
			InputSchema: objectSchema(nil, map[string]any{}),
		}, func(context.Context, map[string]any) (string, error) {
			return toJSON(k.Names())
		}),
		newTool(agent.ToolSpec{
			Name:        ReadCSVFileTool,
			Description: "Read rows from a CSV file.",
			InputSchema: objectSchema([]string{"csv_name"}, map[string]any{
				"csv_name":  prop("string", "Name of the CSV file without extension."),
				"row_limit": prop("integer", fmt.Sprintf("Maximum rows to return. Defaults to %d.", defaultCSVPreview)),
			}),
		}, func(_ context.Context, args map[string]any) (string, error) {
			name, err := stringArg(args, "csv_name")
			if err != nil {
				return "", err
			}
			limit, err := intArg(args, "row_limit", defaultCSVPreview)
			if err != nil {
				return "", err
			}
			res, err := k.Read(name, limit)
			if err != nil {
				return "", err
			}
			return toJSON(res)
		}),
		newTool(agent.ToolSpec{
			Name:        GetColumnsTool,
			Description: "Get the column names of a CSV file.",
			InputSchema: objectSchema([]string{"csv_name"}, map[string]any{
				"csv_name": prop("string", "Name of the CSV file without extension."),
			}),
		}, func(_ context.Context, args map[string]any) (string, error) {
			name, err := stringArg(args, "csv_name")
			if err != nil {
				return "", err
			}
			cols, err := k.Columns(name)
			if err != nil {
				return "", err
			}
			return toJSON(cols)
		}),
		newTool(agent.ToolSpec{
			Name:        QueryCSVFileTool,
			Description: "Run a SQLite SQL query against a CSV file. The table name is the CSV file name.",
			InputSchema: objectSchema([]string{"csv_name", "sql_query"}, map[string]any{
				"csv_name":  prop("string", "Name of the CSV file without extension."),
				"sql_query": prop("string", "SQL query using the file name as the table name."),
			}),
		}, func(ctx context.Context, args map[string]any) (string, error) {
			name, err := stringArg(args, "csv_name")
			if err != nil {
				return "", err
			}
			stmt, err := stringArg(args, "sql_query")
			if err != nil {
				return "", err
			}
			res, err := k.Query(ctx, name, stmt)
			if err != nil {
				return "", err
			}
			return toJSON(res)
		}),
	}
}
