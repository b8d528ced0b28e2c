// Package datarecording stores simulation records in SQLite databases.
package datarecording

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/fatih/structs"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// DataRecorder buffers flat structs and writes them into tables.
type DataRecorder interface {
	// CreateTable creates a table whose columns are the exported fields of
	// sampleEntry.
	CreateTable(tableName string, sampleEntry any)

	// InsertData buffers an entry for a table created before.
	InsertData(tableName string, entry any)

	// ListTables returns the names of the tables created, sorted.
	ListTables() []string

	// Flush writes all the buffered entries into the database.
	Flush()

	// Close flushes and closes the database.
	Close() error
}

const defaultBatchSize = 100000

// NewDataRecorder creates a recorder that writes into a new SQLite file. The
// ".sqlite3" suffix is added when missing. An empty path picks a unique name.
func NewDataRecorder(path string) (DataRecorder, error) {
	if path == "" {
		path = "cohsim_" + xid.New().String()
	}

	if !strings.HasSuffix(path, ".sqlite3") {
		path += ".sqlite3"
	}

	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("file %s already exists", path)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(os.Stderr, "Database created for recording: %s\n", path)

	w := NewDataRecorderWithDB(db).(*sqliteWriter)
	w.path = path

	return w, nil
}

// NewDataRecorderWithDB creates a recorder over an opened database.
func NewDataRecorderWithDB(db *sql.DB) DataRecorder {
	w := &sqliteWriter{
		db:        db,
		batchSize: defaultBatchSize,
		tables:    make(map[string]*table),
	}

	atexit.Register(func() { w.Flush() })

	return w
}

type table struct {
	structType reflect.Type
	insertSQL  string
	entries    []any
}

type sqliteWriter struct {
	db         *sql.DB
	path       string
	tables     map[string]*table
	batchSize  int
	entryCount int
	closed     bool
}

// columnType maps a field kind to a column declaration. Unsigned 64-bit
// fields get no type so the column has no affinity and can hold values above
// math.MaxInt64 as text.
func columnType(kind reflect.Kind) (string, bool) {
	switch kind {
	case reflect.Uint, reflect.Uint64, reflect.Uintptr:
		return "", true
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return "INTEGER", true
	case reflect.Float32, reflect.Float64:
		return "REAL", true
	case reflect.String:
		return "TEXT", true
	default:
		return "", false
	}
}

func (w *sqliteWriter) CreateTable(tableName string, sampleEntry any) {
	if _, exists := w.tables[tableName]; exists {
		panic(fmt.Sprintf("table %s already exists", tableName))
	}

	structType := reflect.TypeOf(sampleEntry)
	if structType.Kind() != reflect.Struct {
		panic(fmt.Sprintf("entry of table %s is not a struct", tableName))
	}

	names := structs.Names(sampleEntry)
	columns := make([]string, 0, len(names))
	placeholders := make([]string, 0, len(names))

	for _, name := range names {
		field, _ := structType.FieldByName(name)

		sqlType, ok := columnType(field.Type.Kind())
		if !ok {
			panic(fmt.Sprintf("field %s of table %s has unsupported type %s",
				name, tableName, field.Type))
		}

		columns = append(columns,
			strings.TrimSpace(fmt.Sprintf("%q %s", name, sqlType)))
		placeholders = append(placeholders, "?")
	}

	w.mustExecute(fmt.Sprintf("CREATE TABLE %q (\n\t%s\n);",
		tableName, strings.Join(columns, ",\n\t")))

	w.tables[tableName] = &table{
		structType: structType,
		insertSQL: fmt.Sprintf("INSERT INTO %q VALUES (%s)",
			tableName, strings.Join(placeholders, ", ")),
	}
}

func (w *sqliteWriter) InsertData(tableName string, entry any) {
	t, exists := w.tables[tableName]
	if !exists {
		panic(fmt.Sprintf("table %s does not exist", tableName))
	}

	if reflect.TypeOf(entry) != t.structType {
		panic(fmt.Sprintf("entry of type %T does not fit table %s",
			entry, tableName))
	}

	t.entries = append(t.entries, entry)

	w.entryCount++
	if w.entryCount >= w.batchSize {
		w.Flush()
	}
}

func (w *sqliteWriter) ListTables() []string {
	names := make([]string, 0, len(w.tables))
	for name := range w.tables {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func (w *sqliteWriter) Flush() {
	if w.entryCount == 0 || w.closed {
		return
	}

	tx, err := w.db.Begin()
	if err != nil {
		panic(err)
	}

	for _, name := range w.ListTables() {
		t := w.tables[name]
		if len(t.entries) == 0 {
			continue
		}

		stmt, err := tx.Prepare(t.insertSQL)
		if err != nil {
			rollbackAndPanic(tx, err)
		}

		for _, entry := range t.entries {
			if _, err := stmt.Exec(columnValues(entry)...); err != nil {
				stmt.Close()
				rollbackAndPanic(tx, fmt.Errorf("insert into %s: %w", name, err))
			}
		}

		stmt.Close()
		t.entries = nil
	}

	if err := tx.Commit(); err != nil {
		panic(err)
	}

	w.entryCount = 0
}

func rollbackAndPanic(tx *sql.Tx, err error) {
	if rbErr := tx.Rollback(); rbErr != nil {
		err = errors.Join(err, rbErr)
	}

	panic(err)
}

func columnValues(entry any) []any {
	values := structs.Values(entry)
	for i, v := range values {
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Uint, reflect.Uint64, reflect.Uintptr:
			values[i] = unsignedValue(rv.Uint())
		case reflect.Uint8, reflect.Uint16, reflect.Uint32:
			values[i] = int64(rv.Uint())
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32,
			reflect.Int64:
			values[i] = rv.Int()
		case reflect.Float32, reflect.Float64:
			values[i] = rv.Float()
		case reflect.String:
			values[i] = rv.String()
		case reflect.Bool:
			values[i] = rv.Bool()
		}
	}

	return values
}

// unsignedValue keeps values that fit an SQLite integer as integers. Larger
// ones become zero-padded text, which sorts after every integer and in
// numeric order among themselves.
func unsignedValue(u uint64) any {
	if u <= math.MaxInt64 {
		return int64(u)
	}

	return fmt.Sprintf("%020d", u)
}

func (w *sqliteWriter) Close() error {
	if w.closed {
		return nil
	}

	w.Flush()
	w.closed = true

	return w.db.Close()
}

func (w *sqliteWriter) mustExecute(query string) sql.Result {
	res, err := w.db.Exec(query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to execute: %s\n", query)
		panic(err)
	}

	return res
}
