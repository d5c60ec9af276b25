package storage

import (
	"database/sql"
	"fmt"
	"os"
	"regexp"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// TraceFunc receives every executed statement together with the process id
// and the id of the execution context that issued it. Used for external
// debug logging; it must not call back into the store.
type TraceFunc func(pid int, worker, stmt string)

// KeyType selects the column affinity of the key column.
type KeyType string

const (
	// KeyTypeText stores keys with TEXT affinity (the default).
	KeyTypeText KeyType = "TEXT"
	// KeyTypeInteger stores keys with INTEGER affinity; textual keys that
	// look like integers are coerced by the backing engine.
	KeyTypeInteger KeyType = "INTEGER"
	// KeyTypeNumeric stores keys with NUMERIC affinity (e.g. timestamps).
	KeyTypeNumeric KeyType = "NUMERIC"
)

// Options configures a Store.
type Options struct {
	// Path is the backing database file. Created if absent, unless ReadOnly.
	Path string

	// Namespace names the keyed collection inside the database file.
	// Restricted to [A-Za-z0-9_]+ since it is interpolated into structural
	// statements.
	Namespace string

	// ReadOnly opens the store without write access. Opening a namespace
	// that does not exist read-only is an error.
	ReadOnly bool

	// Expires enables the one-time expiry sweep at initialization: entries
	// not updated within this duration are purged. Zero disables the sweep.
	Expires time.Duration

	// KeyType is the key column affinity hint. Defaults to KeyTypeText.
	KeyType KeyType

	// Trace, when set, is invoked for every executed statement.
	Trace TraceFunc
}

// Store provides dict-like CRUD over one namespace. See the package
// documentation for the concurrency and transaction model.
type Store struct {
	db        *sql.DB
	path      string
	namespace string
	table     string
	readOnly  bool
	expires   time.Duration
	trace     TraceFunc

	// inTx tracks the manual BEGIN EXCLUSIVE ... COMMIT window.
	// inScope suspends implicit per-call transaction handling.
	inTx    bool
	inScope bool
}

var namespaceRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Open creates or opens the namespace table inside the backing database
// file. If ReadOnly is set and either the file or the namespace table is
// missing, Open fails with a STORAGE_NOT_FOUND error. Otherwise the table
// is created if absent and, when Expires is positive, stale entries are
// swept exactly once.
func Open(opts Options) (*Store, error) {
	if !namespaceRe.MatchString(opts.Namespace) {
		return nil, NewInvalidNamespace(opts.Namespace)
	}

	keyType := opts.KeyType
	switch keyType {
	case "":
		keyType = KeyTypeText
	case KeyTypeText, KeyTypeInteger, KeyTypeNumeric:
	default:
		return nil, NewConnection(fmt.Sprintf("unsupported key type %q", keyType), nil)
	}

	if opts.ReadOnly {
		if _, err := os.Stat(opts.Path); err != nil {
			return nil, NewStorageNotFound(opts.Namespace,
				fmt.Sprintf("database %q not found", opts.Path))
		}
	}

	dsn := "file:" + opts.Path + "?_busy_timeout=60000"
	if opts.ReadOnly {
		dsn += "&mode=ro"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, NewConnection("failed to open database", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewConnection("failed to connect to database", err)
	}

	// One exclusive connection: the store's transaction discipline relies
	// on every statement reaching the same underlying connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{
		db:        db,
		path:      opts.Path,
		namespace: opts.Namespace,
		table:     "tb_" + opts.Namespace,
		readOnly:  opts.ReadOnly,
		expires:   opts.Expires,
		trace:     opts.Trace,
	}

	if err := s.initialize(string(keyType)); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initialize verifies or creates the namespace table and runs the one-time
// expiry sweep for writable stores.
func (s *Store) initialize(keyType string) error {
	var name string
	err := s.queryRow(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?;",
		s.table).Scan(&name)
	missing := err == sql.ErrNoRows
	if err != nil && !missing {
		return NewConnection("failed to inspect schema", err)
	}

	if s.readOnly {
		if missing {
			return NewStorageNotFound(s.namespace,
				fmt.Sprintf("namespace %q not found in database %q", s.namespace, s.path))
		}
		return nil
	}

	if err := s.begin(); err != nil {
		return err
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s ("+
		"key %s NOT NULL PRIMARY KEY, "+
		"value TEXT NOT NULL, "+
		"inserted INTEGER NOT NULL, "+
		"updated INTEGER NOT NULL);", s.table, keyType)
	if _, err := s.exec(ddl); err != nil {
		s.rollback()
		return NewConnection("failed to create namespace table", err)
	}
	if s.expires > 0 {
		sweep := fmt.Sprintf("DELETE FROM %s WHERE updated + ? < ?;", s.table)
		if _, err := s.exec(sweep, int64(s.expires.Seconds()), now()); err != nil {
			s.rollback()
			return NewConnection("failed to sweep expired entries", err)
		}
	}
	return s.commit()
}

// Scope composes multiple operations into one atomic unit. The implicit
// per-call commit is suspended while fn runs; a nil return commits, any
// error rolls back and is returned unchanged. Scopes do not nest.
func (s *Store) Scope(fn func(*Store) error) error {
	if err := s.begin(); err != nil {
		return err
	}
	s.inScope = true
	err := fn(s)
	s.inScope = false
	if err != nil {
		s.rollback()
		return err
	}
	return s.commit()
}

// Close releases the backing connection. A pending transaction is rolled
// back first.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	s.inScope = false
	s.rollback()
	return s.db.Close()
}

// ReadOnly reports whether the store rejects mutating operations.
func (s *Store) ReadOnly() bool {
	return s.readOnly
}

// Namespace returns the namespace this store was opened on.
func (s *Store) Namespace() string {
	return s.namespace
}

// String returns a diagnostic description of the store.
func (s *Store) String() string {
	n, _ := s.Count()
	return fmt.Sprintf("Store(database=%q, namespace=%q, read_only=%t, expires=%s, keys=%d)",
		s.path, s.namespace, s.readOnly, s.expires, n)
}

func (s *Store) checkWritable() error {
	if s.readOnly {
		return NewReadOnly(s.namespace)
	}
	return nil
}

// begin opens the exclusive write window. A no-op inside a Scope or when a
// transaction is already pending.
func (s *Store) begin() error {
	if s.inScope || s.inTx {
		return nil
	}
	if _, err := s.exec("BEGIN EXCLUSIVE;"); err != nil {
		return NewConnection("failed to begin transaction", err)
	}
	s.inTx = true
	return nil
}

func (s *Store) commit() error {
	if s.inScope || !s.inTx {
		return nil
	}
	s.inTx = false
	if _, err := s.exec("COMMIT;"); err != nil {
		return NewConnection("failed to commit transaction", err)
	}
	return nil
}

// rollback abandons the pending transaction. Errors are ignored: rollback
// runs on paths that are already failing.
func (s *Store) rollback() {
	if s.inScope || !s.inTx {
		return
	}
	s.inTx = false
	_, _ = s.exec("ROLLBACK;")
}

func (s *Store) exec(stmt string, args ...any) (sql.Result, error) {
	s.traceStmt(stmt)
	return s.db.Exec(stmt, args...)
}

func (s *Store) query(stmt string, args ...any) (*sql.Rows, error) {
	s.traceStmt(stmt)
	return s.db.Query(stmt, args...)
}

func (s *Store) queryRow(stmt string, args ...any) *sql.Row {
	s.traceStmt(stmt)
	return s.db.QueryRow(stmt, args...)
}

func (s *Store) traceStmt(stmt string) {
	if s.trace != nil {
		s.trace(os.Getpid(), "storage/"+s.namespace, stmt)
	}
}

// now returns the current time as epoch seconds, the storage resolution of
// the inserted and updated columns.
func now() int64 {
	return time.Now().Unix()
}
