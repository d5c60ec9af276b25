package worker

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/dictdb/internal/storage"
)

const (
	// DefaultQueueSize bounds the command queue.
	DefaultQueueSize = 2000

	// DefaultSubmitTimeout bounds the blocking enqueue step.
	DefaultSubmitTimeout = 5 * time.Second
)

var (
	// ErrClosed is returned by Execute once shutdown has begun. The
	// connection is never touched on this path.
	ErrClosed = errors.New("worker: executor closed")

	// ErrQueueFull is returned when a submission cannot be enqueued within
	// the submit timeout.
	ErrQueueFull = errors.New("worker: command queue full")
)

// Result carries the outcome of a query command. Execution errors are
// delivered in-band through Err rather than as Execute's error: producers
// must inspect the result to detect them.
type Result struct {
	Rows [][]any
	Err  error
}

// command is one submission: created per Execute call, consumed exactly
// once by the worker.
type command struct {
	token uuid.UUID
	stmt  string
	args  []any
}

// Option configures an Executor.
type Option func(*Executor)

// WithQueueSize sets the command queue capacity.
func WithQueueSize(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.queueSize = n
		}
	}
}

// WithSubmitTimeout sets how long Execute blocks waiting for queue capacity.
func WithSubmitTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.submitTimeout = d
		}
	}
}

// WithBatchSize sets the commit batch threshold. Defaults to the queue
// capacity.
func WithBatchSize(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithTrace installs a statement trace hook.
func WithTrace(fn storage.TraceFunc) Option {
	return func(e *Executor) {
		e.trace = fn
	}
}

// Executor owns one SQLite connection inside a dedicated worker goroutine.
// Construct with New; the worker starts immediately and remains the sole
// owner of the connection until Close.
type Executor struct {
	db   *sql.DB
	path string

	queueSize     int
	batchSize     int
	submitTimeout time.Duration
	trace         storage.TraceFunc

	queue   chan command
	results *xsync.MapOf[uuid.UUID, chan *Result]

	exitToken uuid.UUID
	closing   atomic.Bool
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}

	// worker-local transaction state; touched only by the worker goroutine.
	inTx bool

	executed  *metrics.Counter
	commits   *metrics.Counter
	queryErrs *metrics.Counter
	execErrs  *metrics.Counter
}

// New opens the executor's own connection to the database file and starts
// the worker loop.
func New(path string, opts ...Option) (*Executor, error) {
	e := &Executor{
		path:          path,
		queueSize:     DefaultQueueSize,
		submitTimeout: DefaultSubmitTimeout,
		exitToken:     uuid.New(),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.batchSize == 0 {
		e.batchSize = e.queueSize
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_busy_timeout=5000")
	if err != nil {
		return nil, storage.NewConnection("failed to open database", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, storage.NewConnection("failed to connect to database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	e.db = db
	e.queue = make(chan command, e.queueSize)
	e.results = xsync.NewMapOf[uuid.UUID, chan *Result]()

	e.executed = metrics.GetOrCreateCounter(fmt.Sprintf(`dictdb_worker_executed_total{db=%q}`, path))
	e.commits = metrics.GetOrCreateCounter(fmt.Sprintf(`dictdb_worker_commits_total{db=%q}`, path))
	e.queryErrs = metrics.GetOrCreateCounter(fmt.Sprintf(`dictdb_worker_query_errors_total{db=%q}`, path))
	e.execErrs = metrics.GetOrCreateCounter(fmt.Sprintf(`dictdb_worker_exec_errors_total{db=%q}`, path))

	go e.run()
	return e, nil
}

// Execute submits a statement for execution by the worker.
//
// Mutations return (nil, nil) as soon as the command is queued; their
// execution outcome is logged, never returned. Queries block until the
// worker delivers their result; execution errors arrive in-band via
// Result.Err. Once Close has begun, Execute fails with ErrClosed without
// touching the queue or the connection.
func (e *Executor) Execute(stmt string, args ...any) (*Result, error) {
	if e.closing.Load() {
		slog.Debug("executor closing, not running", "stmt", stmt)
		return nil, ErrClosed
	}

	cmd := command{token: uuid.New(), stmt: stmt, args: args}

	if !isQuery(stmt) {
		select {
		case e.queue <- cmd:
			return nil, nil
		case <-time.After(e.submitTimeout):
			return nil, ErrQueueFull
		}
	}

	// Register the one-shot result channel before enqueuing so the worker
	// can never resolve the token ahead of the registration.
	ch := make(chan *Result, 1)
	e.results.Store(cmd.token, ch)
	select {
	case e.queue <- cmd:
	case <-time.After(e.submitTimeout):
		e.results.Delete(cmd.token)
		return nil, ErrQueueFull
	}

	// A submission that slips past the closing check while Close drains can
	// land behind the worker's final empty-queue observation and never run.
	// The done channel unblocks that producer; winning the LoadAndDelete race
	// proves the worker never picked the command up.
	select {
	case res := <-ch:
		return res, nil
	case <-e.done:
		if _, ok := e.results.LoadAndDelete(cmd.token); ok {
			return nil, ErrClosed
		}
		return <-ch, nil
	}
}

// QueueLen returns the number of commands waiting in the queue.
func (e *Executor) QueueLen() int {
	return len(e.queue)
}

// Close begins shutdown: commands already queued are drained and executed,
// the final batch is committed, and the connection is closed before Close
// returns. Safe to call more than once.
func (e *Executor) Close() error {
	e.closeOnce.Do(func() {
		e.closing.Store(true)
		select {
		case e.queue <- command{token: e.exitToken}:
		case <-time.After(e.submitTimeout):
			e.closeErr = ErrQueueFull
			return
		}
		<-e.done
	})
	return e.closeErr
}

// run is the worker loop: the sole owner of the connection. Commands are
// dequeued strictly in FIFO order; the sentinel token ends the loop only
// once the queue has drained.
func (e *Executor) run() {
	slog.Debug("worker started", "db", e.path)
	executed := 0

	for cmd := range e.queue {
		if cmd.token != e.exitToken {
			e.runCommand(cmd)
			executed++
			// Let the batch grow a bit before committing to disk.
			if len(e.queue) == 0 || executed >= e.batchSize {
				e.commit()
				executed = 0
			}
		}
		if e.closing.Load() && len(e.queue) == 0 {
			e.commit()
			if err := e.db.Close(); err != nil {
				slog.Error("worker failed to close connection", "db", e.path, "error", err)
			}
			slog.Debug("worker stopped", "db", e.path)
			close(e.done)
			return
		}
	}
}

// runCommand executes one command against the worker's connection.
func (e *Executor) runCommand(cmd command) {
	e.traceStmt(cmd.stmt)
	e.executed.Inc()

	if isQuery(cmd.stmt) {
		rows, err := e.queryRows(cmd.stmt, cmd.args)
		res := &Result{Rows: rows}
		if err != nil {
			res.Err = storage.NewQueryExecution(cmd.stmt, err)
			e.queryErrs.Inc()
			slog.Error("query returned error", "stmt", cmd.stmt, "error", err)
		}
		if ch, ok := e.results.LoadAndDelete(cmd.token); ok {
			ch <- res
		}
		return
	}

	e.ensureTx()
	if _, err := e.db.Exec(cmd.stmt, cmd.args...); err != nil {
		// Fire-and-forget: mutation errors never reach a producer.
		e.execErrs.Inc()
		slog.Error("statement returned error", "stmt", cmd.stmt, "error", err)
	}
}

// queryRows materializes every row of a query into a generic matrix.
func (e *Executor) queryRows(stmt string, args []any) ([][]any, error) {
	rows, err := e.db.Query(stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}

// ensureTx lazily opens the batch transaction. Worker-goroutine only.
func (e *Executor) ensureTx() {
	if e.inTx {
		return
	}
	if _, err := e.db.Exec("BEGIN;"); err != nil {
		slog.Error("worker failed to begin transaction", "db", e.path, "error", err)
		return
	}
	e.inTx = true
}

// commit flushes the current batch. Worker-goroutine only.
func (e *Executor) commit() {
	if !e.inTx {
		return
	}
	e.inTx = false
	if _, err := e.db.Exec("COMMIT;"); err != nil {
		slog.Error("worker failed to commit batch", "db", e.path, "error", err)
		return
	}
	e.commits.Inc()
	slog.Debug("worker committed batch", "db", e.path)
}

func (e *Executor) traceStmt(stmt string) {
	if e.trace != nil {
		e.trace(os.Getpid(), "worker", stmt)
	}
}

// WriteMetrics writes the process's metric set in Prometheus exposition
// format, including the per-database executor counters
// (dictdb_worker_executed_total, dictdb_worker_commits_total,
// dictdb_worker_query_errors_total, dictdb_worker_exec_errors_total).
func WriteMetrics(w io.Writer) {
	metrics.WritePrometheus(w, false)
}

// isQuery classifies a statement by its leading keyword: only SELECT
// produces rows, everything else is treated as a mutation.
func isQuery(stmt string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(stmt)), "select")
}
