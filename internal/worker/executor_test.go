package worker

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dictdb/internal/storage"
)

// asString normalizes the driver's TEXT representation, which may scan as
// either string or []byte.
func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func newTestExecutor(t *testing.T, opts ...Option) (*Executor, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	e, err := New(path, opts...)
	require.NoError(t, err, "New() should succeed")
	t.Cleanup(func() { _ = e.Close() })
	return e, path
}

func mustExec(t *testing.T, e *Executor, stmt string, args ...any) {
	t.Helper()
	res, err := e.Execute(stmt, args...)
	require.NoError(t, err)
	require.Nil(t, res, "mutation should not produce a result")
}

func TestExecutor_MutationThenQuery(t *testing.T) {
	e, _ := newTestExecutor(t)

	mustExec(t, e, "CREATE TABLE pets (name TEXT PRIMARY KEY, legs INTEGER);")
	mustExec(t, e, "INSERT INTO pets (name, legs) VALUES (?, ?);", "spider", 8)
	mustExec(t, e, "INSERT INTO pets (name, legs) VALUES (?, ?);", "dog", 4)

	// FIFO ordering: the query observes every mutation enqueued before it,
	// committed or not.
	res, err := e.Execute("SELECT name, legs FROM pets ORDER BY name;")
	require.NoError(t, err)
	require.NotNil(t, res)
	require.NoError(t, res.Err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "dog", asString(res.Rows[0][0]))
	assert.EqualValues(t, 4, res.Rows[0][1])
	assert.Equal(t, "spider", asString(res.Rows[1][0]))
}

func TestExecutor_ConcurrentProducers(t *testing.T) {
	const producers = 10
	const perProducer = 100

	e, path := newTestExecutor(t)
	mustExec(t, e, "CREATE TABLE counters (id TEXT PRIMARY KEY);")

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_, err := e.Execute("INSERT INTO counters (id) VALUES (?);",
					fmt.Sprintf("p%d-%d", p, i))
				assert.NoError(t, err)
			}
		}(p)
	}
	wg.Wait()

	require.NoError(t, e.Close())

	// Every mutation is reflected after a full drain.
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow("SELECT count(1) FROM counters;").Scan(&n))
	assert.Equal(t, producers*perProducer, n)
}

func TestExecutor_QueryErrorDeliveredInBand(t *testing.T) {
	e, _ := newTestExecutor(t)

	res, err := e.Execute("SELECT * FROM no_such_table;")
	require.NoError(t, err, "submission itself should succeed")
	require.NotNil(t, res)
	require.Error(t, res.Err)
	assert.True(t, storage.IsQueryExecution(res.Err))
}

func TestExecutor_MutationErrorSwallowed(t *testing.T) {
	e, _ := newTestExecutor(t)

	// Fire-and-forget: the producer never sees the failure.
	res, err := e.Execute("INSERT INTO no_such_table VALUES (1);")
	require.NoError(t, err)
	require.Nil(t, res)

	// The worker survives and keeps serving.
	mustExec(t, e, "CREATE TABLE t (x INTEGER);")
	mustExec(t, e, "INSERT INTO t (x) VALUES (1);")
	qres, err := e.Execute("SELECT count(1) FROM t;")
	require.NoError(t, err)
	require.NoError(t, qres.Err)
	assert.EqualValues(t, 1, qres.Rows[0][0])
}

func TestExecutor_CloseDrainsQueue(t *testing.T) {
	e, path := newTestExecutor(t)
	mustExec(t, e, "CREATE TABLE t (x INTEGER);")

	for i := 0; i < 50; i++ {
		mustExec(t, e, "INSERT INTO t (x) VALUES (?);", i)
	}
	require.NoError(t, e.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow("SELECT count(1) FROM t;").Scan(&n))
	assert.Equal(t, 50, n, "commands queued before Close must be executed and committed")
}

func TestExecutor_ExecuteAfterClose(t *testing.T) {
	e, _ := newTestExecutor(t)
	require.NoError(t, e.Close())

	res, err := e.Execute("SELECT 1;")
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrClosed)

	res, err = e.Execute("INSERT INTO t VALUES (1);")
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestExecutor_CloseIdempotent(t *testing.T) {
	e, _ := newTestExecutor(t)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
}

func TestExecutor_BatchedCommits(t *testing.T) {
	// A tiny batch size forces a commit every two commands.
	e, _ := newTestExecutor(t, WithBatchSize(2))
	mustExec(t, e, "CREATE TABLE t (x INTEGER);")

	for i := 0; i < 10; i++ {
		mustExec(t, e, "INSERT INTO t (x) VALUES (?);", i)
	}

	res, err := e.Execute("SELECT count(1) FROM t;")
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.EqualValues(t, 10, res.Rows[0][0])
}

func TestExecutor_CountersExposed(t *testing.T) {
	e, path := newTestExecutor(t)

	mustExec(t, e, "CREATE TABLE t (x INTEGER);")
	mustExec(t, e, "INSERT INTO t (x) VALUES (1);")
	res, err := e.Execute("SELECT count(1) FROM t;")
	require.NoError(t, err)
	require.NoError(t, res.Err)

	// The delivered query proves all three commands ran (FIFO), so the
	// executed counter for this database is exactly 3.
	var buf bytes.Buffer
	WriteMetrics(&buf)
	assert.Contains(t, buf.String(),
		fmt.Sprintf(`dictdb_worker_executed_total{db=%q} 3`, path))
	assert.Contains(t, buf.String(),
		fmt.Sprintf(`dictdb_worker_commits_total{db=%q}`, path))
}

func TestExecutor_QueryErrorCounted(t *testing.T) {
	e, path := newTestExecutor(t)

	res, err := e.Execute("SELECT * FROM no_such_table;")
	require.NoError(t, err)
	require.Error(t, res.Err)

	var buf bytes.Buffer
	WriteMetrics(&buf)
	assert.Contains(t, buf.String(),
		fmt.Sprintf(`dictdb_worker_query_errors_total{db=%q} 1`, path))
}

func TestExecutor_QueryRacingClose(t *testing.T) {
	e, _ := newTestExecutor(t)
	mustExec(t, e, "CREATE TABLE t (x INTEGER);")

	// Producers issue queries in a tight loop while Close drains; every one
	// of them must come back, either with a result or with ErrClosed. A
	// producer stuck on its result channel fails the watchdog below.
	const producers = 20
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				res, err := e.Execute("SELECT count(1) FROM t;")
				if err != nil {
					assert.ErrorIs(t, err, ErrClosed)
					return
				}
				assert.NoError(t, res.Err)
			}
		}()
	}

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, e.Close())

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(10 * time.Second):
		t.Fatal("a producer is still waiting for a query result after shutdown")
	}
}

func TestExecutor_QueueLen(t *testing.T) {
	e, _ := newTestExecutor(t)
	assert.GreaterOrEqual(t, e.QueueLen(), 0)
}

func TestExecutor_Trace(t *testing.T) {
	var mu sync.Mutex
	var stmts []string

	e, _ := newTestExecutor(t, WithTrace(func(pid int, worker, stmt string) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "worker", worker)
		stmts = append(stmts, stmt)
	}))

	mustExec(t, e, "CREATE TABLE t (x INTEGER);")
	res, err := e.Execute("SELECT count(1) FROM t;")
	require.NoError(t, err)
	require.NoError(t, res.Err)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, stmts, "CREATE TABLE t (x INTEGER);")
	assert.Contains(t, stmts, "SELECT count(1) FROM t;")
}

func TestExecutor_SubmitTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	// Hold an exclusive lock from a second connection so the worker stalls
	// on its busy timeout and the queue fills up behind it.
	blocker, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer blocker.Close()
	ctx := context.Background()
	conn, err := blocker.Conn(ctx)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.ExecContext(ctx, "BEGIN EXCLUSIVE;")
	require.NoError(t, err)

	e, err := New(path, WithQueueSize(1), WithSubmitTimeout(100*time.Millisecond))
	require.NoError(t, err)

	// The first command is dequeued and stalls on the lock, the second
	// occupies the only queue slot, so one of the follow-ups must time out.
	_, err1 := e.Execute("CREATE TABLE t (x INTEGER);")
	require.NoError(t, err1)
	_, err2 := e.Execute("INSERT INTO t (x) VALUES (1);")
	_, err3 := e.Execute("INSERT INTO t (x) VALUES (2);")
	assert.True(t, errors.Is(err2, ErrQueueFull) || errors.Is(err3, ErrQueueFull),
		"expected a queue-full failure, got %v / %v", err2, err3)

	_, err = conn.ExecContext(ctx, "ROLLBACK;")
	require.NoError(t, err)
	require.NoError(t, e.Close())
}

func TestIsQuery(t *testing.T) {
	assert.True(t, isQuery("SELECT 1"))
	assert.True(t, isQuery("  select * from t"))
	assert.True(t, isQuery("\n\tSeLeCt 1"))
	assert.False(t, isQuery("INSERT INTO t VALUES (1)"))
	assert.False(t, isQuery("UPDATE t SET x = 1"))
	assert.False(t, isQuery("CREATE TABLE t (x)"))
}
