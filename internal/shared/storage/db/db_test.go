package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopDriver struct{}

func (d nopDriver) Open(name string) (driver.Conn, error) {
	return nopConn{}, nil
}

type nopConn struct{}

func (nopConn) Prepare(query string) (driver.Stmt, error) { return nopStmt{}, nil }
func (nopConn) Close() error                              { return nil }
func (nopConn) Begin() (driver.Tx, error)                 { return nopTx{}, nil }
func (nopConn) Ping(ctx context.Context) error            { return nil }

type nopStmt struct{}

func (nopStmt) Close() error                                   { return nil }
func (nopStmt) NumInput() int                                  { return -1 }
func (nopStmt) Exec(args []driver.Value) (driver.Result, error) { return nopResult{}, nil }
func (nopStmt) Query(args []driver.Value) (driver.Rows, error)  { return nopRows{}, nil }

type nopTx struct{}

func (nopTx) Commit() error   { return nil }
func (nopTx) Rollback() error { return nil }

type nopResult struct{}

func (nopResult) LastInsertId() (int64, error) { return 0, nil }
func (nopResult) RowsAffected() (int64, error) { return 0, nil }

type nopRows struct{}

func (nopRows) Columns() []string              { return []string{} }
func (nopRows) Close() error                   { return nil }
func (nopRows) Next(dest []driver.Value) error { return driver.ErrBadConn }

var registerTestDriverOnce sync.Once

func ensureTestDriverRegistered() {
	registerTestDriverOnce.Do(func() {
		sql.Register("dbtest", nopDriver{})
	})
}

func withTestDriver(t *testing.T) {
	t.Helper()
	ensureTestDriverRegistered()
	prev, prevShared := openDB, shared
	openDB = func(_, dsn string) (*sql.DB, error) {
		return sql.Open("dbtest", dsn)
	}
	shared = newSharedPool()
	t.Cleanup(func() {
		openDB, shared = prev, prevShared
	})
}

func TestGetSingletonReusesPool(t *testing.T) {
	withTestDriver(t)

	var wg sync.WaitGroup
	pools := make([]*sql.DB, 8)
	for i := range pools {
		wg.Add(1)
		go func() {
			defer wg.Done()
			db, err := GetSingleton(context.Background(), "ignored", DefaultLambdaOptions())
			assert.NoError(t, err)
			pools[i] = db
		}()
	}
	wg.Wait()
	for _, db := range pools {
		assert.Same(t, pools[0], db)
	}
}

func TestGetSingletonRetriesAfterFailure(t *testing.T) {
	withTestDriver(t)
	var calls atomic.Int32
	openDB = func(_, dsn string) (*sql.DB, error) {
		if calls.Add(1) == 1 {
			return nil, driver.ErrBadConn
		}
		return sql.Open("dbtest", dsn)
	}

	_, err := GetSingleton(context.Background(), "ignored", DefaultLambdaOptions())
	require.Error(t, err)
	db, err := GetSingleton(context.Background(), "ignored", DefaultLambdaOptions())
	require.NoError(t, err)
	assert.NotNil(t, db)
}

func TestOptionsFromEnvAppliesOverrides(t *testing.T) {
	withTestDriver(t)
	t.Setenv("DB_MAX_OPEN_CONNS", "7")
	t.Setenv("DB_MAX_IDLE_CONNS", "3")
	t.Setenv("DB_CONN_MAX_LIFETIME", "20m")
	t.Setenv("DB_CONN_MAX_IDLE_TIME", "45s")
	t.Setenv("DB_PING_TIMEOUT", "1s")

	opts := OptionsFromEnv(DefaultServerOptions())
	assert.Equal(t, Options{
		MaxOpenConns:    7,
		MaxIdleConns:    3,
		ConnMaxLifetime: 20 * time.Minute,
		ConnMaxIdleTime: 45 * time.Second,
		PingTimeout:     time.Second,
	}, opts)

	db, err := Connect(context.Background(), "ignored", opts)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, 7, db.Stats().MaxOpenConnections)
}

func TestOptionsFromEnvIgnoresInvalid(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "many")
	t.Setenv("DB_PING_TIMEOUT", "soon")
	assert.Equal(t, DefaultServerOptions(), OptionsFromEnv(DefaultServerOptions()))
}

func TestConnectRequiresURL(t *testing.T) {
	_, err := Connect(context.Background(), " ", DefaultServerOptions())
	assert.EqualError(t, err, "DATABASE_URL is empty")
}

func TestPing(t *testing.T) {
	assert.NoError(t, Ping(context.Background(), nil, 0))

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing().WillReturnError(driver.ErrBadConn)
	assert.Error(t, Ping(context.Background(), db, time.Second))
}
