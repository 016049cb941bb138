package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

// stubDB 录制语句并按脚本返回结果的假驱动
// 仓储测试用它断言生成的 SQL（租户条件注入、search_path 切换）
// 并喂入扫描数据，无需真实的 PostgreSQL
type stubDB struct {
	name string

	mu    sync.Mutex
	stmts []recordedStmt

	// rowsFor 按查询子串匹配返回行数据，不匹配返回空结果集
	rowsFor []scriptedRows
	// affectedFor 按语句子串匹配返回影响行数，默认 1
	affectedFor map[string]int64
	// failFor 按语句子串匹配返回错误
	failFor map[string]error
}

type recordedStmt struct {
	query string
	args  []driver.NamedValue
}

type scriptedRows struct {
	substr  string
	columns []string
	rows    [][]driver.Value
}

var stubSeq atomic.Int64

// newStubDB 注册假驱动并返回可被 *sql.DB 使用的句柄
func newStubDB() (*stubDB, *sql.DB) {
	s := &stubDB{
		affectedFor: make(map[string]int64),
		failFor:     make(map[string]error),
	}
	s.name = fmt.Sprintf("stub-%d", stubSeq.Add(1))
	sql.Register(s.name, &stubDriver{state: s})
	db, err := s.open()
	if err != nil {
		panic(err)
	}
	return s, db
}

// open 返回共享同一录制状态的新 *sql.DB
func (s *stubDB) open() (*sql.DB, error) {
	return sql.Open(s.name, "")
}

// script 为包含 substr 的查询准备返回行
func (s *stubDB) script(substr string, columns []string, rows ...[]driver.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rowsFor = append(s.rowsFor, scriptedRows{substr: substr, columns: columns, rows: rows})
}

// recorded 返回录制到的全部语句文本
func (s *stubDB) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.stmts))
	for i, st := range s.stmts {
		out[i] = st.query
	}
	return out
}

// argsOf 返回第一条包含 substr 的语句的参数
func (s *stubDB) argsOf(substr string) []driver.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.stmts {
		if strings.Contains(st.query, substr) {
			vals := make([]driver.Value, len(st.args))
			for i, a := range st.args {
				vals[i] = a.Value
			}
			return vals
		}
	}
	return nil
}

func (s *stubDB) record(query string, args []driver.NamedValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stmts = append(s.stmts, recordedStmt{query: query, args: args})
}

func (s *stubDB) lookupRows(query string) *stubRows {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rowsFor {
		if strings.Contains(query, r.substr) {
			return &stubRows{columns: r.columns, rows: r.rows}
		}
	}
	return &stubRows{}
}

func (s *stubDB) lookupErr(query string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for substr, err := range s.failFor {
		if strings.Contains(query, substr) {
			return err
		}
	}
	return nil
}

func (s *stubDB) lookupAffected(query string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	for substr, n := range s.affectedFor {
		if strings.Contains(query, substr) {
			return n
		}
	}
	return 1
}

// ---- driver 接线 ----

type stubDriver struct {
	state *stubDB
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return &stubConn{state: d.state}, nil
}

type stubConn struct {
	state *stubDB
}

func (c *stubConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported by stub driver")
}

func (c *stubConn) Close() error { return nil }

func (c *stubConn) Begin() (driver.Tx, error) {
	return &stubTx{}, nil
}

func (c *stubConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	return &stubTx{}, nil
}

func (c *stubConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.state.record(query, args)
	if err := c.state.lookupErr(query); err != nil {
		return nil, err
	}
	return stubResult{affected: c.state.lookupAffected(query)}, nil
}

func (c *stubConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.state.record(query, args)
	if err := c.state.lookupErr(query); err != nil {
		return nil, err
	}
	return c.state.lookupRows(query), nil
}

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

type stubResult struct {
	affected int64
}

func (r stubResult) LastInsertId() (int64, error) { return 0, nil }
func (r stubResult) RowsAffected() (int64, error) { return r.affected, nil }

type stubRows struct {
	columns []string
	rows    [][]driver.Value
	pos     int
}

func (r *stubRows) Columns() []string { return r.columns }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}
