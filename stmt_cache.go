package mysequel

import (
	"container/list"
	"context"
	"database/sql"
	"sync"
)

// stmtCache is an LRU of statements prepared on one borrowed connection.
// Statements prepared on a *sql.Conn die with it, so the cache is closed
// whenever the connection goes back to the pool.
type stmtCache struct {
	cap    int
	mu     sync.Mutex
	ll     *list.List // front = most recently used
	m      map[string]*list.Element
	hits   uint64
	misses uint64
}

type stmtEntry struct {
	key  string
	stmt *sql.Stmt
}

func newStmtCache(capacity int) *stmtCache {
	if capacity < 0 {
		capacity = 0
	}
	return &stmtCache{cap: capacity, ll: list.New(), m: make(map[string]*list.Element)}
}

// getOrPrepare returns the cached statement for query, preparing it on conn
// on a miss. The bool reports a cache hit. With zero capacity the caller
// owns the returned statement and must close it.
func (c *stmtCache) getOrPrepare(ctx context.Context, conn *sql.Conn, query string) (*sql.Stmt, bool, error) {
	if c == nil || c.cap == 0 {
		st, err := conn.PrepareContext(ctx, query)
		return st, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ele, ok := c.m[query]; ok {
		c.ll.MoveToFront(ele)
		c.hits++
		return ele.Value.(*stmtEntry).stmt, true, nil
	}
	st, err := conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, false, err
	}
	c.misses++
	c.m[query] = c.ll.PushFront(&stmtEntry{key: query, stmt: st})
	if c.ll.Len() > c.cap {
		c.evictLRU()
	}
	return st, false, nil
}

func (c *stmtCache) evictLRU() {
	back := c.ll.Back()
	if back == nil {
		return
	}
	c.ll.Remove(back)
	e := back.Value.(*stmtEntry)
	delete(c.m, e.key)
	_ = e.stmt.Close()
}

func (c *stmtCache) closeAll() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for e := c.ll.Front(); e != nil; e = e.Next() {
		_ = e.Value.(*stmtEntry).stmt.Close()
	}
	c.ll.Init()
	clear(c.m)
}

func (c *stmtCache) stats() (hits, misses uint64, size int) {
	if c == nil {
		return 0, 0, 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.ll.Len()
}
