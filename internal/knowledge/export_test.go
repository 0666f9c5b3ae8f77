package knowledge

import "database/sql"

// DB exposes the internal *sql.DB for test helpers in knowledge_test.
// This file only compiles during `go test`.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ReadDB exposes the query-only read pool.
func (s *Store) ReadDB() *sql.DB {
	return s.rdb
}

// FailCommits makes every later commit roll back and return err.
func (s *Store) FailCommits(err error) {
	s.hooks.commit = func(tx *sql.Tx) error {
		_ = tx.Rollback()
		return err
	}
}
