package storage

import (
	"fmt"
)

// Set upserts the entry for key. On overwrite the inserted time is
// preserved and only the updated time advances. Fails with READ_ONLY if the
// store was opened read-only.
func (s *Store) Set(key string, value any) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	if err := s.begin(); err != nil {
		return err
	}
	if err := s.setRow(key, value); err != nil {
		s.rollback()
		return err
	}
	return s.commit()
}

// setRow performs the raw upsert without transaction handling. The
// correlated sub-select keeps the original inserted time across overwrites.
func (s *Store) setRow(key string, value any) error {
	raw, err := encodeValue(value)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf("INSERT OR REPLACE INTO %s (key, value, inserted, updated) "+
		"VALUES (?, ?, COALESCE((SELECT inserted FROM %s WHERE key = ?), ?), ?);",
		s.table, s.table)
	n := now()
	if _, err := s.exec(stmt, key, raw, key, n, n); err != nil {
		return NewConnection("failed to write entry", err)
	}
	return nil
}

// Delete removes the entry for key. An absent key fails with KEY_NOT_FOUND
// unless ignoreMissing is set, in which case the call is a no-op.
func (s *Store) Delete(key string, ignoreMissing bool) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	if err := s.begin(); err != nil {
		return err
	}
	affected, err := s.deleteRow(key)
	if err != nil {
		s.rollback()
		return err
	}
	if err := s.commit(); err != nil {
		return err
	}
	if affected == 0 && !ignoreMissing {
		return NewKeyNotFound(s.namespace, key)
	}
	return nil
}

func (s *Store) deleteRow(key string) (int64, error) {
	res, err := s.exec(fmt.Sprintf("DELETE FROM %s WHERE key = ?;", s.table), key)
	if err != nil {
		return 0, NewConnection("failed to delete entry", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, NewConnection("failed to delete entry", err)
	}
	return affected, nil
}

// Update applies Set for every pair in m inside one transaction. Either all
// pairs are written or none are.
func (s *Store) Update(m map[string]any) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	if err := s.begin(); err != nil {
		return err
	}
	for k, v := range m {
		if err := s.setRow(k, v); err != nil {
			s.rollback()
			return err
		}
	}
	return s.commit()
}

// Pop reads and removes the entry for key as one transaction. On an absent
// key the transaction is rolled back and KEY_NOT_FOUND is returned, leaving
// the store unmodified.
func (s *Store) Pop(key string) (any, error) {
	if err := s.checkWritable(); err != nil {
		return nil, err
	}
	if err := s.begin(); err != nil {
		return nil, err
	}
	v, err := s.Get(key)
	if err != nil {
		s.rollback()
		return nil, err
	}
	if _, err := s.deleteRow(key); err != nil {
		s.rollback()
		return nil, err
	}
	if err := s.commit(); err != nil {
		return nil, err
	}
	return v, nil
}

// PopDefault is Pop with a fallback: an absent key yields def instead of an
// error.
func (s *Store) PopDefault(key string, def any) (any, error) {
	v, err := s.Pop(key)
	if IsKeyNotFound(err) {
		return def, nil
	}
	return v, err
}

// Clear removes every entry in the namespace.
func (s *Store) Clear() error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	if err := s.begin(); err != nil {
		return err
	}
	if _, err := s.exec(fmt.Sprintf("DELETE FROM %s;", s.table)); err != nil {
		s.rollback()
		return NewConnection("failed to clear namespace", err)
	}
	return s.commit()
}
