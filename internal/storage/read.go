package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Item is one decoded key-value pair as returned by Items.
type Item struct {
	Key   string
	Value any
}

// Get returns the decoded value stored under key, or a KEY_NOT_FOUND error
// if the key is absent.
func (s *Store) Get(key string) (any, error) {
	var raw string
	err := s.queryRow(
		fmt.Sprintf("SELECT value FROM %s WHERE key = ?;", s.table), key).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, NewKeyNotFound(s.namespace, key)
	}
	if err != nil {
		return nil, NewConnection("failed to read key", err)
	}
	return decodeValue(raw)
}

// GetDefault is Get with a fallback: an absent key yields def instead of an
// error.
func (s *Store) GetDefault(key string, def any) (any, error) {
	v, err := s.Get(key)
	if IsKeyNotFound(err) {
		return def, nil
	}
	return v, err
}

// Count returns the number of entries in the namespace.
func (s *Store) Count() (int, error) {
	var n int
	err := s.queryRow(fmt.Sprintf("SELECT count(1) FROM %s;", s.table)).Scan(&n)
	if err != nil {
		return 0, NewConnection("failed to count entries", err)
	}
	return n, nil
}

// Keys returns every key in the namespace, eagerly materialized, in storage
// order. No sort order is guaranteed beyond what an unordered scan returns.
func (s *Store) Keys() ([]string, error) {
	rows, err := s.query(fmt.Sprintf("SELECT key FROM %s;", s.table))
	if err != nil {
		return nil, NewConnection("failed to scan keys", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, NewConnection("failed to scan keys", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, NewConnection("failed to scan keys", err)
	}
	return keys, nil
}

// Values returns every decoded value in the namespace, eagerly materialized,
// in storage order.
func (s *Store) Values() ([]any, error) {
	rows, err := s.query(fmt.Sprintf("SELECT value FROM %s;", s.table))
	if err != nil {
		return nil, NewConnection("failed to scan values", err)
	}
	defer rows.Close()

	var values []any
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, NewConnection("failed to scan values", err)
		}
		v, err := decodeValue(raw)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, NewConnection("failed to scan values", err)
	}
	return values, nil
}

// Items returns every decoded key-value pair, eagerly materialized, in
// storage order.
func (s *Store) Items() ([]Item, error) {
	rows, err := s.query(fmt.Sprintf("SELECT key, value FROM %s;", s.table))
	if err != nil {
		return nil, NewConnection("failed to scan items", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			k   string
			raw string
		)
		if err := rows.Scan(&k, &raw); err != nil {
			return nil, NewConnection("failed to scan items", err)
		}
		v, err := decodeValue(raw)
		if err != nil {
			return nil, err
		}
		items = append(items, Item{Key: k, Value: v})
	}
	if err := rows.Err(); err != nil {
		return nil, NewConnection("failed to scan items", err)
	}
	return items, nil
}

// Age returns how long ago the key was first inserted and last updated.
// Fails with KEY_NOT_FOUND if the key is absent.
func (s *Store) Age(key string) (sinceInsert, sinceUpdate time.Duration, err error) {
	var inserted, updated int64
	err = s.queryRow(
		fmt.Sprintf("SELECT inserted, updated FROM %s WHERE key = ?;", s.table),
		key).Scan(&inserted, &updated)
	if err == sql.ErrNoRows {
		return 0, 0, NewKeyNotFound(s.namespace, key)
	}
	if err != nil {
		return 0, 0, NewConnection("failed to read entry age", err)
	}
	n := now()
	return time.Duration(n-inserted) * time.Second,
		time.Duration(n-updated) * time.Second, nil
}
