package mysequel

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"time"

	"github.com/jmoiron/sqlx"
)

// bindValues turns a Statement parameter set into positional arguments.
// A map with string keys or a struct (fields named by `db` tags) is a named
// set: the query's :name placeholders are rewritten to ? and the values laid
// out in order. Named sets are rejected unless named is true.
func bindValues(query string, values any, named bool) (string, []any, error) {
	switch v := values.(type) {
	case nil:
		return query, nil, nil
	case []any:
		return query, v, nil
	}
	if isNamedSet(values) {
		if !named {
			return "", nil, ErrNamedPlaceholders
		}
		bound, args, err := sqlx.Named(query, values)
		if err != nil {
			return "", nil, fmt.Errorf("mysequel: bind named parameters: %w", err)
		}
		return bound, args, nil
	}
	rv := reflect.ValueOf(values)
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		args := make([]any, rv.Len())
		for i := range args {
			args[i] = rv.Index(i).Interface()
		}
		return query, args, nil
	}
	return query, []any{values}, nil
}

func isNamedSet(v any) bool {
	switch v.(type) {
	case driver.Valuer, time.Time, *time.Time:
		return false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		return rv.Type().Key().Kind() == reflect.String
	case reflect.Struct:
		return true
	}
	return false
}
