package binder

import (
	"fmt"
	"net/http"
	"reflect"
	"strconv"
)

// Path returns a binder that copies router parameters into fields tagged
// `path:"name"`. Supported kinds are string, int and bool.
func Path(param func(r *http.Request, name string) string) func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
			return fmt.Errorf("%w: target must be a pointer to struct", ErrInvalidPath)
		}
		rv = rv.Elem()
		rt := rv.Type()

		for i := range rt.NumField() {
			name := rt.Field(i).Tag.Get("path")
			if name == "" || name == "-" {
				continue
			}
			raw := param(r, name)
			if raw == "" {
				continue
			}

			field := rv.Field(i)
			switch field.Kind() {
			case reflect.String:
				field.SetString(raw)
			case reflect.Int, reflect.Int64:
				n, err := strconv.ParseInt(raw, 10, 64)
				if err != nil {
					return fmt.Errorf("%w: %s", ErrInvalidPath, name)
				}
				field.SetInt(n)
			case reflect.Bool:
				b, err := strconv.ParseBool(raw)
				if err != nil {
					return fmt.Errorf("%w: %s", ErrInvalidPath, name)
				}
				field.SetBool(b)
			default:
				return fmt.Errorf("%w: unsupported field kind %s", ErrInvalidPath, field.Kind())
			}
		}
		return nil
	}
}
