package binder

import (
	"encoding"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
)

// BindQuery fills fields tagged `query:"name"` from the URL query string.
func BindQuery() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		return bindValues(v, "query", func(name string) []string {
			return r.URL.Query()[name]
		}, ErrInvalidQuery)
	}
}

// BindHeader fills fields tagged `header:"Name"` from request headers.
func BindHeader() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		return bindValues(v, "header", func(name string) []string {
			return r.Header.Values(name)
		}, ErrInvalidHeader)
	}
}

// BindValues fills fields tagged with tag from vals. Exported for callers
// holding already-parsed values, such as callback query strings.
func BindValues(v any, tag string, vals url.Values) error {
	return bindValues(v, tag, func(name string) []string { return vals[name] }, ErrInvalidQuery)
}

var textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()

func bindValues(v any, tag string, lookup func(string) []string, errKind error) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return ErrInvalidTarget
	}
	rv = rv.Elem()
	rt := rv.Type()

	for i := range rt.NumField() {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		name := strings.SplitN(field.Tag.Get(tag), ",", 2)[0]
		if name == "" || name == "-" {
			continue
		}
		raw := lookup(name)
		if len(raw) == 0 {
			continue
		}
		if err := setField(rv.Field(i), raw); err != nil {
			return fmt.Errorf("%w: %s: %v", errKind, name, err)
		}
	}
	return nil
}

func setField(f reflect.Value, raw []string) error {
	if f.Kind() == reflect.Slice && !f.Addr().Type().Implements(textUnmarshalerType) {
		out := reflect.MakeSlice(f.Type(), 0, len(raw))
		for _, s := range raw {
			elem := reflect.New(f.Type().Elem()).Elem()
			if err := setScalar(elem, s); err != nil {
				return err
			}
			out = reflect.Append(out, elem)
		}
		f.Set(out)
		return nil
	}
	return setScalar(f, raw[0])
}

func setScalar(f reflect.Value, s string) error {
	if f.CanAddr() && f.Addr().Type().Implements(textUnmarshalerType) {
		return f.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s))
	}

	switch f.Kind() {
	case reflect.String:
		f.SetString(s)
	case reflect.Bool:
		if s == "" {
			f.SetBool(true)
			return nil
		}
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		f.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, f.Type().Bits())
		if err != nil {
			return err
		}
		f.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, f.Type().Bits())
		if err != nil {
			return err
		}
		f.SetUint(n)
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(s, f.Type().Bits())
		if err != nil {
			return err
		}
		f.SetFloat(n)
	case reflect.Pointer:
		ptr := reflect.New(f.Type().Elem())
		if err := setScalar(ptr.Elem(), s); err != nil {
			return err
		}
		f.Set(ptr)
	default:
		return fmt.Errorf("unsupported field type %s", f.Type())
	}
	return nil
}
