package query

import (
	"strings"

	"github.com/fanzha/logquery/internal/schema"
)

// Env is the environment a free-form expression runs against. Methods are
// the query surface: Field/Has/Num/Unix plus a few string helpers.
// Env 是自由表达式的运行环境，方法即查询接口。
type Env struct {
	FS *schema.FieldSet
}

// Field returns the string form of a field, or "" when absent.
func (e Env) Field(name string) string {
	v, ok := e.FS.Get(name)
	if !ok || !v.Present {
		return ""
	}
	return v.Str
}

// Has reports whether the field was present and coerced successfully.
func (e Env) Has(name string) bool {
	v, ok := e.FS.Get(name)
	return ok && v.Present
}

// Num returns a numeric field as float64 (ints are widened), 0 when absent.
func (e Env) Num(name string) float64 {
	v, ok := e.FS.Get(name)
	if !ok || !v.Present {
		return 0
	}
	i := e.FS.Schema().Index(name)
	switch e.FS.Schema().Field(i).Type {
	case schema.TypeInt:
		return float64(v.Int)
	case schema.TypeFloat:
		return v.Float
	}
	return 0
}

// Unix returns a timestamp field as Unix seconds, 0 when absent.
func (e Env) Unix(name string) int64 {
	v, ok := e.FS.Get(name)
	if !ok || !v.Present {
		return 0
	}
	return v.Time.Unix()
}

// Contains reports whether the field value contains needle.
func (e Env) Contains(name, needle string) bool {
	return strings.Contains(e.Field(name), needle)
}

// IContains is the case-insensitive variant of Contains.
func (e Env) IContains(name, needle string) bool {
	return strings.Contains(strings.ToLower(e.Field(name)), strings.ToLower(needle))
}

// Prefix reports whether the field value starts with prefix.
func (e Env) Prefix(name, prefix string) bool {
	return strings.HasPrefix(e.Field(name), prefix)
}
