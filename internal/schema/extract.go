package schema

import (
	"bytes"
	"strconv"
	"time"

	lqerrors "github.com/fanzha/logquery/pkg/errors"
)

// FieldSet holds the extracted values of one record. It is owned by a single
// worker and reused across records to keep the hot path allocation-free.
// FieldSet 保存一条记录提取出的字段值，由单个 worker 独占并在记录间复用。
type FieldSet struct {
	schema           *Schema
	values           []Value
	coercionFailures int
}

// NewFieldSet allocates a FieldSet bound to the schema.
func (s *Schema) NewFieldSet() *FieldSet {
	return &FieldSet{
		schema: s,
		values: make([]Value, len(s.fields)),
	}
}

// Schema returns the schema this set was extracted with.
func (fs *FieldSet) Schema() *Schema {
	return fs.schema
}

// Index returns the value at field position i.
func (fs *FieldSet) Index(i int) Value {
	return fs.values[i]
}

// Get resolves a field by name.
func (fs *FieldSet) Get(name string) (Value, bool) {
	i := fs.schema.Index(name)
	if i < 0 {
		return Value{}, false
	}
	return fs.values[i], true
}

// CoercionFailures reports how many fields of the current record failed to
// coerce into their declared type.
func (fs *FieldSet) CoercionFailures() int {
	return fs.coercionFailures
}

// Extract parses one raw record into the FieldSet, overwriting the previous
// contents. Positional tokens map to schema fields in declared order.
//
//   - Fewer tokens than fields: trailing optional fields become absent; a
//     missing required field fails the record with SchemaMismatch.
//   - More tokens than fields: the excess is joined back (delimiter included)
//     into the remainder field when declared, otherwise ignored.
//   - A field that fails type coercion becomes absent; the record itself is
//     still evaluated.
//
// Extract 将一条原始记录解析进 FieldSet，覆盖上一条的内容。
// token 不足时末尾可选字段记为缺失，必填字段缺失整条记录按 SchemaMismatch 失败；
// token 过多时若声明了 remainder 字段则连同分隔符并回该字段，否则忽略；
// 类型转换失败仅使该字段缺失，记录仍参与求值。
func (fs *FieldSet) Extract(record []byte) error {
	s := fs.schema
	fs.coercionFailures = 0
	for i := range fs.values {
		fs.values[i] = Value{}
	}

	rest := record
	for i := range s.fields {
		if s.remainder == i {
			// final field absorbs everything that is left, embedded
			// delimiters included
			fs.set(i, rest)
			return nil
		}
		idx := bytes.Index(rest, s.delim)
		if idx < 0 {
			// last token of the record; any fields after it stay absent
			fs.set(i, rest)
			return fs.checkRequiredFrom(i + 1)
		}
		fs.set(i, rest[:idx])
		rest = rest[idx+len(s.delim):]
	}
	return nil
}

func (fs *FieldSet) checkRequiredFrom(i int) error {
	for ; i < len(fs.schema.fields); i++ {
		if fs.schema.fields[i].Required {
			return lqerrors.NewSchemaMismatchError(fs.schema.fields[i].Name)
		}
	}
	return nil
}

func (fs *FieldSet) set(i int, token []byte) {
	f := fs.schema.fields[i]
	v := &fs.values[i]
	switch f.Type {
	case TypeString:
		v.Present = true
		v.Str = string(token)
	case TypeInt:
		n, err := strconv.ParseInt(string(bytes.TrimSpace(token)), 10, 64)
		if err != nil {
			fs.coercionFailures++
			return
		}
		v.Present = true
		v.Int = n
		v.Str = string(token)
	case TypeFloat:
		fl, err := strconv.ParseFloat(string(bytes.TrimSpace(token)), 64)
		if err != nil {
			fs.coercionFailures++
			return
		}
		v.Present = true
		v.Float = fl
		v.Str = string(token)
	case TypeTime:
		t, err := time.Parse(f.Layout, string(bytes.TrimSpace(token)))
		if err != nil {
			fs.coercionFailures++
			return
		}
		v.Present = true
		v.Time = t
		v.Str = string(token)
	}
}

// Render formats a value for group keys and reports.
// Render 将值格式化为分组键或报告文本。
func (v Value) Render() string {
	if !v.Present {
		return ""
	}
	return v.Str
}
