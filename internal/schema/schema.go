package schema

import (
	"time"

	"github.com/fanzha/logquery/internal/config"
	lqerrors "github.com/fanzha/logquery/pkg/errors"
)

// FieldType is the declared type of a schema field.
// FieldType 是模式字段声明的类型。
type FieldType int

const (
	TypeString FieldType = iota
	TypeInt
	TypeFloat
	TypeTime
)

// Field is one compiled positional field.
type Field struct {
	Name      string
	Type      FieldType
	Layout    string
	Required  bool
	Remainder bool
}

// Schema is the compiled delimiter schema. Field names and positions are
// fixed at compile time so per-record extraction is index-based; the schema
// is immutable and safely shared across all workers.
// Schema 是编译后的分隔符模式。字段名与位置在编译期固定，
// 逐记录提取按下标进行；模式不可变，可被所有 worker 并发读取。
type Schema struct {
	fields    []Field
	delim     []byte
	index     map[string]int
	remainder int // index of the remainder field, -1 if none
}

// Compile builds a Schema from its configuration. The configuration is
// assumed to have passed config.Validate.
// Compile 由配置构建 Schema。配置应已通过 config.Validate 校验。
func Compile(cfg config.SchemaConfig) (*Schema, error) {
	if cfg.FieldDelimiter == "" {
		return nil, lqerrors.NewConfigError("schema.field_delimiter", "empty")
	}
	s := &Schema{
		fields:    make([]Field, 0, len(cfg.Fields)),
		delim:     []byte(cfg.FieldDelimiter),
		index:     make(map[string]int, len(cfg.Fields)),
		remainder: -1,
	}
	for i, fc := range cfg.Fields {
		ft := TypeString
		switch fc.Type {
		case "", "string":
			ft = TypeString
		case "int":
			ft = TypeInt
		case "float":
			ft = TypeFloat
		case "time":
			ft = TypeTime
		default:
			return nil, lqerrors.NewConfigError("schema.fields.type", fc.Type)
		}
		layout := fc.Layout
		if ft == TypeTime && layout == "" {
			layout = "2006-01-02 15:04:05"
		}
		if fc.Remainder {
			if i != len(cfg.Fields)-1 {
				return nil, lqerrors.NewConfigError("schema.fields.remainder", fc.Name)
			}
			s.remainder = i
		}
		s.index[fc.Name] = i
		s.fields = append(s.fields, Field{
			Name:      fc.Name,
			Type:      ft,
			Layout:    layout,
			Required:  fc.Required,
			Remainder: fc.Remainder,
		})
	}
	return s, nil
}

// Delimiter returns the inter-field delimiter.
func (s *Schema) Delimiter() []byte {
	return s.delim
}

// NumFields returns the number of declared fields.
func (s *Schema) NumFields() int {
	return len(s.fields)
}

// Field returns the compiled field at position i.
func (s *Schema) Field(i int) Field {
	return s.fields[i]
}

// Index resolves a field name to its position, or -1.
func (s *Schema) Index(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// Value is one extracted, typed field value. A field that is missing or
// failed to coerce has Present == false; it is never silently wrong.
// Value 是提取出的单个带类型字段值。缺失或转换失败的字段 Present 为 false，
// 绝不会悄悄给出错误的值。
type Value struct {
	Present bool
	Str     string
	Int     int64
	Float   float64
	Time    time.Time
}
