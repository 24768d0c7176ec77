package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the scan pipeline. Record- and file-level failures wrap
// one of these so callers can classify them with errors.Is.
// 扫描流水线的哨兵错误。记录级和文件级失败都会包装其中之一，
// 调用方可通过 errors.Is 进行分类。
var (
	ErrEnumeration    = errors.New("log directory enumeration failed")
	ErrDecompression  = errors.New("corrupt compressed stream")
	ErrRead           = errors.New("read failed")
	ErrSchemaMismatch = errors.New("record does not match schema")
	ErrFieldCoercion  = errors.New("field coercion failed")
	ErrConfigNotFound = errors.New("config not found")
	ErrConfigInvalid  = errors.New("invalid configuration")
	ErrCanceled       = errors.New("run canceled")
)

func NewEnumerationError(root string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrEnumeration, root, err)
}

func NewDecompressionError(path string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrDecompression, path, err)
}

func NewReadError(path string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrRead, path, err)
}

func NewSchemaMismatchError(field string) error {
	return fmt.Errorf("%w: required field %q missing", ErrSchemaMismatch, field)
}

func NewConfigError(field string, value interface{}) error {
	return fmt.Errorf("%w: field=%s value=%v", ErrConfigInvalid, field, value)
}

// Kind maps an error to its short taxonomy name for the per-file error report.
// Kind 将错误映射为错误报告中使用的简短分类名。
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrEnumeration):
		return "enumeration"
	case errors.Is(err, ErrDecompression):
		return "decompression"
	case errors.Is(err, ErrRead):
		return "read"
	case errors.Is(err, ErrSchemaMismatch):
		return "schema_mismatch"
	case errors.Is(err, ErrFieldCoercion):
		return "field_coercion"
	case errors.Is(err, ErrCanceled):
		return "canceled"
	default:
		return "unknown"
	}
}
