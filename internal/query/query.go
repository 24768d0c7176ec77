package query

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/fanzha/logquery/internal/config"
	"github.com/fanzha/logquery/internal/schema"
	lqerrors "github.com/fanzha/logquery/pkg/errors"
)

// Mode selects what the run produces.
// Mode 决定一次运行产出什么。
type Mode int

const (
	// ModeEnumerate returns the matching records themselves.
	ModeEnumerate Mode = iota
	// ModeCount returns only the total match count.
	ModeCount
	// ModeGroup counts matches per distinct value of the group-by field.
	ModeGroup
)

// condition is one compiled structured condition. match is side-effect-free;
// an absent field never matches.
type condition struct {
	fieldIdx int
	name     string
	op       string
	cost     int
	match    func(v schema.Value) bool
}

// Spec is the compiled query: structured conditions sorted cheapest-first,
// an optional free-form expression program, and the aggregation mode.
// Built once per run, immutable, safely shared by every worker.
// Spec 是编译后的查询：按代价升序排列的结构化条件、可选的自由表达式程序
// 以及聚合模式。每次运行编译一次，不可变，所有 worker 共享。
type Spec struct {
	conds    []condition
	program  *vm.Program
	mode     Mode
	groupIdx int
	sortIdx  int
	sortType schema.FieldType
	sortDesc bool
	limit    int
}

// Compile builds a Spec against the compiled schema.
// Compile 基于已编译的模式构建查询。
func Compile(cfg config.QueryConfig, sc *schema.Schema) (*Spec, error) {
	s := &Spec{groupIdx: -1, sortIdx: -1, limit: cfg.Limit}

	switch cfg.Mode {
	case "", "enumerate":
		s.mode = ModeEnumerate
	case "count":
		s.mode = ModeCount
	case "group":
		s.mode = ModeGroup
	default:
		return nil, lqerrors.NewConfigError("query.mode", cfg.Mode)
	}

	if cfg.GroupBy != "" {
		s.groupIdx = sc.Index(cfg.GroupBy)
		if s.groupIdx < 0 {
			return nil, lqerrors.NewConfigError("query.group_by", cfg.GroupBy)
		}
	}
	if s.mode == ModeGroup && s.groupIdx < 0 {
		return nil, lqerrors.NewConfigError("query.group_by", "required in group mode")
	}
	if cfg.SortBy != "" {
		s.sortIdx = sc.Index(cfg.SortBy)
		if s.sortIdx < 0 {
			return nil, lqerrors.NewConfigError("query.sort_by", cfg.SortBy)
		}
		s.sortType = sc.Field(s.sortIdx).Type
		s.sortDesc = cfg.SortDesc
	}

	for _, cc := range cfg.Conditions {
		cond, err := compileCondition(cc, sc)
		if err != nil {
			return nil, err
		}
		s.conds = append(s.conds, cond)
	}
	// Cheapest, most selective conditions run first so a non-matching
	// record short-circuits before the expensive comparators.
	// 代价最低的条件先执行，不匹配的记录在昂贵的比较前就被短路掉。
	sort.SliceStable(s.conds, func(i, j int) bool {
		return s.conds[i].cost < s.conds[j].cost
	})

	if cfg.Expr != "" {
		program, err := expr.Compile(cfg.Expr, expr.Env(Env{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("%w: expr: %v", lqerrors.ErrConfigInvalid, err)
		}
		s.program = program
	}

	return s, nil
}

func compileCondition(cc config.ConditionConfig, sc *schema.Schema) (condition, error) {
	idx := sc.Index(cc.Field)
	if idx < 0 {
		return condition{}, lqerrors.NewConfigError("query.conditions.field", cc.Field)
	}
	field := sc.Field(idx)
	cond := condition{fieldIdx: idx, name: cc.Field, op: cc.Op}

	values := cc.Values
	if len(values) == 0 && cc.Value != "" {
		values = []string{cc.Value}
	}

	badValue := func() error {
		return lqerrors.NewConfigError("query.conditions.value", fmt.Sprintf("%s %s %v", cc.Field, cc.Op, values))
	}

	switch cc.Op {
	case "", "eq", "ne":
		if len(values) != 1 {
			return condition{}, badValue()
		}
		eq, err := compileEqual(field, values[0])
		if err != nil {
			return condition{}, err
		}
		cond.cost = 0
		if cc.Op == "ne" {
			cond.match = func(v schema.Value) bool { return !eq(v) }
		} else {
			cond.match = eq
		}

	case "lt", "le", "gt", "ge":
		if len(values) != 1 {
			return condition{}, badValue()
		}
		cmp, err := compileCompare(field, values[0])
		if err != nil {
			return condition{}, err
		}
		cond.cost = 1
		switch cc.Op {
		case "lt":
			cond.match = func(v schema.Value) bool { return cmp(v) < 0 }
		case "le":
			cond.match = func(v schema.Value) bool { return cmp(v) <= 0 }
		case "gt":
			cond.match = func(v schema.Value) bool { return cmp(v) > 0 }
		case "ge":
			cond.match = func(v schema.Value) bool { return cmp(v) >= 0 }
		}

	case "between":
		if len(values) != 2 {
			return condition{}, badValue()
		}
		lo, err := compileCompare(field, values[0])
		if err != nil {
			return condition{}, err
		}
		hi, err := compileCompare(field, values[1])
		if err != nil {
			return condition{}, err
		}
		cond.cost = 1
		cond.match = func(v schema.Value) bool { return lo(v) >= 0 && hi(v) <= 0 }

	case "prefix":
		if len(values) != 1 {
			return condition{}, badValue()
		}
		p := values[0]
		cond.cost = 0
		cond.match = func(v schema.Value) bool { return strings.HasPrefix(v.Str, p) }

	case "contains":
		if len(values) != 1 {
			return condition{}, badValue()
		}
		needle := values[0]
		cond.cost = 3
		cond.match = func(v schema.Value) bool { return strings.Contains(v.Str, needle) }

	case "wildcard":
		if len(values) == 0 {
			return condition{}, badValue()
		}
		patterns := values
		cond.cost = 1
		cond.match = func(v schema.Value) bool {
			for _, p := range patterns {
				if matchWildcard(p, v.Str) {
					return true
				}
			}
			return false
		}

	case "in":
		if len(values) == 0 {
			return condition{}, badValue()
		}
		set := make(map[string]struct{}, len(values))
		for _, val := range values {
			set[val] = struct{}{}
		}
		cond.cost = 0
		cond.match = func(v schema.Value) bool {
			_, ok := set[v.Str]
			return ok
		}

	case "ip":
		if len(values) == 0 {
			return condition{}, badValue()
		}
		m, err := newIPMatcher(values)
		if err != nil {
			return condition{}, err
		}
		cond.cost = 2
		cond.match = func(v schema.Value) bool { return m.matches(v.Str) }

	default:
		return condition{}, lqerrors.NewConfigError("query.conditions.op", cc.Op)
	}

	return cond, nil
}

func compileEqual(f schema.Field, raw string) (func(schema.Value) bool, error) {
	switch f.Type {
	case schema.TypeInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, lqerrors.NewConfigError("query.conditions.value", raw)
		}
		return func(v schema.Value) bool { return v.Int == n }, nil
	case schema.TypeFloat:
		fl, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, lqerrors.NewConfigError("query.conditions.value", raw)
		}
		return func(v schema.Value) bool { return v.Float == fl }, nil
	case schema.TypeTime:
		t, err := time.Parse(f.Layout, raw)
		if err != nil {
			return nil, lqerrors.NewConfigError("query.conditions.value", raw)
		}
		return func(v schema.Value) bool { return v.Time.Equal(t) }, nil
	default:
		return func(v schema.Value) bool { return v.Str == raw }, nil
	}
}

// compileCompare returns v <op> threshold as a three-way comparison of the
// field value against the pre-parsed threshold.
func compileCompare(f schema.Field, raw string) (func(schema.Value) int, error) {
	switch f.Type {
	case schema.TypeInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, lqerrors.NewConfigError("query.conditions.value", raw)
		}
		return func(v schema.Value) int {
			switch {
			case v.Int < n:
				return -1
			case v.Int > n:
				return 1
			}
			return 0
		}, nil
	case schema.TypeFloat:
		fl, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, lqerrors.NewConfigError("query.conditions.value", raw)
		}
		return func(v schema.Value) int {
			switch {
			case v.Float < fl:
				return -1
			case v.Float > fl:
				return 1
			}
			return 0
		}, nil
	case schema.TypeTime:
		t, err := time.Parse(f.Layout, raw)
		if err != nil {
			return nil, lqerrors.NewConfigError("query.conditions.value", raw)
		}
		return func(v schema.Value) int {
			switch {
			case v.Time.Before(t):
				return -1
			case v.Time.After(t):
				return 1
			}
			return 0
		}, nil
	default:
		// String fields order lexicographically.
		// 字符串字段按字典序比较。
		return func(v schema.Value) int {
			return strings.Compare(v.Str, raw)
		}, nil
	}
}

// Match evaluates the record against the compiled query. Pure: the same
// FieldSet always yields the same answer. A field required by a condition
// that is absent (missing or failed coercion) simply does not match.
// Match 以编译后的查询对记录求值。纯函数：相同的 FieldSet 总得到相同结果。
// 条件引用的字段缺失（缺列或转换失败）时该记录视为不匹配。
func (s *Spec) Match(fs *schema.FieldSet) bool {
	for _, c := range s.conds {
		v := fs.Index(c.fieldIdx)
		if !v.Present || !c.match(v) {
			return false
		}
	}
	if s.program != nil {
		out, err := expr.Run(s.program, Env{FS: fs})
		if err != nil {
			return false
		}
		matched, ok := out.(bool)
		return ok && matched
	}
	return true
}

// Mode returns the aggregation mode.
func (s *Spec) Mode() Mode { return s.mode }

// GroupIdx returns the group-by field position, -1 when ungrouped.
func (s *Spec) GroupIdx() int { return s.groupIdx }

// SortIdx returns the sort field position, -1 when unsorted output was
// requested (no cross-file ordering is guaranteed then).
func (s *Spec) SortIdx() int { return s.sortIdx }

// SortDesc reports whether the requested ordering is descending.
func (s *Spec) SortDesc() bool { return s.sortDesc }

// Limit returns the maximum number of matches to return, 0 for unlimited.
func (s *Spec) Limit() int { return s.limit }

// ValueLess orders two sort-key values according to the sort field's type.
// ValueLess 按排序字段的类型比较两个排序键。
func (s *Spec) ValueLess(a, b schema.Value) bool {
	switch s.sortType {
	case schema.TypeInt:
		return a.Int < b.Int
	case schema.TypeFloat:
		return a.Float < b.Float
	case schema.TypeTime:
		return a.Time.Before(b.Time)
	default:
		return a.Str < b.Str
	}
}
