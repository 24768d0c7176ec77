package query

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fanzha/logquery/internal/config"
	"github.com/fanzha/logquery/internal/schema"
	lqerrors "github.com/fanzha/logquery/pkg/errors"
)

func querySchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.Compile(config.SchemaConfig{
		FieldDelimiter: "|",
		Fields: []config.FieldConfig{
			{Name: "ts", Type: "time", Layout: "2006-01-02 15:04:05"},
			{Name: "level", Type: "string"},
			{Name: "src_ip", Type: "string"},
			{Name: "domain", Type: "string"},
			{Name: "code", Type: "int"},
			{Name: "message", Type: "string", Remainder: true},
		},
	})
	require.NoError(t, err)
	return s
}

func extract(t *testing.T, sc *schema.Schema, line string) *schema.FieldSet {
	t.Helper()
	fs := sc.NewFieldSet()
	require.NoError(t, fs.Extract([]byte(line)))
	return fs
}

func TestSpec_Conditions(t *testing.T) {
	sc := querySchema(t)
	line := "2024-01-01 10:30:00|ERROR|192.168.1.77|api.example.com|503|upstream timed out"

	tests := []struct {
		name string
		cfg  config.QueryConfig
		want bool
	}{
		{
			name: "eq hit",
			cfg:  config.QueryConfig{Conditions: []config.ConditionConfig{{Field: "level", Op: "eq", Value: "ERROR"}}},
			want: true,
		},
		{
			name: "eq miss",
			cfg:  config.QueryConfig{Conditions: []config.ConditionConfig{{Field: "level", Op: "eq", Value: "INFO"}}},
			want: false,
		},
		{
			name: "default op is eq",
			cfg:  config.QueryConfig{Conditions: []config.ConditionConfig{{Field: "level", Value: "ERROR"}}},
			want: true,
		},
		{
			name: "ne",
			cfg:  config.QueryConfig{Conditions: []config.ConditionConfig{{Field: "level", Op: "ne", Value: "INFO"}}},
			want: true,
		},
		{
			name: "int ordering",
			cfg:  config.QueryConfig{Conditions: []config.ConditionConfig{{Field: "code", Op: "ge", Value: "500"}}},
			want: true,
		},
		{
			name: "int between",
			cfg:  config.QueryConfig{Conditions: []config.ConditionConfig{{Field: "code", Op: "between", Values: []string{"500", "599"}}}},
			want: true,
		},
		{
			name: "int between miss",
			cfg:  config.QueryConfig{Conditions: []config.ConditionConfig{{Field: "code", Op: "between", Values: []string{"200", "299"}}}},
			want: false,
		},
		{
			name: "string between lexicographic",
			cfg:  config.QueryConfig{Conditions: []config.ConditionConfig{{Field: "level", Op: "between", Values: []string{"A", "M"}}}},
			want: true,
		},
		{
			name: "string le on equal value",
			cfg:  config.QueryConfig{Conditions: []config.ConditionConfig{{Field: "level", Op: "le", Value: "ERROR"}}},
			want: true,
		},
		{
			name: "string lt on equal value",
			cfg:  config.QueryConfig{Conditions: []config.ConditionConfig{{Field: "level", Op: "lt", Value: "ERROR"}}},
			want: false,
		},
		{
			name: "string gt",
			cfg:  config.QueryConfig{Conditions: []config.ConditionConfig{{Field: "domain", Op: "gt", Value: "aaa"}}},
			want: true,
		},
		{
			name: "time window",
			cfg: config.QueryConfig{Conditions: []config.ConditionConfig{
				{Field: "ts", Op: "ge", Value: "2024-01-01 00:00:00"},
				{Field: "ts", Op: "lt", Value: "2024-01-02 00:00:00"},
			}},
			want: true,
		},
		{
			name: "prefix",
			cfg:  config.QueryConfig{Conditions: []config.ConditionConfig{{Field: "message", Op: "prefix", Value: "upstream"}}},
			want: true,
		},
		{
			name: "contains",
			cfg:  config.QueryConfig{Conditions: []config.ConditionConfig{{Field: "message", Op: "contains", Value: "timed out"}}},
			want: true,
		},
		{
			name: "in",
			cfg:  config.QueryConfig{Conditions: []config.ConditionConfig{{Field: "level", Op: "in", Values: []string{"WARN", "ERROR"}}}},
			want: true,
		},
		{
			name: "wildcard domain",
			cfg:  config.QueryConfig{Conditions: []config.ConditionConfig{{Field: "domain", Op: "wildcard", Value: "*.example.com"}}},
			want: true,
		},
		{
			name: "ip cidr",
			cfg:  config.QueryConfig{Conditions: []config.ConditionConfig{{Field: "src_ip", Op: "ip", Value: "192.168.0.0/16"}}},
			want: true,
		},
		{
			name: "ip range miss",
			cfg:  config.QueryConfig{Conditions: []config.ConditionConfig{{Field: "src_ip", Op: "ip", Value: "10.0.0.1-10.0.0.99"}}},
			want: false,
		},
		{
			name: "conjunction short-circuits on miss",
			cfg: config.QueryConfig{Conditions: []config.ConditionConfig{
				{Field: "level", Op: "eq", Value: "INFO"},
				{Field: "message", Op: "contains", Value: "timed out"},
			}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := Compile(tt.cfg, sc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, spec.Match(extract(t, sc, line)))
		})
	}
}

// TestSpec_CheapestFirst verifies compiled conditions are ordered by cost so
// the contains scan runs after the equality checks.
func TestSpec_CheapestFirst(t *testing.T) {
	sc := querySchema(t)
	spec, err := Compile(config.QueryConfig{Conditions: []config.ConditionConfig{
		{Field: "message", Op: "contains", Value: "x"},
		{Field: "src_ip", Op: "ip", Value: "10.0.0.0/8"},
		{Field: "level", Op: "eq", Value: "ERROR"},
	}}, sc)
	require.NoError(t, err)

	require.Len(t, spec.conds, 3)
	assert.Equal(t, "level", spec.conds[0].name)
	assert.Equal(t, "src_ip", spec.conds[1].name)
	assert.Equal(t, "message", spec.conds[2].name)
}

// TestSpec_AbsentFieldNeverMatches covers both a missing column and a failed
// coercion; ne conditions do not match absent fields either.
// TestSpec_AbsentFieldNeverMatches 覆盖缺列与转换失败两种缺失；
// ne 条件对缺失字段同样不匹配。
func TestSpec_AbsentFieldNeverMatches(t *testing.T) {
	sc := querySchema(t)

	spec, err := Compile(config.QueryConfig{Conditions: []config.ConditionConfig{
		{Field: "code", Op: "ne", Value: "0"},
	}}, sc)
	require.NoError(t, err)

	fs := extract(t, sc, "2024-01-01 10:30:00|ERROR|1.2.3.4|d.com|not-a-number|m")
	assert.Equal(t, 1, fs.CoercionFailures())
	assert.False(t, spec.Match(fs))

	short := extract(t, sc, "2024-01-01 10:30:00|ERROR")
	assert.False(t, spec.Match(short))
}

func TestSpec_Expr(t *testing.T) {
	sc := querySchema(t)
	fs := extract(t, sc, "2024-01-01 10:30:00|ERROR|1.2.3.4|d.com|503|upstream timed out")

	t.Run("expression alone", func(t *testing.T) {
		spec, err := Compile(config.QueryConfig{
			Expr: `Field("level") == "ERROR" && Num("code") >= 500`,
		}, sc)
		require.NoError(t, err)
		assert.True(t, spec.Match(fs))
	})

	t.Run("expression anded with conditions", func(t *testing.T) {
		spec, err := Compile(config.QueryConfig{
			Conditions: []config.ConditionConfig{{Field: "level", Op: "eq", Value: "ERROR"}},
			Expr:       `IContains("message", "TIMED") && Has("code")`,
		}, sc)
		require.NoError(t, err)
		assert.True(t, spec.Match(fs))
	})

	t.Run("expression rejects", func(t *testing.T) {
		spec, err := Compile(config.QueryConfig{
			Expr: `Prefix("message", "downstream")`,
		}, sc)
		require.NoError(t, err)
		assert.False(t, spec.Match(fs))
	})

	t.Run("compile error", func(t *testing.T) {
		_, err := Compile(config.QueryConfig{Expr: `Field("level" ==`}, sc)
		require.Error(t, err)
		assert.True(t, errors.Is(err, lqerrors.ErrConfigInvalid))
	})
}

func TestSpec_EmptyQueryMatchesAll(t *testing.T) {
	sc := querySchema(t)
	spec, err := Compile(config.QueryConfig{}, sc)
	require.NoError(t, err)
	assert.Equal(t, ModeEnumerate, spec.Mode())
	assert.True(t, spec.Match(extract(t, sc, "2024-01-01 10:30:00|INFO|1.1.1.1|a.com|200|ok")))
}

func TestCompile_Errors(t *testing.T) {
	sc := querySchema(t)
	tests := []struct {
		name string
		cfg  config.QueryConfig
	}{
		{"unknown mode", config.QueryConfig{Mode: "histogram"}},
		{"group mode without group_by", config.QueryConfig{Mode: "group"}},
		{"unknown group field", config.QueryConfig{Mode: "group", GroupBy: "nope"}},
		{"unknown sort field", config.QueryConfig{SortBy: "nope"}},
		{"unknown condition field", config.QueryConfig{Conditions: []config.ConditionConfig{{Field: "nope", Value: "x"}}}},
		{"unknown op", config.QueryConfig{Conditions: []config.ConditionConfig{{Field: "level", Op: "regex", Value: "x"}}}},
		{"between needs two values", config.QueryConfig{Conditions: []config.ConditionConfig{{Field: "code", Op: "between", Value: "1"}}}},
		{"bad int literal", config.QueryConfig{Conditions: []config.ConditionConfig{{Field: "code", Op: "eq", Value: "abc"}}}},
		{"bad time literal", config.QueryConfig{Conditions: []config.ConditionConfig{{Field: "ts", Op: "ge", Value: "January"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.cfg, sc)
			require.Error(t, err)
			assert.True(t, errors.Is(err, lqerrors.ErrConfigInvalid))
		})
	}
}

func TestSpec_SortAndLimit(t *testing.T) {
	sc := querySchema(t)
	spec, err := Compile(config.QueryConfig{
		Mode:     "enumerate",
		SortBy:   "code",
		SortDesc: true,
		Limit:    10,
	}, sc)
	require.NoError(t, err)

	assert.Equal(t, sc.Index("code"), spec.SortIdx())
	assert.True(t, spec.SortDesc())
	assert.Equal(t, 10, spec.Limit())
	assert.True(t, spec.ValueLess(schema.Value{Int: 1}, schema.Value{Int: 2}))
	assert.False(t, spec.ValueLess(schema.Value{Int: 2}, schema.Value{Int: 1}))
}
