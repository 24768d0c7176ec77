package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/fanzha/logquery/internal/utils/logger"
	lqerrors "github.com/fanzha/logquery/pkg/errors"
)

// DefaultConfigPath is used when --config is not given.
// DefaultConfigPath 在未指定 --config 时使用。
const DefaultConfigPath = "/etc/logquery/config.yaml"

// FieldConfig declares one positional field of the record schema.
// FieldConfig 声明记录模式中的一个位置字段。
type FieldConfig struct {
	Name string `yaml:"name"`
	// Type: string（默认）, int, float, time
	Type string `yaml:"type"`
	// Layout: 时间字段的解析格式（Go 布局），默认 "2006-01-02 15:04:05"
	Layout string `yaml:"layout"`
	// Required: 缺失该字段的记录整条按 SchemaMismatch 跳过
	Required bool `yaml:"required"`
	// Remainder: 仅允许最后一个字段使用；多余的 token 连同分隔符并回该字段
	Remainder bool `yaml:"remainder"`
}

// SchemaConfig declares how records and fields are delimited.
// SchemaConfig 声明记录与字段的切分方式。
type SchemaConfig struct {
	// RecordDelimiter: 记录分隔符，默认换行；支持多字节
	RecordDelimiter string `yaml:"record_delimiter"`
	// FieldDelimiter: 字段分隔符，默认 "|"
	FieldDelimiter string `yaml:"field_delimiter"`
	// KeepEmptyRecords: 是否保留连续分隔符之间的空记录
	KeepEmptyRecords bool          `yaml:"keep_empty_records"`
	Fields           []FieldConfig `yaml:"fields"`
}

// ConditionConfig is one structured filter condition.
// ConditionConfig 是一个结构化过滤条件。
type ConditionConfig struct {
	Field string `yaml:"field"`
	// Op: eq, ne, lt, le, gt, ge, between, prefix, contains, wildcard, ip, in
	Op    string   `yaml:"op"`
	Value string   `yaml:"value"`
	// Values: between 的上下界，或 in / ip 的多个候选值
	Values []string `yaml:"values"`
}

// QueryConfig is the user-facing query specification.
// QueryConfig 是面向用户的查询规格。
type QueryConfig struct {
	Conditions []ConditionConfig `yaml:"conditions"`
	// Expr: 可选的自由表达式（expr-lang），与结构化条件取 AND
	Expr string `yaml:"expr"`
	// Mode: enumerate（默认）, count, group
	Mode string `yaml:"mode"`
	// GroupBy: group 模式下的分组字段
	GroupBy string `yaml:"group_by"`
	// SortBy: enumerate 模式下可选的排序字段；为空则不保证跨文件顺序
	SortBy   string `yaml:"sort_by"`
	SortDesc bool   `yaml:"sort_desc"`
	// Limit: enumerate 模式下返回的最大匹配数，0 表示不限制
	Limit int `yaml:"limit"`
	// OutputFile: 匹配记录的原始内容另存到该文件（enumerate 模式）
	OutputFile string `yaml:"output_file"`
}

// Config is the root configuration object. It is validated once at startup
// and treated as immutable for the rest of the run.
// Config 是根配置对象。启动时校验一次，运行期间视为不可变。
type Config struct {
	// LogDirectory: 待扫描的日志根目录
	LogDirectory string `yaml:"log_directory"`
	// Recursive: 是否递归枚举子目录，默认 true
	Recursive *bool `yaml:"recursive"`
	// WorkerPoolSize: 工作协程数，0 表示使用可用 CPU 核数
	WorkerPoolSize int `yaml:"worker_pool_size"`
	// FileNameFilters: 文件名子串过滤（如按天/小时命名的日志分片）
	FileNameFilters []string `yaml:"file_name_filters"`

	Schema  SchemaConfig         `yaml:"schema"`
	Query   QueryConfig          `yaml:"query"`
	Logging logger.LoggingConfig `yaml:"logging"`

	// MetricsListen: 非空时在该地址暴露 Prometheus /metrics
	MetricsListen string `yaml:"metrics_listen"`
	// ProgressInterval: 进度日志间隔，Go duration 字符串，默认 30s
	ProgressInterval string `yaml:"progress_interval"`
}

// DefaultConfigTemplate is written by `logquery init`.
// DefaultConfigTemplate 由 `logquery init` 写出。
const DefaultConfigTemplate = `# logquery configuration / logquery 配置文件

# Root directory to scan / 待扫描的日志根目录
log_directory: "/var/log/app"

# Recurse into subdirectories / 是否递归子目录
recursive: true

# 0 = use all available CPU cores / 0 表示使用全部可用核
worker_pool_size: 0

# Only scan files whose name contains one of these substrings.
# Empty list scans everything.
# 仅扫描文件名包含以下任一子串的文件，空列表扫描全部。
file_name_filters: []

schema:
  # Record delimiter, multi-byte allowed / 记录分隔符，支持多字节
  record_delimiter: "\n"
  # Field delimiter inside a record / 记录内字段分隔符
  field_delimiter: "|"
  keep_empty_records: false
  fields:
    - name: "ts"
      type: "time"
      layout: "2006-01-02 15:04:05"
    - name: "level"
      required: true
    - name: "source_ip"
    - name: "domain"
    - name: "message"
      # Excess tokens are joined back into the last field.
      # 多余的 token 会并回最后一个字段。
      remainder: true

query:
  # Structured conditions are ANDed together / 结构化条件之间取 AND
  conditions:
    - field: "level"
      op: "eq"
      value: "ERROR"
    # - field: "source_ip"
    #   op: "ip"
    #   values: ["10.0.0.0/8", "192.168.1.10"]
    # - field: "domain"
    #   op: "wildcard"
    #   value: "*.example.com"
  # Optional free-form predicate / 可选自由表达式
  # expr: 'Num("status") >= 500 && Has("domain")'
  expr: ""
  # enumerate | count | group
  mode: "enumerate"
  group_by: ""
  sort_by: ""
  sort_desc: false
  limit: 0
  output_file: ""

logging:
  enabled: false
  level: "info"
  path: "/var/log/logquery/logquery.log"
  max_size: 100
  max_backups: 3
  max_age: 7
  compress: true

metrics_listen: ""
progress_interval: "30s"
`

// Load reads and validates the configuration file.
// Load 读取并校验配置文件。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", lqerrors.ErrConfigNotFound, path)
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", lqerrors.ErrConfigInvalid, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Schema.RecordDelimiter == "" {
		c.Schema.RecordDelimiter = "\n"
	}
	if c.Schema.FieldDelimiter == "" {
		c.Schema.FieldDelimiter = "|"
	}
	if c.Query.Mode == "" {
		c.Query.Mode = "enumerate"
	}
	if c.ProgressInterval == "" {
		c.ProgressInterval = "30s"
	}
	for i := range c.Schema.Fields {
		if c.Schema.Fields[i].Type == "" {
			c.Schema.Fields[i].Type = "string"
		}
		if c.Schema.Fields[i].Type == "time" && c.Schema.Fields[i].Layout == "" {
			c.Schema.Fields[i].Layout = "2006-01-02 15:04:05"
		}
	}
}

// Validate checks invariants that the engine relies on.
// Validate 检查引擎依赖的各项约束。
func (c *Config) Validate() error {
	if c.LogDirectory == "" {
		return lqerrors.NewConfigError("log_directory", c.LogDirectory)
	}
	if c.WorkerPoolSize < 0 {
		return lqerrors.NewConfigError("worker_pool_size", c.WorkerPoolSize)
	}
	if len(c.Schema.Fields) == 0 {
		return lqerrors.NewConfigError("schema.fields", "empty")
	}
	if c.Schema.RecordDelimiter == c.Schema.FieldDelimiter {
		return lqerrors.NewConfigError("schema.field_delimiter", "must differ from record_delimiter")
	}

	seen := make(map[string]struct{}, len(c.Schema.Fields))
	for i, f := range c.Schema.Fields {
		if f.Name == "" {
			return lqerrors.NewConfigError("schema.fields.name", "empty")
		}
		if _, dup := seen[f.Name]; dup {
			return lqerrors.NewConfigError("schema.fields.name", f.Name)
		}
		seen[f.Name] = struct{}{}
		switch f.Type {
		case "string", "int", "float", "time":
		default:
			return lqerrors.NewConfigError("schema.fields.type", f.Type)
		}
		if f.Remainder && i != len(c.Schema.Fields)-1 {
			return lqerrors.NewConfigError("schema.fields.remainder", f.Name)
		}
	}

	switch c.Query.Mode {
	case "enumerate", "count", "group":
	default:
		return lqerrors.NewConfigError("query.mode", c.Query.Mode)
	}
	if c.Query.Mode == "group" && c.Query.GroupBy == "" {
		return lqerrors.NewConfigError("query.group_by", "required in group mode")
	}
	if c.Query.GroupBy != "" {
		if _, ok := seen[c.Query.GroupBy]; !ok {
			return lqerrors.NewConfigError("query.group_by", c.Query.GroupBy)
		}
	}
	if c.Query.SortBy != "" {
		if _, ok := seen[c.Query.SortBy]; !ok {
			return lqerrors.NewConfigError("query.sort_by", c.Query.SortBy)
		}
	}
	for _, cond := range c.Query.Conditions {
		if _, ok := seen[cond.Field]; !ok {
			return lqerrors.NewConfigError("query.conditions.field", cond.Field)
		}
	}
	return nil
}

// IsRecursive resolves the recursive flag with its default.
// IsRecursive 解析 recursive 配置项（默认 true）。
func (c *Config) IsRecursive() bool {
	return c.Recursive == nil || *c.Recursive
}

// WriteDefault writes the default template, refusing to clobber an existing file.
// WriteDefault 写出默认模板，拒绝覆盖已有文件。
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s already exists", lqerrors.ErrConfigInvalid, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(DefaultConfigTemplate), 0644)
}
