// Package config loads pipeline configuration from environment
// variables (TEXT2SQL_ prefixed) and an optional config file, via
// viper, mirroring the settings object the original engine wired
// everything from.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings holds every tunable the engine, planner, and executor need.
type Settings struct {
	AppName string

	SchemaKBPath   string
	JoinKBPath     string
	MetricKBPath   string
	TemplateKBPath string
	AuditLogPath   string

	LLMMode         string // "mock", "no_llm", "real"
	LLMBaseURL      string
	LLMAPIKey       string
	LLMModel        string
	LLMTimeout      time.Duration
	LLMMaxRetries   int
	LLMForceJSON    bool
	LLMPlanTrimTopK int
	LLMRetryOnTimeout bool

	UseMockDB     bool
	FixedMetricID string

	// ReconstructOnEmptyRetrieval controls whether the LLM planning path
	// reconstructs empty evidence lists from the full knowledge base, the
	// way the no_llm path always does. See planner.Config for the full
	// rationale.
	ReconstructOnEmptyRetrieval bool

	MySQLHost           string
	MySQLPort           int
	MySQLUser           string
	MySQLPassword       string
	MySQLDatabase       string
	MySQLConnectTimeout time.Duration
	MySQLReadTimeout    time.Duration
	MySQLMaxOpenConns   int
	MySQLMaxIdleConns   int

	RAGTopK       int
	RAGTopKSecond int
}

// Load reads configuration from the environment (TEXT2SQL_ prefix),
// optionally merging a config file at configPath if non-empty, and
// returns it with defaults applied for anything unset.
func Load(configPath string) (Settings, error) {
	v := viper.New()
	v.SetEnvPrefix("TEXT2SQL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, err
		}
	}

	return Settings{
		AppName: v.GetString("app_name"),

		SchemaKBPath:   v.GetString("schema_kb_path"),
		JoinKBPath:     v.GetString("join_kb_path"),
		MetricKBPath:   v.GetString("metric_kb_path"),
		TemplateKBPath: v.GetString("template_kb_path"),
		AuditLogPath:   v.GetString("audit_log_path"),

		LLMMode:           v.GetString("llm_mode"),
		LLMBaseURL:        v.GetString("llm_base_url"),
		LLMAPIKey:         v.GetString("llm_api_key"),
		LLMModel:          v.GetString("llm_model"),
		LLMTimeout:        v.GetDuration("llm_timeout"),
		LLMMaxRetries:     v.GetInt("llm_max_retries"),
		LLMForceJSON:      v.GetBool("llm_force_json"),
		LLMPlanTrimTopK:   v.GetInt("llm_plan_trim_top_k"),
		LLMRetryOnTimeout: v.GetBool("llm_plan_retry_on_timeout"),

		UseMockDB:     v.GetBool("use_mock_db"),
		FixedMetricID: v.GetString("fixed_metric_id"),

		ReconstructOnEmptyRetrieval: v.GetBool("reconstruct_on_empty_retrieval"),

		MySQLHost:           v.GetString("mysql_host"),
		MySQLPort:           v.GetInt("mysql_port"),
		MySQLUser:           v.GetString("mysql_user"),
		MySQLPassword:       v.GetString("mysql_password"),
		MySQLDatabase:       v.GetString("mysql_database"),
		MySQLConnectTimeout: v.GetDuration("mysql_connect_timeout"),
		MySQLReadTimeout:    v.GetDuration("mysql_read_timeout"),
		MySQLMaxOpenConns:   v.GetInt("mysql_max_open_conns"),
		MySQLMaxIdleConns:   v.GetInt("mysql_max_idle_conns"),

		RAGTopK:       v.GetInt("rag_top_k"),
		RAGTopKSecond: v.GetInt("rag_top_k_second"),
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "text2sql")
	v.SetDefault("schema_kb_path", "data/schema_kb.json")
	v.SetDefault("join_kb_path", "data/join_kb.json")
	v.SetDefault("metric_kb_path", "data/metric_kb.json")
	v.SetDefault("template_kb_path", "data/template_kb.json")
	v.SetDefault("audit_log_path", "audit.log.jsonl")

	v.SetDefault("llm_mode", "mock")
	v.SetDefault("llm_timeout", 30*time.Second)
	v.SetDefault("llm_max_retries", 2)
	v.SetDefault("llm_force_json", true)
	v.SetDefault("llm_plan_trim_top_k", 2)
	v.SetDefault("llm_plan_retry_on_timeout", true)

	v.SetDefault("use_mock_db", true)
	v.SetDefault("reconstruct_on_empty_retrieval", false)

	v.SetDefault("mysql_port", 3306)
	v.SetDefault("mysql_connect_timeout", 5*time.Second)
	v.SetDefault("mysql_read_timeout", 30*time.Second)
	v.SetDefault("mysql_max_open_conns", 10)
	v.SetDefault("mysql_max_idle_conns", 5)

	v.SetDefault("rag_top_k", 5)
	v.SetDefault("rag_top_k_second", 8)
}
