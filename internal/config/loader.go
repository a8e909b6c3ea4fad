// Package config 提供配置加载功能
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// placeholderRe 匹配 ${VAR} 与 ${VAR:default}
var placeholderRe = regexp.MustCompile(`\${(\w+)(:([^}]*))?}`)

// Load 加载配置。优先级从低到高：
// 内置默认值 < configs/config.yaml < configs/config.<env>.yaml < 环境变量
func Load() (*Config, error) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	files := []struct {
		path     string
		optional bool
	}{
		{"configs/config.yaml", false},
		{fmt.Sprintf("configs/config.%s.yaml", env), true},
	}
	merged := false
	for _, f := range files {
		raw, err := os.ReadFile(f.path)
		if err != nil {
			if f.optional && os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read config file %s: %w", f.path, err)
		}
		reader := strings.NewReader(expandEnv(string(raw)))
		if !merged {
			if err := v.ReadConfig(reader); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", f.path, err)
			}
			merged = true
		} else if err := v.MergeConfig(reader); err != nil {
			return nil, fmt.Errorf("failed to merge config %s: %w", f.path, err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// expandEnv 用环境变量替换占位符；无值且无默认时原样保留
func expandEnv(s string) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := placeholderRe.FindStringSubmatch(match)
		if val, ok := os.LookupEnv(parts[1]); ok {
			return val
		}
		if parts[2] != "" {
			return parts[3]
		}
		return match
	})
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	// 应用默认值
	v.SetDefault("app.name", "contentforge-ai-api")
	v.SetDefault("app.version", "v0.0.0")
	v.SetDefault("app.env", "development")

	// HTTP 服务器默认值
	v.SetDefault("server.http.host", "0.0.0.0")
	v.SetDefault("server.http.port", 8080)
	v.SetDefault("server.http.read_timeout", "30s")
	v.SetDefault("server.http.write_timeout", "120s")
	v.SetDefault("server.http.idle_timeout", "120s")

	// 数据库默认值
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.database", "contentforge")
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 50)
	v.SetDefault("database.postgres.max_idle_conns", 10)
	v.SetDefault("database.postgres.conn_max_lifetime", "30m")
	v.SetDefault("database.postgres.conn_max_idle_time", "5m")

	// Redis 默认值
	v.SetDefault("cache.redis.host", "localhost")
	v.SetDefault("cache.redis.port", 6379)
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.pool_size", 100)
	v.SetDefault("cache.redis.min_idle_conns", 10)
	v.SetDefault("cache.redis.dial_timeout", "5s")
	v.SetDefault("cache.redis.read_timeout", "3s")
	v.SetDefault("cache.redis.write_timeout", "3s")

	// 生成引擎默认值
	v.SetDefault("generation.default_provider", "openai")
	v.SetDefault("generation.default_model", "gpt-4o")
	v.SetDefault("generation.batch_size", 5)
	v.SetDefault("generation.verticals", []string{
		"technology", "healthcare", "finance", "education", "retail",
	})
	v.SetDefault("generation.usage.flush_interval", "30s")
	v.SetDefault("generation.usage.flush_size", 50)
	v.SetDefault("generation.context.cache_ttl", "30m")
	v.SetDefault("generation.context.cache_max_size", 256)
	v.SetDefault("generation.context.max_tokens", 8000)
	v.SetDefault("generation.tree.cache_enabled", true)
	v.SetDefault("generation.tree.cache_ttl", "10m")

	// 可观测性默认值
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
	v.SetDefault("observability.tracing.sample_rate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.path", "/metrics")

	// 安全默认值
	v.SetDefault("security.encryption_secret", "dev-only-secret")
}
