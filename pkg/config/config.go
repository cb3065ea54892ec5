// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"docconv/pkg/secrets"
)

// Config 应用配置结构体
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Conversion ConversionConfig `mapstructure:"conversion"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Secrets    SecretsConfig    `mapstructure:"secrets"`
}

// APIConfig API 服务配置
type APIConfig struct {
	Port       int              `mapstructure:"port"`
	Host       string           `mapstructure:"host"`
	Timeout    string           `mapstructure:"timeout"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Middleware MiddlewareConfig `mapstructure:"middleware"`
	MaxUpload  int64            `mapstructure:"max_upload"` // 上传字节上限，<=0 使用默认 64MB
}

// CORSConfig CORS 配置
type CORSConfig struct {
	Enable       bool     `mapstructure:"enable"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// MiddlewareConfig 中间件配置
type MiddlewareConfig struct {
	Auth          bool   `mapstructure:"auth"`
	RateLimit     bool   `mapstructure:"rate_limit"`
	RateLimitRPS  int    `mapstructure:"rate_limit_rps"`
	JWTKey        string `mapstructure:"jwt_key"`
	JWTTimeout    string `mapstructure:"jwt_timeout"`     // 如 "1h"
	JWTMaxRefresh string `mapstructure:"jwt_max_refresh"` // 如 "1h"
	// JWTUsers 登录用户名到口令，口令可用 secret:// 引用
	JWTUsers map[string]string `mapstructure:"jwt_users"`
}

// ConversionConfig 转换管线配置
type ConversionConfig struct {
	Workers           int       `mapstructure:"workers"`             // 引擎 worker 池大小，<=0 使用 CPU 数
	MinimumMatchScore float64   `mapstructure:"minimum_match_score"` // 校验通过阈值，<=0 使用 0.9
	AutoVerify        *bool     `mapstructure:"auto_verify"`         // 未配置时默认 true
	TempDir           string    `mapstructure:"temp_dir"`            // 工作文件目录，空则使用系统临时目录
	PDFLicenseKey     string    `mapstructure:"pdf_license_key"`     // unipdf metered key，可用 secret:// 引用
	OCR               OCRConfig `mapstructure:"ocr"`
}

// OCRConfig tesseract 配置
type OCRConfig struct {
	Enable    bool   `mapstructure:"enable"`
	Tesseract string `mapstructure:"tesseract"` // 可执行文件，空则 "tesseract"
	Lang      string `mapstructure:"lang"`      // 默认 "eng"
	PSM       int    `mapstructure:"psm"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Metadata MetadataConfig `mapstructure:"metadata"`
	Object   ObjectConfig   `mapstructure:"object"`
	Cache    CacheConfig    `mapstructure:"cache"`
}

// MetadataConfig 文档记录存储配置
type MetadataConfig struct {
	Type     string `mapstructure:"type"` // memory | sqlite | postgres
	DSN      string `mapstructure:"dsn"`
	PoolSize int    `mapstructure:"pool_size"`
}

// ObjectConfig 文档字节存储配置
type ObjectConfig struct {
	Type string `mapstructure:"type"` // memory | file
	Root string `mapstructure:"root"` // type=file 时的根目录
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Type     string `mapstructure:"type"` // memory | redis
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
	TTL      string `mapstructure:"ttl"` // 如 "10m"，空则不过期
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
	Output string `mapstructure:"output"` // stdout | stderr
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
	Port   int  `mapstructure:"port"`
}

// SecretsConfig Secret 提供方配置
type SecretsConfig struct {
	Provider string            `mapstructure:"provider"` // memory | env | vault
	Config   map[string]string `mapstructure:"config"`
}

// AutoVerifyEnabled 返回 auto_verify，未配置时为 true
func (c ConversionConfig) AutoVerifyEnabled() bool {
	if c.AutoVerify == nil {
		return true
	}
	return *c.AutoVerify
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	if err := replaceEnvVars(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadAPIConfig 加载 API 配置（configs/api.yaml，可由 DOCCONV_CONFIG 覆盖路径）
func LoadAPIConfig() (*Config, error) {
	if p := os.Getenv("DOCCONV_CONFIG"); p != "" {
		return LoadConfig(p)
	}
	return LoadConfig("configs/api.yaml")
}

// ResolveSecrets 将 secret://key 形式的字段通过 Secret Store 解析为实际值
func ResolveSecrets(ctx context.Context, config *Config, store secrets.Store) error {
	if config == nil || store == nil {
		return nil
	}
	fields := []*string{
		&config.Storage.Metadata.DSN,
		&config.Storage.Cache.Password,
		&config.Conversion.PDFLicenseKey,
		&config.API.Middleware.JWTKey,
	}
	for _, f := range fields {
		if err := resolveSecret(ctx, store, f); err != nil {
			return err
		}
	}
	for user, pass := range config.API.Middleware.JWTUsers {
		if err := resolveSecret(ctx, store, &pass); err != nil {
			return err
		}
		config.API.Middleware.JWTUsers[user] = pass
	}
	return nil
}

func resolveSecret(ctx context.Context, store secrets.Store, f *string) error {
	key, ok := strings.CutPrefix(*f, "secret://")
	if !ok {
		return nil
	}
	val, err := store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("解析 secret %q 失败: %w", key, err)
	}
	*f = val
	return nil
}

// replaceEnvVars 替换配置中的 ${VAR} 环境变量
func replaceEnvVars(config *Config) error {
	fields := []*string{
		&config.Storage.Metadata.DSN,
		&config.Storage.Cache.Addr,
		&config.Storage.Cache.Password,
		&config.Storage.Object.Root,
		&config.Conversion.PDFLicenseKey,
		&config.API.Middleware.JWTKey,
		&config.Monitoring.Tracing.ExportEndpoint,
	}
	for _, f := range fields {
		if strings.HasPrefix(*f, "${") && strings.HasSuffix(*f, "}") {
			envVar := strings.TrimSuffix(strings.TrimPrefix(*f, "${"), "}")
			if val := os.Getenv(envVar); val != "" {
				*f = val
			}
		}
	}
	return nil
}
