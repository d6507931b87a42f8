package config

import (
	"os"
)

// GetEnvOrDefault 获取环境变量，如果不存在则返回默认值
// 这是配置加载的核心函数：环境变量 > 默认值
func GetEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// MustGetEnv 获取环境变量，如果不存在则 panic
// 用于必须配置的敏感信息（如数据库密码）
func MustGetEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic("环境变量 " + key + " 未设置，但它是必需的")
	}
	return value
}

// GetDatabaseURL 构建数据库连接字符串
// 优先级：环境变量中的完整 URL > 配置文件中的 URL
func GetDatabaseURL(envKey, configValue string) string {
	if url := os.Getenv(envKey); url != "" {
		return url
	}

	if configValue != "" {
		return configValue
	}

	// 都没有时返回空字符串，由调用方处理错误
	return ""
}
