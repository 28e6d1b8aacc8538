// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	Migration MigrationConfig `mapstructure:"migration"`
	Cleanup   CleanupConfig   `mapstructure:"cleanup"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Admin     AdminConfig     `mapstructure:"admin"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储元数据目录库 (MySQL) 的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MinIOConfig 存储目标对象存储的配置。
type MinIOConfig struct {
	Endpoint           string `mapstructure:"endpoint"`
	Region             string `mapstructure:"region"`
	AccessKeyID        string `mapstructure:"access_key_id"`
	SecretAccessKey    string `mapstructure:"secret_access_key"`
	UseSSL             bool   `mapstructure:"use_ssl"`
	BucketName         string `mapstructure:"bucket_name"`
	PathStyle          bool   `mapstructure:"path_style"`
	MultipartThreshold int64  `mapstructure:"multipart_threshold"`
	RequestTimeoutSec  int    `mapstructure:"request_timeout_sec"`
}

// MigrationConfig 存储迁移引擎自身的配置。
type MigrationConfig struct {
	// DataRoot 是本地源存储的数据根目录。
	DataRoot string `mapstructure:"data_root"`
	// BackupDir 是迁移前备份的目标目录。
	BackupDir string `mapstructure:"backup_dir"`
	// SourceIdentifier 是目录库中本地源存储的标识符，例如 "local::/var/data/"。
	SourceIdentifier string `mapstructure:"source_identifier"`
	// BatchSize 是每个目录库事务所覆盖的记录数。
	BatchSize int `mapstructure:"batch_size"`
	// VerifyUploads 为 true 时对每次上传做对象大小校验。
	VerifyUploads bool `mapstructure:"verify_uploads"`
	// DeleteMissing 为 true 时删除本地文件缺失的目录库记录。
	DeleteMissing bool `mapstructure:"delete_missing"`
	// UseMaintenance 为 true 时迁移期间开启维护模式。
	UseMaintenance bool `mapstructure:"use_maintenance"`
	// MaintenanceFile 是维护模式标记文件的路径。
	MaintenanceFile string `mapstructure:"maintenance_file"`
	// DryRun 取值 "off" / "full" / "no-transfer"。
	DryRun string `mapstructure:"dry_run"`
}

// CleanupConfig 存储预览缓存清理任务的默认配置。
type CleanupConfig struct {
	MaxAgeDays int `mapstructure:"max_age_days"`
	MaxCount   int `mapstructure:"max_count"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时不发送事件。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// AdminConfig 存储运维接口的管理员凭据（密码为 bcrypt 哈希）。
type AdminConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret           string `mapstructure:"secret"`
	TokenExpireHours int    `mapstructure:"token_expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}

	if err := Conf.Validate(); err != nil {
		panic(fmt.Errorf("配置校验失败: %w", err))
	}
}

// Validate 在任何组件初始化之前校验必填字段，缺失即视为致命的配置错误。
func (c *Config) Validate() error {
	var missing []string
	if c.Database.MySQL.DSN == "" {
		missing = append(missing, "database.mysql.dsn")
	}
	if c.MinIO.Endpoint == "" {
		missing = append(missing, "minio.endpoint")
	}
	if c.MinIO.BucketName == "" {
		missing = append(missing, "minio.bucket_name")
	}
	if c.Migration.DataRoot == "" {
		missing = append(missing, "migration.data_root")
	}
	if c.Migration.SourceIdentifier == "" {
		missing = append(missing, "migration.source_identifier")
	}
	if len(missing) > 0 {
		return fmt.Errorf("缺少必要的配置项: %s", strings.Join(missing, ", "))
	}

	if c.Migration.BatchSize <= 0 {
		c.Migration.BatchSize = 100
	}
	if c.MinIO.RequestTimeoutSec <= 0 {
		c.MinIO.RequestTimeoutSec = 60
	}
	switch c.Migration.DryRun {
	case "", "off", "full", "no-transfer":
	default:
		return fmt.Errorf("无效的 migration.dry_run 取值: %q (可选 off/full/no-transfer)", c.Migration.DryRun)
	}
	return nil
}
