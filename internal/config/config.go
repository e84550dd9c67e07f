// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Host    string // 待ち受けホスト
	Port    int    // 待ち受けポート（0 の場合は空きポートを自動選択）
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// 翻訳ジョブ設定
	SupportedServices []string // 受け付ける翻訳サービス
	DefaultLangIn     string   // lang_in 省略時の原文言語
	DefaultLangOut    string   // lang_out 省略時の訳文言語
	DefaultQPS        int      // バックエンドへのQPS上限
	DefaultThreads    int      // 翻訳スレッド数
	TranslatorCommand string   // 外部翻訳コマンドのパス
	ScratchDir        string   // 作業ディレクトリの親（空ならOSの一時ディレクトリ）

	// ジョブ/イベント設定
	EventPollInterval time.Duration // SSE読み出し時の再確認間隔
	JobExpireMinutes  int           // 完了ジョブの保持期間（分、0 なら削除しない）
	ShutdownTimeout   time.Duration // グレースフルシャットダウンの猶予

	// ステータスミラー設定
	StatusRedisURL   string // ジョブ状態を書き出すRedis（空なら無効）
	StatusTTLMinutes int    // ミラーしたキーのTTL（分）

	// ログ設定
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HOST", "127.0.0.1")
	v.SetDefault("PORT", 0)
	v.SetDefault("GIN_MODE", "release")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("SUPPORTED_SERVICES", "google,bing")
	v.SetDefault("DEFAULT_LANG_IN", "en")
	v.SetDefault("DEFAULT_LANG_OUT", "zh")
	v.SetDefault("DEFAULT_QPS", 4)
	v.SetDefault("DEFAULT_THREADS", 4)
	v.SetDefault("TRANSLATOR_COMMAND", "pdf2zh-runner")
	v.SetDefault("SCRATCH_DIR", "")
	v.SetDefault("EVENT_POLL_INTERVAL_MS", 1000)
	v.SetDefault("JOB_EXPIRE_MINUTES", 0)
	v.SetDefault("SHUTDOWN_TIMEOUT_SECONDS", 10)
	v.SetDefault("STATUS_REDIS_URL", "")
	v.SetDefault("STATUS_TTL_MINUTES", 10)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

// NewViper は既定値と環境変数を設定済みの viper インスタンスを返します。
// コマンドラインフラグはこのインスタンスにバインドしてから Load に渡します。
func NewViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load(v *viper.Viper) (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	if v == nil {
		v = NewViper()
	}

	config := &Config{
		Host:    strings.TrimSpace(v.GetString("HOST")),
		Port:    v.GetInt("PORT"),
		GinMode: v.GetString("GIN_MODE"),

		CORSAllowedOrigins: v.GetString("CORS_ALLOWED_ORIGINS"),

		SupportedServices: splitList(v.GetString("SUPPORTED_SERVICES")),
		DefaultLangIn:     strings.TrimSpace(v.GetString("DEFAULT_LANG_IN")),
		DefaultLangOut:    strings.TrimSpace(v.GetString("DEFAULT_LANG_OUT")),
		DefaultQPS:        v.GetInt("DEFAULT_QPS"),
		DefaultThreads:    v.GetInt("DEFAULT_THREADS"),
		TranslatorCommand: strings.TrimSpace(v.GetString("TRANSLATOR_COMMAND")),
		ScratchDir:        strings.TrimSpace(v.GetString("SCRATCH_DIR")),

		EventPollInterval: time.Duration(v.GetInt("EVENT_POLL_INTERVAL_MS")) * time.Millisecond,
		JobExpireMinutes:  v.GetInt("JOB_EXPIRE_MINUTES"),
		ShutdownTimeout:   time.Duration(v.GetInt("SHUTDOWN_TIMEOUT_SECONDS")) * time.Second,

		StatusRedisURL:   strings.TrimSpace(v.GetString("STATUS_REDIS_URL")),
		StatusTTLMinutes: v.GetInt("STATUS_TTL_MINUTES"),

		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 0 and 65535 (got %d)", c.Port)
	}
	if len(c.SupportedServices) == 0 {
		return fmt.Errorf("SUPPORTED_SERVICES must not be empty")
	}
	if c.TranslatorCommand == "" {
		return fmt.Errorf("TRANSLATOR_COMMAND is required")
	}
	if c.EventPollInterval <= 0 {
		return fmt.Errorf("EVENT_POLL_INTERVAL_MS must be > 0")
	}
	if c.DefaultThreads <= 0 {
		return fmt.Errorf("DEFAULT_THREADS must be > 0")
	}
	if c.DefaultQPS < 0 {
		return fmt.Errorf("DEFAULT_QPS must not be negative")
	}
	if c.JobExpireMinutes < 0 {
		return fmt.Errorf("JOB_EXPIRE_MINUTES must not be negative")
	}
	if c.StatusTTLMinutes < 0 {
		return fmt.Errorf("STATUS_TTL_MINUTES must not be negative")
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT_SECONDS must not be negative")
	}
	return nil
}

// Addr は net.Listen に渡すアドレスを返します。
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// JobExpiry は完了ジョブの保持期間を返します（0 は無期限）。
func (c *Config) JobExpiry() time.Duration {
	return time.Duration(c.JobExpireMinutes) * time.Minute
}

// IsSupportedService は service が受け付け対象かどうかを返します。
func (c *Config) IsSupportedService(service string) bool {
	service = strings.ToLower(strings.TrimSpace(service))
	if service == "" {
		return false
	}
	for _, s := range c.SupportedServices {
		if s == service {
			return true
		}
	}
	return false
}

// splitList はカンマ区切りの文字列を小文字・空要素除去済みの配列に変換します。
func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
