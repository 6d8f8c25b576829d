package config

import (
    "log"
    "os"

    "github.com/joho/godotenv"
    "gopkg.in/yaml.v2"
)

type Config struct {
    Server struct {
        Port string `yaml:"port"`
    } `yaml:"server"`
    MySQL struct {
        DSN string `yaml:"dsn"`
    } `yaml:"mysql"`
    Admin struct {
        Token string `yaml:"token"`
    } `yaml:"admin"`

    Providers struct {
        // 视频生成服务 (Sora2API 兼容)
        VideoGenAPI string `yaml:"video_gen_api"`
        // 视频渲染/合并服务 (Shotstack 兼容)
        VideoRenderAPI string `yaml:"video_render_api"`
        // 剧本分析 LLM 服务 (chat completions 兼容)
        ScriptAnalysisAPI   string `yaml:"script_analysis_api"`
        ScriptAnalysisModel string `yaml:"script_analysis_model"`
    } `yaml:"providers"`

    Poller struct {
        // 场景轮询间隔（秒），默认 5
        IntervalSeconds int `yaml:"interval_seconds"`
    } `yaml:"poller"`

    Redis struct {
        Addr     string `yaml:"addr"`
        Password string `yaml:"password"`
    } `yaml:"redis"`
    MinIO struct {
        Endpoint  string `yaml:"endpoint"`
        AccessKey string `yaml:"access_key"`
        SecretKey string `yaml:"secret_key"`
        Bucket    string `yaml:"bucket"`
        UseSSL    bool   `yaml:"use_ssl"`
        Domain    string `yaml:"domain"`
    } `yaml:"minio"`
}

var AppConfig *Config

func InitConfig() {
    // .env 里放各服务的兜底密钥（数据库无可用 key 时由轮换器读取）
    if err := godotenv.Load(); err != nil {
        log.Printf(".env 未加载（可忽略）: %v", err)
    }

    f, err := os.Open("config/config.yaml")
    if err != nil {
        log.Fatalf("配置文件读取失败: %v", err)
    }
    defer f.Close()
    decoder := yaml.NewDecoder(f)
    AppConfig = &Config{}
    if err := decoder.Decode(AppConfig); err != nil {
        log.Fatalf("配置文件解析失败: %v", err)
    }
    if AppConfig.Poller.IntervalSeconds <= 0 {
        AppConfig.Poller.IntervalSeconds = 5
    }
}
