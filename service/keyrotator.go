package service

import (
	"fmt"
	"log"
	"os"
	"strings"

	"Script2Video-server/models"
)

// KeyStore 轮换器依赖的凭证存取层（models.KeyStore 为 gorm 实现）
type KeyStore interface {
	ListActive(service string) ([]models.ApiKey, error)
	RecordSuccess(keyID string) error
	RecordError(keyID string) error
}

// 环境变量兜底 key 的记录 id，计数器不落库
const envKeyID = "env"

// keyFaultPatterns key 类故障的错误文案特征（大小写不敏感的子串匹配）。
// 判定逻辑独立成 IsKeyFault，方便按服务扩展与单测。
var keyFaultPatterns = []string{
	"unauthorized",
	"invalid",
	"quota",
	"rate limit",
	"insufficient",
	"expired",
	"authentication",
	"forbidden",
}

// IsKeyFault 判断错误是否归因于凭证本身（配额/过期/未授权等）。
// 非 key 类故障（参数校验、网络错误）换 key 重试只会浪费调用并掩盖真实问题。
func IsKeyFault(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range keyFaultPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// Rotator 多 key 轮换执行器。每次外呼付费服务都经由 WithRotation。
type Rotator struct {
	Store KeyStore
	// EnvLookup 兜底密钥查找，默认 os.Getenv，测试可替换
	EnvLookup func(name string) string
}

func NewRotator(store KeyStore) *Rotator {
	return &Rotator{Store: store, EnvLookup: os.Getenv}
}

// envKeyName "video-generation" -> "VIDEO_GENERATION_API_KEY"
func envKeyName(service string) string {
	return strings.ToUpper(strings.ReplaceAll(service, "-", "_")) + "_API_KEY"
}

// candidateKeys 取偏好排序后的可用 key；库不可用或为空时回退环境变量
func (r *Rotator) candidateKeys(service string) []models.ApiKey {
	keys, err := r.Store.ListActive(service)
	if err != nil {
		log.Printf("[Rotator] 读取 %s 的 key 失败, 回退环境变量: %v", service, err)
		keys = nil
	}
	if len(keys) > 0 {
		return keys
	}
	if envKey := r.EnvLookup(envKeyName(service)); envKey != "" {
		return []models.ApiKey{{ID: envKeyID, ServiceName: service, ApiKey: envKey, IsActive: true}}
	}
	return nil
}

// WithRotation 按偏好顺序逐个尝试 key 执行 operation。
//   - 成功：usage_count+1，立即返回
//   - key 类故障：error_count+1，换下一个 key
//   - 非 key 类故障：error_count+1，原样返回错误，不再换 key
//
// 环境变量兜底 key 不更新任何计数器。
func (r *Rotator) WithRotation(service string, operation func(apiKey string) error) error {
	keys := r.candidateKeys(service)
	if len(keys) == 0 {
		return &ErrNoKeysAvailable{Service: service}
	}

	log.Printf("[Rotator] %s 可用 key 数量: %d", service, len(keys))

	var attempts []KeyAttempt
	for i, key := range keys {
		keyLabel := fmt.Sprintf("#%d", i+1)
		if key.ID == envKeyID {
			keyLabel = "ENV"
		}

		err := operation(key.ApiKey)
		if err == nil {
			if key.ID != envKeyID {
				if recErr := r.Store.RecordSuccess(key.ID); recErr != nil {
					log.Printf("[Rotator] 记录 key 成功计数失败: %v", recErr)
				}
			}
			return nil
		}

		attempts = append(attempts, KeyAttempt{KeyLabel: keyLabel, Err: err.Error()})
		if key.ID != envKeyID {
			if recErr := r.Store.RecordError(key.ID); recErr != nil {
				log.Printf("[Rotator] 记录 key 错误计数失败: %v", recErr)
			}
		}

		if !IsKeyFault(err) {
			// 非 key 类故障立即终止轮换，原样上抛
			log.Printf("[Rotator] %s key %s 非 key 类故障, 停止轮换: %v", service, keyLabel, err)
			return err
		}
		log.Printf("[Rotator] %s key %s 失效 (%v), 尝试下一个", service, keyLabel, err)
	}

	return &ErrAllKeysExhausted{Service: service, Attempts: attempts}
}
