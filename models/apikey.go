package models

import (
	"time"

	"gorm.io/gorm"
)

// 外部服务名（api_key.service_name 取值）
const (
	ServiceVideoGeneration = "video-generation"
	ServiceVideoRender     = "video-render"
	ServiceScriptAnalysis  = "script-analysis"
)

// ApiKey 外部服务凭证。usage_count / error_count 只增不减，
// 仅用于轮换时的优先级排序，不作为精确账本。
type ApiKey struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ServiceName string    `json:"serviceName"`
	ApiKey      string    `json:"apiKey"`
	IsActive    bool      `json:"isActive"`
	UsageCount  int       `json:"usageCount"`
	ErrorCount  int       `json:"errorCount"`
	LastUsedAt  time.Time `json:"lastUsedAt"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (ApiKey) TableName() string {
	return "api_key"
}

// KeyStore gorm 实现的凭证存取层，供轮换器与管理接口使用
type KeyStore struct {
	DB *gorm.DB
}

// ListActive 按偏好顺序返回某服务的全部可用 key：
// 错误少优先、用得少次之，id 升序兜底保证确定性。
func (ks *KeyStore) ListActive(service string) ([]ApiKey, error) {
	var keys []ApiKey
	err := ks.DB.Where("service_name = ? AND is_active = ?", service, true).
		Order("error_count ASC").
		Order("usage_count ASC").
		Order("id ASC").
		Find(&keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// RecordSuccess 成功调用计数。SQL 层原子自增，容忍并发轮询器竞争。
func (ks *KeyStore) RecordSuccess(keyID string) error {
	return ks.DB.Model(&ApiKey{}).Where("id = ?", keyID).Updates(map[string]interface{}{
		"usage_count":  gorm.Expr("usage_count + 1"),
		"last_used_at": time.Now(),
		"updated_at":   time.Now(),
	}).Error
}

func (ks *KeyStore) RecordError(keyID string) error {
	return ks.DB.Model(&ApiKey{}).Where("id = ?", keyID).Updates(map[string]interface{}{
		"error_count": gorm.Expr("error_count + 1"),
		"updated_at":  time.Now(),
	}).Error
}

// 以下为管理接口用的 CRUD

func (ks *KeyStore) ListAll() ([]ApiKey, error) {
	var keys []ApiKey
	if err := ks.DB.Order("created_at DESC").Find(&keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

func (ks *KeyStore) Create(key *ApiKey) error {
	now := time.Now()
	key.CreatedAt = now
	key.UpdatedAt = now
	return ks.DB.Create(key).Error
}

func (ks *KeyStore) GetByID(keyID string) (*ApiKey, error) {
	var key ApiKey
	if err := ks.DB.First(&key, "id = ?", keyID).Error; err != nil {
		return nil, err
	}
	return &key, nil
}

// Toggle 翻转启用状态，返回更新后的记录
func (ks *KeyStore) Toggle(keyID string) (*ApiKey, error) {
	key, err := ks.GetByID(keyID)
	if err != nil {
		return nil, err
	}
	err = ks.DB.Model(key).Updates(map[string]interface{}{
		"is_active":  !key.IsActive,
		"updated_at": time.Now(),
	}).Error
	if err != nil {
		return nil, err
	}
	key.IsActive = !key.IsActive
	return key, nil
}

func (ks *KeyStore) Delete(keyID string) error {
	return ks.DB.Delete(&ApiKey{}, "id = ?", keyID).Error
}
