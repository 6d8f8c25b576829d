package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"Script2Video-server/config"
	"Script2Video-server/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AdminAuth 管理接口鉴权：Bearer token 必须匹配配置中的管理令牌。
// 缺少凭证 401，凭证不对 403。
func AdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing Authorization header"})
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if config.AppConfig.Admin.Token == "" || token != config.AppConfig.Admin.Token {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next()
	}
}

// 列出全部凭证（含计数器，供排查 key 健康度）
func ListApiKeys(c *gin.Context) {
	keys, err := Keys.ListAll()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取 key 列表失败: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

// 新增凭证
func AddApiKey(c *gin.Context) {
	var req struct {
		Service string `json:"service"`
		ApiKey  string `json:"apiKey"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Service == "" || req.ApiKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing service or apiKey"})
		return
	}

	key := models.ApiKey{
		ID:          uuid.NewString(),
		ServiceName: strings.ToLower(req.Service),
		ApiKey:      req.ApiKey,
		IsActive:    true,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := Keys.Create(&key); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "创建 key 失败: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key})
}

// 启用/停用翻转。停用的 key 不会再被轮换器选中。
func ToggleApiKey(c *gin.Context) {
	keyID := c.Param("key_id")

	key, err := Keys.Toggle(keyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "更新 key 失败: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key})
}

// 删除凭证
func DeleteApiKey(c *gin.Context) {
	keyID := c.Param("key_id")

	if _, err := Keys.GetByID(keyID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := Keys.Delete(keyID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除 key 失败: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
