package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"Script2Video-server/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var MinioClient *minio.Client

// AssetStore 资产落盘：把生成服务产出的资源拉到持久存储，返回可访问地址。
// 轮询器通过该接口物化场景成片，测试用内存实现替代。
type AssetStore interface {
	SaveFromURL(sourceURL, objectName string) (string, error)
}

// InitMinIO 初始化连接，在 main.go 中调用
func InitMinIO() {
	cfg := config.AppConfig.MinIO
	var err error
	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatalf("MinIO 初始化失败: %v", err)
	}
	log.Println("MinIO 连接成功")
}

// MinioAssetStore AssetStore 的 MinIO 实现
type MinioAssetStore struct{}

// SaveFromURL 从生成服务的临时地址下载资源并上传到 MinIO，返回预签名 URL
func (m *MinioAssetStore) SaveFromURL(sourceURL, objectName string) (string, error) {
	resp, err := http.Get(sourceURL)
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download status: %d", resp.StatusCode)
	}

	return UploadToMinIO(resp.Body, objectName, resp.ContentLength)
}

// UploadToMinIO 通用上传函数，从 io.Reader 上传到 MinIO，返回可访问的 URL
// 参数:
//   - reader: 文件数据流 (可以是 http.Response.Body 或其他 io.Reader)
//   - objectName: 云端存储路径，例如 "scenes/123/video.mp4"
//   - size: 文件大小（字节），-1 表示未知大小
func UploadToMinIO(reader io.Reader, objectName string, size int64) (string, error) {
	ctx := context.Background()
	cfg := config.AppConfig.MinIO
	bucketName := cfg.Bucket

	// 确保 Bucket 存在
	exists, err := MinioClient.BucketExists(ctx, bucketName)
	if err != nil {
		return "", fmt.Errorf("检查 Bucket 失败: %w", err)
	}
	if !exists {
		err = MinioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return "", fmt.Errorf("创建 Bucket 失败: %w", err)
		}
		log.Printf("Bucket '%s' 已创建", bucketName)
	}

	// 根据文件扩展名确定 ContentType
	contentType := "application/octet-stream"
	ext := filepath.Ext(objectName)
	switch ext {
	case ".jpg", ".jpeg":
		contentType = "image/jpeg"
	case ".png":
		contentType = "image/png"
	case ".webp":
		contentType = "image/webp"
	case ".mp4":
		contentType = "video/mp4"
	}

	// 上传文件
	_, err = MinioClient.PutObject(ctx, bucketName, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("上传到 MinIO 失败: %w", err)
	}

	// 生成预签名 URL（72小时有效期）
	expiry := time.Hour * 72
	reqParams := make(url.Values)

	presignedURL, err := MinioClient.PresignedGetObject(ctx, bucketName, objectName, expiry, reqParams)
	if err != nil {
		return "", fmt.Errorf("生成签名 URL 失败: %w", err)
	}

	log.Printf("文件已上传: %s", objectName)
	return presignedURL.String(), nil
}
