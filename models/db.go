package models

import (
	"database/sql"
	"log"
	"os"
	"strings"
	"time"

	"Script2Video-server/config"

	_ "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var DB *sql.DB
var GormDB *gorm.DB

func InitDB() {
	if config.AppConfig == nil {
		log.Fatal("config.AppConfig is nil, call config.InitConfig first")
	}
	dsn := config.AppConfig.MySQL.DSN
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Fatalf("打开数据库失败: %v", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		log.Fatalf("连接数据库失败: %v", err)
	}

	DB = db
	GormDB, err = gorm.Open(mysql.New(mysql.Config{
		Conn: DB,
	}), &gorm.Config{})
	if err != nil {
		log.Fatalf("GORM 初始化失败: %v", err)
	}

	log.Println("数据库连接成功 (Native SQL + GORM)")

	// 自动建表（读取 doc/sql/Script2Video.sql）
	b, err := os.ReadFile("doc/sql/Script2Video.sql")
	if err != nil {
		log.Printf("读取 SQL 文件失败（跳过建表）: %v", err)
		return
	}
	sqls := strings.Split(string(b), ";")
	for _, s := range sqls {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, err := DB.Exec(s); err != nil {
			log.Printf("执行建表语句失败: %v ; sql: %s", err, s)
		}
	}
}

// Project CRUD（项目创建/删除走原生 SQL，状态流转见 project.go）

func CreateProject(p *Project) error {
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err := DB.Exec(
		`INSERT INTO project (id, title, script, status, aspect_ratio, reference_image, scene_count, render_id, final_video_url, merge_progress, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Title, p.Script, p.Status, p.AspectRatio, p.ReferenceImage, p.SceneCount, p.RenderID, p.FinalVideoUrl, p.MergeProgress, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

// DeleteProjectByID 项目删除，场景由外键级联删除
func DeleteProjectByID(id string) error {
	_, err := DB.Exec(`DELETE FROM project WHERE id = ?`, id)
	return err
}
