package main

import (
	"fmt"
	"time"

	"Script2Video-server/config"
	"Script2Video-server/models"
	"Script2Video-server/routers"
	"Script2Video-server/routers/api"
	"Script2Video-server/service"
)

func main() {
	config.InitConfig()
	fmt.Println("Server starting on port", config.AppConfig.Server.Port)
	models.InitDB()
	fmt.Println("Database initialized")

	service.InitQueue()
	fmt.Println("Queue initialized")

	service.InitMinIO()
	fmt.Println("MinIO initialized")

	keys := &models.KeyStore{DB: models.GormDB}
	rotator := service.NewRotator(keys)

	genClient := service.NewVideoGenClient(config.AppConfig.Providers.VideoGenAPI)
	renderClient := service.NewRenderClient(config.AppConfig.Providers.VideoRenderAPI)

	submitter := service.NewSubmitter(models.GormDB, rotator, genClient)
	merger := service.NewMerger(models.GormDB, rotator, renderClient)
	analyzer := service.NewAnalyzer(models.GormDB, rotator)

	interval := time.Duration(config.AppConfig.Poller.IntervalSeconds) * time.Second
	poller := service.NewPoller(models.GormDB, rotator, genClient, &service.MinioAssetStore{}, interval, merger)
	poller.EnqueueRetry = service.EnqueueSceneGeneration

	processor := service.NewProcessor(submitter, poller)
	processor.StartProcessor(5)

	api.Init(submitter, poller, merger, analyzer, keys)

	r := routers.InitRouter()
	r.Run(config.AppConfig.Server.Port)
}
