package api

import (
	"Script2Video-server/models"
	"Script2Video-server/service"
)

// 各 handler 依赖的服务实例，由 main 装配后注入
var (
	Submitter *service.Submitter
	Poller    *service.Poller
	Merger    *service.Merger
	Analyzer  *service.Analyzer
	Keys      *models.KeyStore
)

func Init(submitter *service.Submitter, poller *service.Poller, merger *service.Merger, analyzer *service.Analyzer, keys *models.KeyStore) {
	Submitter = submitter
	Poller = poller
	Merger = merger
	Analyzer = analyzer
	Keys = keys
}
