package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"Script2Video-server/service"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func runWriteMergeError(t *testing.T, err error) (int, map[string]interface{}) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	writeMergeError(c, err)

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json body: %v", err)
	}
	return w.Code, body
}

func TestWriteMergeErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{
			name:     "项目不存在走包装后的记录未找到",
			err:      fmt.Errorf("project not found: %w", gorm.ErrRecordNotFound),
			wantCode: http.StatusNotFound,
		},
		{
			name:     "状态不允许合并返回冲突",
			err:      &service.ErrProjectNotMergeable{ProjectID: "p1", Status: "merging"},
			wantCode: http.StatusConflict,
		},
		{
			name:     "顺序数量不符",
			err:      &service.ErrOrderSizeMismatch{Expected: 5, Received: 4},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "逐场景校验明细",
			err: &service.ErrMergeValidation{ProjectID: "p1", Problems: []service.SceneProblem{
				{SceneID: "scene-404", Reason: service.ProblemUnknownSceneID},
			}},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "项目不完整",
			err:      &service.ErrIncompleteProject{ProjectID: "p1", Expected: 3, Completed: 2},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "其它错误兜底 500",
			err:      fmt.Errorf("渲染服务返回 502"),
			wantCode: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := runWriteMergeError(t, tt.err)
			if code != tt.wantCode {
				t.Errorf("status = %d, want %d", code, tt.wantCode)
			}
		})
	}
}

func TestWriteMergeErrorPayloads(t *testing.T) {
	code, body := runWriteMergeError(t, &service.ErrOrderSizeMismatch{Expected: 5, Received: 4})
	if code != http.StatusBadRequest {
		t.Fatalf("status = %d", code)
	}
	if body["expectedCount"] != float64(5) || body["receivedCount"] != float64(4) {
		t.Errorf("counts missing from body: %v", body)
	}

	code, body = runWriteMergeError(t, &service.ErrProjectNotMergeable{ProjectID: "p1", Status: "merging"})
	if code != http.StatusConflict {
		t.Fatalf("status = %d", code)
	}
	if body["status"] != "merging" {
		t.Errorf("status field missing from body: %v", body)
	}
}
