package audit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"catalyst-trader/internal/config"
)

func TestRecordWritesArtifact(t *testing.T) {
	dir := t.TempDir()
	service := newTestService(t, config.AuditConfig{Dir: dir, MemoryRuns: 8})
	ctx := context.Background()

	runID := NewRunID(time.Date(2025, 6, 4, 15, 0, 0, 0, time.UTC))
	if err := service.Record(ctx, Event{
		RunID:   runID,
		Type:    EventError,
		Payload: ErrorPayload{Message: "测试事件"},
	}); err != nil {
		t.Fatalf("Record 返回错误: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, runID, string(EventError)+".json"))
	if err != nil {
		t.Fatalf("读取审计文档失败: %v", err)
	}

	var doc struct {
		RunID   string       `json:"run_id"`
		Type    EventType    `json:"type"`
		Payload ErrorPayload `json:"payload"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("解析审计文档失败: %v", err)
	}
	if doc.RunID != runID || doc.Type != EventError {
		t.Fatalf("文档元数据不符: %+v", doc)
	}
	if doc.Payload.Message != "测试事件" {
		t.Fatalf("文档载荷不符: %+v", doc.Payload)
	}
}

func TestRecordSkipsArtifactWithoutDir(t *testing.T) {
	service := newTestService(t, config.AuditConfig{MemoryRuns: 8})
	ctx := context.Background()

	if err := service.Record(ctx, Event{
		RunID:   "run-1",
		Type:    EventError,
		Payload: ErrorPayload{Message: "无文档目录"},
	}); err != nil {
		t.Fatalf("Record 返回错误: %v", err)
	}

	events, err := service.ListEvents(ctx, EventError, 10)
	if err != nil {
		t.Fatalf("ListEvents 返回错误: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("事件表应有1条记录，实际 %d", len(events))
	}
}
