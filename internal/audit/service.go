package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"catalyst-trader/internal/account"
	"catalyst-trader/internal/ai"
	"catalyst-trader/internal/config"
	"catalyst-trader/internal/execution"
	"catalyst-trader/internal/feature"
	"catalyst-trader/internal/risk"
	"catalyst-trader/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_events_run ON audit_events(run_id);
CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(event_type);
`

// Service 负责持久化审计事件：每个事件同时写入 SQLite 事件表
// 与 <dir>/<run_id>/<type>.json 文档，后者供外部消费。
type Service struct {
	db     *sql.DB
	dir    string
	cfg    config.AuditConfig
	logger *zap.Logger
}

// NewService 初始化审计服务并创建所需表结构。
func NewService(st *store.Store, cfg config.AuditConfig, logger *zap.Logger) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("audit: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:     st.DB(),
		dir:    cfg.Dir,
		cfg:    cfg,
		logger: logger,
	}

	if err := st.ApplySchema(schema); err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}

	return s, nil
}

// NewRunID 生成以时间排序的周期标识。
func NewRunID(now time.Time) string {
	return now.UTC().Format("20060102T150405Z")
}

// Record 写入单个事件。
func (s *Service) Record(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("audit: 序列化事件失败: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_events (run_id, event_type, payload, created_at) VALUES (?, ?, ?, ?)`,
		event.RunID, string(event.Type), string(payload), event.Timestamp.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("audit: 写入事件失败: %w", err)
	}

	if writeErr := s.writeArtifact(event, payload); writeErr != nil {
		// 文档仅是事件表的外部镜像，写入失败不中断周期。
		s.logger.Warn("写入审计文档失败",
			zap.String("run_id", event.RunID),
			zap.String("type", string(event.Type)),
			zap.Error(writeErr),
		)
	}

	return nil
}

func (s *Service) writeArtifact(event Event, payload []byte) error {
	if s.dir == "" || event.RunID == "" {
		return nil
	}

	runDir := filepath.Join(s.dir, event.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}

	doc := struct {
		RunID     string          `json:"run_id"`
		Type      EventType       `json:"type"`
		Timestamp time.Time       `json:"timestamp"`
		Payload   json.RawMessage `json:"payload"`
	}{
		RunID:     event.RunID,
		Type:      event.Type,
		Timestamp: event.Timestamp,
		Payload:   payload,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(runDir, string(event.Type)+".json"), data, 0o644)
}

// RecordSnapshot 记录周期开始时的账户状态。
func (s *Service) RecordSnapshot(ctx context.Context, runID string, snapshot account.Snapshot, budget float64, sellOnly bool, health map[string]feature.Health) {
	if err := s.Record(ctx, Event{
		RunID: runID,
		Type:  EventSnapshot,
		Payload: SnapshotPayload{
			Snapshot: snapshot,
			Budget:   budget,
			SellOnly: sellOnly,
			Health:   health,
		},
	}); err != nil {
		s.logger.Warn("记录快照事件失败", zap.Error(err))
	}
}

// RecordPlan 记录模型交易计划。
func (s *Service) RecordPlan(ctx context.Context, runID string, plan ai.Plan, prompt string, openMarkets []string, focus string) {
	if err := s.Record(ctx, Event{
		RunID: runID,
		Type:  EventPlan,
		Payload: PlanPayload{
			Plan:        plan,
			Prompt:      prompt,
			OpenMarkets: openMarkets,
			Focus:       focus,
		},
	}); err != nil {
		s.logger.Warn("记录计划事件失败", zap.Error(err))
	}
}

// RecordValidation 记录校验报告。
func (s *Service) RecordValidation(ctx context.Context, runID string, report risk.Report) {
	if err := s.Record(ctx, Event{
		RunID:   runID,
		Type:    EventValidation,
		Payload: ValidationPayload{Report: report},
	}); err != nil {
		s.logger.Warn("记录校验事件失败", zap.Error(err))
	}
}

// RecordExecution 记录订单执行结果。
func (s *Service) RecordExecution(ctx context.Context, runID string, mode execution.Mode, results []execution.OrderResult) {
	if err := s.Record(ctx, Event{
		RunID:   runID,
		Type:    EventExecution,
		Payload: ExecutionPayload{Mode: mode, Results: results},
	}); err != nil {
		s.logger.Warn("记录执行事件失败", zap.Error(err))
	}
}

// RecordCycleSummary 记录周期压缩复盘，作为后续周期的记忆来源。
func (s *Service) RecordCycleSummary(ctx context.Context, summary CycleSummary) {
	if err := s.Record(ctx, Event{
		RunID:   summary.RunID,
		Type:    EventCycleSummary,
		Payload: summary,
	}); err != nil {
		s.logger.Warn("记录周期复盘失败", zap.Error(err))
	}
}

// RecordError 记录周期内异常。
func (s *Service) RecordError(ctx context.Context, runID, msg string, err error, ctxMap map[string]interface{}) {
	payload := ErrorPayload{
		Message: msg,
		Context: ctxMap,
	}
	if err != nil {
		payload.Error = err.Error()
	}
	if recErr := s.Record(ctx, Event{
		RunID:   runID,
		Type:    EventError,
		Payload: payload,
	}); recErr != nil {
		s.logger.Warn("记录异常事件失败", zap.Error(recErr))
	}
}

// ListEvents 按类型检索最近事件，eventType 为空时不过滤。
func (s *Service) ListEvents(ctx context.Context, eventType EventType, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT run_id, event_type, payload, created_at FROM audit_events`
	args := make([]interface{}, 0, 2)
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: 查询事件失败: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var (
			runID   string
			typ     string
			payload string
			created string
		)
		if scanErr := rows.Scan(&runID, &typ, &payload, &created); scanErr != nil {
			return nil, fmt.Errorf("audit: 解析事件失败: %w", scanErr)
		}

		ts, parseErr := time.Parse(time.RFC3339, created)
		if parseErr != nil {
			ts = time.Now().UTC()
		}

		events = append(events, Event{
			RunID:     runID,
			Type:      EventType(typ),
			Timestamp: ts,
			Payload:   json.RawMessage(payload),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: 读取事件失败: %w", err)
	}

	return events, nil
}
