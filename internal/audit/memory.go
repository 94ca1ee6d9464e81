package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// BuildMemory 将回溯窗口内最近若干个周期的复盘汇总成提示词片段。
// 无历史时返回空串，调用方据此省略记忆段落。
func (s *Service) BuildMemory(ctx context.Context, now time.Time) (string, error) {
	if s.cfg.MemoryRuns <= 0 {
		return "", nil
	}

	events, err := s.ListEvents(ctx, EventCycleSummary, s.cfg.MemoryRuns)
	if err != nil {
		return "", fmt.Errorf("audit: 读取周期复盘失败: %w", err)
	}

	cutoff := time.Time{}
	if s.cfg.MemoryLookback > 0 {
		cutoff = now.Add(-s.cfg.MemoryLookback)
	}

	summaries := make([]CycleSummary, 0, len(events))
	for _, event := range events {
		raw, ok := event.Payload.(json.RawMessage)
		if !ok {
			continue
		}

		var summary CycleSummary
		if err := json.Unmarshal(raw, &summary); err != nil {
			s.logger.Warn("解析周期复盘失败", zap.Error(err))
			continue
		}
		if !cutoff.IsZero() && summary.Time.Before(cutoff) {
			continue
		}
		summaries = append(summaries, summary)
	}

	return FormatMemory(summaries), nil
}

// FormatMemory 将周期复盘格式化为提示词可读的列表，最近的在前。
func FormatMemory(summaries []CycleSummary) string {
	if len(summaries) == 0 {
		return ""
	}

	var b strings.Builder
	for _, s := range summaries {
		b.WriteString("- ")
		b.WriteString(s.Time.UTC().Format("2006-01-02 15:04"))
		b.WriteString(": ")

		parts := make([]string, 0, 4)
		if len(s.Bought) > 0 {
			parts = append(parts, "买入 "+strings.Join(s.Bought, ", "))
		}
		if len(s.Sold) > 0 {
			parts = append(parts, "卖出 "+strings.Join(s.Sold, ", "))
		}
		if len(s.Rejections) > 0 {
			parts = append(parts, "拒绝 "+strings.Join(s.Rejections, ", "))
		}
		if len(parts) == 0 {
			parts = append(parts, "无交易")
		}
		b.WriteString(strings.Join(parts, "；"))

		if s.Summary != "" {
			b.WriteString("。")
			b.WriteString(s.Summary)
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}
