package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"catalyst-trader/internal/account"
	"catalyst-trader/internal/feature"
)

const planTemplate = `
你是一个专业的事件驱动股票交易顾问。请结合最新市场催化事件（财报、指引、监管、并购等），在严格遵守资金约束的前提下给出交易计划。

当前时间(UTC): {{ .Date }}

资金约束（硬性上限，任何情况下不得突破）：
- 本轮可支配预算: {{ printf "%.2f" .Budget }} {{ .Currency }}
- 全部买入意向的总金额不得超过该预算
{{- if .SellOnly }}
- 账户现金为负，本轮只允许 SELL，禁止给出任何 BUY 意向
{{- end }}
- 当前持仓上限: {{ .MaxPositions }} 个标的
- 仅允许做多：SELL 数量不得超过当前持仓

当前持仓（含日线健康度指标）：
{{ .PositionsJSON }}

{{- if .Memory }}

近期交易复盘（避免重复踩坑，保持策略连贯）：
{{ .Memory }}
{{- end }}

{{- if .OpenMarkets }}

当前处于交易时段的市场: {{ .OpenMarketsText }}
{{- end }}

{{- if .Focus }}

本轮关注方向: {{ .Focus }}
{{- end }}

制定计划时请遵循：
1. 只挑选有明确近期催化事件支撑的标的，注明催化窗口；
2. 每笔意向给出金额（notional，{{ .Currency }} 计价）或整数股数（quantity），二者至少一项为正；
3. confidence 反映你对该笔交易的信心，source_count 为支撑该结论的独立信息源数量；
4. 没有高质量机会时返回空的 trades 数组，不要硬凑交易。

请严格输出唯一的 JSON 对象，格式如下：
{
  "trades": [
    {
      "symbol": "...",                       // 标的代码
      "side": "BUY|SELL",
      "quantity": 0,                          // 整数股数，未指定时填 0
      "notional": 0.0,                        // 目标金额（{{ .Currency }}），未指定时填 0
      "rationale": "...",                    // 催化事件与关键理由
      "confidence": 0.0-1.0,
      "source_count": 0,                      // 独立信息源数量
      "catalyst_window_start": "YYYY-MM-DD",
      "catalyst_window_end": "YYYY-MM-DD"
    }
  ],
  "summary": "..."                           // 对整体计划的一句话概述
}

注意事项：
- 所有字段均需填写；trades 可以为空数组。
- 买入金额合计不得超过预算 {{ printf "%.2f" .Budget }} {{ .Currency }}。
- 不要输出 JSON 以外的任何内容。
`

var planTmpl = template.Must(template.New("plan").Parse(planTemplate))

// PromptInput 汇总渲染提示词所需的全部上下文。
type PromptInput struct {
	Snapshot     account.Snapshot
	Health       map[string]feature.Health
	Budget       float64
	Currency     string
	SellOnly     bool
	MaxPositions int
	Memory       string
	OpenMarkets  []string
	Focus        string
	Now          time.Time
}

type promptPosition struct {
	Symbol   string          `json:"symbol"`
	Quantity int64           `json:"quantity"`
	AvgCost  float64         `json:"avg_cost"`
	Health   *feature.Health `json:"health,omitempty"`
}

type promptView struct {
	Date            string
	Budget          float64
	Currency        string
	SellOnly        bool
	MaxPositions    int
	PositionsJSON   string
	Memory          string
	OpenMarkets     []string
	OpenMarketsText string
	Focus           string
}

// BuildPrompt 将账户快照、持仓健康度与记忆渲染成提示词。
func BuildPrompt(input PromptInput) (string, error) {
	positions := make([]promptPosition, 0, len(input.Snapshot.Positions))
	for symbol, pos := range input.Snapshot.Positions {
		view := promptPosition{
			Symbol:   symbol,
			Quantity: pos.Quantity,
			AvgCost:  pos.AvgCost,
		}
		if h, ok := input.Health[symbol]; ok {
			health := h
			view.Health = &health
		}
		positions = append(positions, view)
	}

	positionsJSON, err := json.MarshalIndent(positions, "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化持仓失败: %w", err)
	}

	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}

	view := promptView{
		Date:            now.UTC().Format("2006-01-02 15:04"),
		Budget:          input.Budget,
		Currency:        input.Currency,
		SellOnly:        input.SellOnly,
		MaxPositions:    input.MaxPositions,
		PositionsJSON:   string(positionsJSON),
		Memory:          strings.TrimSpace(input.Memory),
		OpenMarkets:     input.OpenMarkets,
		OpenMarketsText: strings.Join(input.OpenMarkets, ", "),
		Focus:           strings.TrimSpace(input.Focus),
	}

	var buf bytes.Buffer
	if err = planTmpl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("渲染提示词失败: %w", err)
	}

	return buf.String(), nil
}
