package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"catalyst-trader/internal/account"
	"catalyst-trader/internal/ai"
	"catalyst-trader/internal/audit"
	"catalyst-trader/internal/broker"
	"catalyst-trader/internal/config"
	"catalyst-trader/internal/execution"
	"catalyst-trader/internal/feature"
	"catalyst-trader/internal/notify"
	"catalyst-trader/internal/quote"
	"catalyst-trader/internal/risk"
	"catalyst-trader/internal/store"
)

// orchestrator 驱动单个交易周期：快照 → 记忆 → 计划 → 参考价 →
// 校验 → 执行 → 审计 → 通知。核心链路在周期之间不保留任何状态，
// 预算与持仓每轮都从全新快照推导。
type orchestrator struct {
	cfg      *config.Config
	accounts *account.Provider
	resolver *quote.Resolver
	advisor  *ai.Client
	health   *feature.Extractor
	engine   *execution.Engine
	audit    *audit.Service
	mailer   *notify.Mailer
	logger   *zap.Logger

	mode  execution.Mode
	focus string
}

func newOrchestrator(cfg *config.Config, logger *zap.Logger, st *store.Store, mode execution.Mode, focus string) (*orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	brokerClient, err := broker.NewClient(cfg.Broker, cfg.Budget.Currency, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化券商客户端失败: %w", err)
	}

	advisor, err := ai.NewClient(cfg.Advisor, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化顾问客户端失败: %w", err)
	}

	auditSvc, err := audit.NewService(st, cfg.Audit, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化审计服务失败: %w", err)
	}

	return &orchestrator{
		cfg:      cfg,
		accounts: account.NewProvider(brokerClient, cfg.Budget, logger),
		resolver: quote.NewResolver(brokerClient, cfg.Quote, logger),
		advisor:  advisor,
		health:   feature.NewExtractor(brokerClient, logger),
		engine:   execution.NewEngine(brokerClient, cfg.Execution, logger),
		audit:    auditSvc,
		mailer:   notify.NewMailer(cfg.Notify, logger),
		logger:   logger,
		mode:     mode,
		focus:    focus,
	}, nil
}

func (o *orchestrator) Audit() *audit.Service {
	return o.audit
}

// Tick 执行一个完整交易周期。
func (o *orchestrator) Tick(ctx context.Context) error {
	now := time.Now().UTC()
	runID := audit.NewRunID(now)

	snapshot, err := o.accounts.Fetch(ctx)
	if err != nil {
		o.audit.RecordError(ctx, runID, "采集账户快照失败", err, nil)
		return err
	}

	// 空头持仓违反只做多前提，中止规划，等待人工处理。
	if o.cfg.Policy.LongOnly && snapshot.HasShort() {
		err := fmt.Errorf("账户存在空头持仓，违反只做多约束")
		o.audit.RecordError(ctx, runID, "周期中止", err, nil)
		return err
	}

	budget := o.accounts.Budget(snapshot)
	sellOnly := budget <= 0

	heldSymbols := make([]string, 0, len(snapshot.Positions))
	for symbol := range snapshot.Positions {
		heldSymbols = append(heldSymbols, symbol)
	}
	health := o.health.PositionHealth(ctx, heldSymbols)

	o.audit.RecordSnapshot(ctx, runID, snapshot, budget, sellOnly, health)

	memory, err := o.audit.BuildMemory(ctx, now)
	if err != nil {
		o.logger.Warn("构建周期记忆失败", zap.Error(err))
		memory = ""
	}
	openMarkets := ai.OpenMarkets(now)

	plan, prompt, err := o.advisor.GeneratePlan(ctx, ai.PromptInput{
		Snapshot:     snapshot,
		Health:       health,
		Budget:       budget,
		Currency:     o.cfg.Budget.Currency,
		SellOnly:     sellOnly,
		MaxPositions: o.cfg.Policy.MaxPositions,
		Memory:       memory,
		OpenMarkets:  openMarkets,
		Focus:        o.focus,
		Now:          now,
	})
	if err != nil {
		o.audit.RecordError(ctx, runID, "生成交易计划失败", err, nil)
		return err
	}
	o.audit.RecordPlan(ctx, runID, plan, prompt, openMarkets, o.focus)

	refs, err := o.resolver.ResolveAll(ctx, plan.Symbols())
	if err != nil {
		o.audit.RecordError(ctx, runID, "解析参考价中断", err, nil)
		return err
	}

	policy := risk.PolicyFromConfig(o.cfg.Policy)
	report := risk.Validate(snapshot, plan, refs, budget, policy)
	o.audit.RecordValidation(ctx, runID, report)

	o.logger.Info("计划校验完成",
		zap.String("run_id", runID),
		zap.Int("accepted", len(report.Orders)),
		zap.Int("rejected", len(report.Rejections)),
		zap.Float64("budget_remaining", report.BudgetRemaining),
	)

	results := o.engine.Execute(ctx, report.Orders, o.mode)
	o.audit.RecordExecution(ctx, runID, o.mode, results)

	summary := buildCycleSummary(runID, now, plan, report, results)
	o.audit.RecordCycleSummary(ctx, summary)

	if sendErr := o.mailer.Send(
		fmt.Sprintf("交易周期报告 %s (%s)", runID, o.mode),
		formatCycleReport(plan, report, results, budget, o.cfg.Budget.Currency),
	); sendErr != nil {
		o.logger.Warn("发送周期报告失败", zap.Error(sendErr))
	}

	return nil
}

func buildCycleSummary(runID string, now time.Time, plan ai.Plan, report risk.Report, results []execution.OrderResult) audit.CycleSummary {
	summary := audit.CycleSummary{
		RunID:   runID,
		Time:    now,
		Summary: plan.Summary,
	}

	for _, result := range results {
		entry := fmt.Sprintf("%s×%d@%.2f(%s)",
			result.Order.Symbol, result.Order.Quantity, result.Order.LimitPrice, result.State)
		if result.Order.Side == "BUY" {
			summary.Bought = append(summary.Bought, entry)
		} else {
			summary.Sold = append(summary.Sold, entry)
		}
	}
	for _, rejection := range report.Rejections {
		summary.Rejections = append(summary.Rejections,
			fmt.Sprintf("%s(%s)", rejection.Symbol, rejection.Reason))
	}

	return summary
}

func formatCycleReport(plan ai.Plan, report risk.Report, results []execution.OrderResult, budget float64, currency string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "预算: %.2f %s，剩余: %.2f %s\n", budget, currency, report.BudgetRemaining, currency)
	if plan.Summary != "" {
		fmt.Fprintf(&b, "计划概述: %s\n", plan.Summary)
	}

	b.WriteString("\n订单:\n")
	if len(results) == 0 {
		b.WriteString("  （无）\n")
	}
	for _, result := range results {
		fmt.Fprintf(&b, "  %s %s ×%d @%.2f → %s",
			result.Order.Side, result.Order.Symbol, result.Order.Quantity, result.Order.LimitPrice, result.State)
		if result.Note != "" {
			fmt.Fprintf(&b, " (%s)", result.Note)
		}
		b.WriteString("\n")
	}

	if len(report.Rejections) > 0 {
		b.WriteString("\n被拒意向:\n")
		for _, rejection := range report.Rejections {
			fmt.Fprintf(&b, "  %s %s: %s %s\n", rejection.Side, rejection.Symbol, rejection.Reason, rejection.Detail)
		}
	}

	return b.String()
}
