package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"catalyst-trader/internal/config"
)

// Client 封装大模型调用逻辑。
type Client struct {
	cfg    config.AdvisorConfig
	logger *zap.Logger
	sdk    *openai.Client
}

// NewClient 使用给定配置创建顾问客户端。
func NewClient(cfg config.AdvisorConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("advisor api_key 不能为空")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sdkConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		sdkConfig.BaseURL = cfg.BaseURL
	}
	sdkConfig.HTTPClient = &http.Client{
		Timeout: cfg.Timeout + 5*time.Second,
	}

	return &Client{
		cfg:    cfg,
		logger: logger,
		sdk:    openai.NewClientWithConfig(sdkConfig),
	}, nil
}

// GeneratePlan 根据账户上下文获取模型的交易计划。
func (c *Client) GeneratePlan(ctx context.Context, input PromptInput) (Plan, string, error) {
	if c.cfg.Model == "" {
		return Plan{}, "", errors.New("advisor model 不能为空")
	}

	prompt, err := BuildPrompt(input)
	if err != nil {
		return Plan{}, "", err
	}

	response, err := c.sdk.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0,
	})
	if err != nil {
		c.logger.Error("调用大模型失败", zap.Error(err))
		return Plan{}, prompt, fmt.Errorf("调用大模型失败: %w", err)
	}

	if len(response.Choices) == 0 {
		return Plan{}, prompt, errors.New("大模型返回结果为空")
	}

	rawContent := strings.TrimSpace(response.Choices[0].Message.Content)
	if rawContent == "" {
		return Plan{}, prompt, errors.New("大模型返回内容为空")
	}

	plan, err := ParsePlan(rawContent)
	if err != nil {
		c.logger.Error("解析交易计划失败",
			zap.Error(err),
			zap.String("raw_content", rawContent),
		)
		return Plan{}, prompt, err
	}

	if err := plan.Validate(); err != nil {
		return Plan{}, prompt, err
	}

	c.logger.Info("交易计划生成成功",
		zap.Int("trades", len(plan.Trades)),
		zap.String("summary", plan.Summary),
	)

	return plan, prompt, nil
}

// ParsePlan 从模型原始输出中提取并解析交易计划。
func ParsePlan(content string) (Plan, error) {
	jsonPayload, err := extractJSON(content)
	if err != nil {
		return Plan{}, err
	}

	var plan Plan
	if err = json.Unmarshal(jsonPayload, &plan); err != nil {
		return Plan{}, fmt.Errorf("解析计划JSON失败: %w", err)
	}

	return plan, nil
}

func extractJSON(content string) ([]byte, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")

	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("模型输出未找到有效JSON: %s", content)
	}

	return []byte(content[start : end+1]), nil
}
