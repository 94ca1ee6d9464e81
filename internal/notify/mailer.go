package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"catalyst-trader/internal/config"
)

// Mailer 通过 SMTP 发送纯文本周期报告，未启用时所有调用为空操作。
type Mailer struct {
	cfg    config.NotifyConfig
	logger *zap.Logger
	send   func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

// NewMailer 创建邮件通知器。
func NewMailer(cfg config.NotifyConfig, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mailer{
		cfg:    cfg,
		logger: logger,
		send:   smtp.SendMail,
	}
}

// Send 发送一封纯文本邮件。
func (m *Mailer) Send(subject, body string) error {
	if !m.cfg.Enabled {
		return nil
	}

	from := m.cfg.Username
	if from == "" {
		from = "catalyst-trader@localhost"
	}
	recipients := splitRecipients(m.cfg.To)
	if len(recipients) == 0 {
		return fmt.Errorf("notify: 收件地址为空")
	}

	var auth smtp.Auth
	if m.cfg.Username != "" && m.cfg.Password != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.SMTPHost)
	}

	msg := buildMessage(from, recipients, subject, body)
	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPHost, m.cfg.SMTPPort)
	if err := m.send(addr, auth, from, recipients, msg); err != nil {
		return fmt.Errorf("notify: 发送邮件失败: %w", err)
	}

	m.logger.Info("周期报告邮件已发送",
		zap.String("subject", subject),
		zap.Strings("to", recipients),
	)
	return nil
}

func splitRecipients(to string) []string {
	parts := strings.Split(to, ",")
	recipients := make([]string, 0, len(parts))
	for _, p := range parts {
		if addr := strings.TrimSpace(p); addr != "" {
			recipients = append(recipients, addr)
		}
	}
	return recipients
}

func buildMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
