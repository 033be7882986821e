package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/config"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/service"
)

// Client 通过上游 SMTP 服务器投递预热邮件。
//
// 每次发送建立独立连接，预热流量低频，连接复用不值得引入
// 连接池的状态管理。连接全程受截止时间约束，挂死的服务器
// 不会拖住发送 tick。
type Client struct {
	cfg config.SMTPConfig
	log *zap.Logger
}

// NewClient 创建 SMTP 投递客户端。
func NewClient(cfg config.SMTPConfig, log *zap.Logger) *Client {
	return &Client{cfg: cfg, log: log}
}

// Send 投递一封邮件并返回生成的 Message-ID。
func (c *Client) Send(ctx context.Context, email service.OutgoingEmail) (string, error) {
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)

	dialer := &net.Dialer{Timeout: c.cfg.SendTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	// 整个会话共用一个截止时间
	deadline := time.Now().Add(c.cfg.SendTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetDeadline(deadline)

	client := gosmtp.NewClient(conn)
	defer client.Close()

	if err := client.Hello(c.cfg.HeloDomain); err != nil {
		return "", fmt.Errorf("EHLO failed: %w", err)
	}

	if c.cfg.StartTLS {
		if err := client.StartTLS(&tls.Config{ServerName: c.cfg.Host}); err != nil {
			return "", fmt.Errorf("STARTTLS failed: %w", err)
		}
	}

	if c.cfg.Username != "" {
		auth := sasl.NewPlainClient("", c.cfg.Username, c.cfg.Password)
		if err := client.Auth(auth); err != nil {
			return "", fmt.Errorf("authentication failed: %w", err)
		}
	}

	if err := client.Mail(email.From, nil); err != nil {
		return "", fmt.Errorf("MAIL FROM failed: %w", err)
	}
	if err := client.Rcpt(email.To, nil); err != nil {
		return "", fmt.Errorf("RCPT TO failed: %w", err)
	}

	messageID := c.newMessageID(email.From)
	w, err := client.Data()
	if err != nil {
		return "", fmt.Errorf("DATA failed: %w", err)
	}
	if _, err := w.Write(buildMessage(email, messageID)); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finish message: %w", err)
	}

	if err := client.Quit(); err != nil {
		// 投递已被接受，QUIT 失败只记日志
		c.log.Debug("QUIT failed after accepted delivery", zap.Error(err))
	}
	return messageID, nil
}

// newMessageID 生成 Message-ID，域部分取发件地址的域
func (c *Client) newMessageID(from string) string {
	domain := c.cfg.HeloDomain
	if idx := strings.Index(from, "@"); idx >= 0 && idx < len(from)-1 {
		domain = from[idx+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

// buildMessage 构造 RFC 5322 纯文本邮件
func buildMessage(email service.OutgoingEmail, messageID string) []byte {
	var b strings.Builder

	from := email.From
	if email.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", email.FromName), email.From)
	}

	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", email.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", email.Subject))
	fmt.Fprintf(&b, "Message-ID: %s\r\n", messageID)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(email.Body, "\n", "\r\n"))
	b.WriteString("\r\n")

	return []byte(b.String())
}
