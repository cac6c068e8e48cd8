package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"GreenLedger/server/internal/core"
)

// APIClient 所有 HTTP 类适配器共用的小客户端。
// 超时/非 2xx 统一包成 TransientError，调度器据此决定重试。
type APIClient struct {
	client  *http.Client
	secrets core.SecretResolver
}

func NewAPIClient(timeout time.Duration, secrets core.SecretResolver) *APIClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &APIClient{
		client:  &http.Client{Timeout: timeout},
		secrets: secrets,
	}
}

// GetJSON 带认证头请求并解码 JSON。tokenSecret 为空表示匿名访问。
func (c *APIClient) GetJSON(ctx context.Context, url string, tokenSecret string, out interface{}) error {
	body, err := c.get(ctx, url, tokenSecret)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return core.NewTransientError(err, "响应不是合法 JSON: %s", url)
	}
	return nil
}

// GetRaw 请求并返回原始字节（RSS 等非 JSON 源用）
func (c *APIClient) GetRaw(ctx context.Context, url string, tokenSecret string) ([]byte, error) {
	return c.get(ctx, url, tokenSecret)
}

func (c *APIClient) get(ctx context.Context, url string, tokenSecret string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, core.NewConfigError("非法 URL: %v", err)
	}
	if tokenSecret != "" {
		// 凭证按名称解析，真实值不出现在任何日志里
		token, err := c.secrets.Resolve(tokenSecret)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, core.NewTransientError(err, "请求失败: %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, core.NewTransientError(
			fmt.Errorf("status %d", resp.StatusCode), "源系统返回非 2xx: %s", url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewTransientError(err, "读取响应失败: %s", url)
	}
	return body, nil
}
