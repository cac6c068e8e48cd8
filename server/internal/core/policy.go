package core

import (
	"os"
	"strings"
)

// TransferPolicy 跨境传输判定策略。
// 源系统用的是关键字表匹配自由文本目的地字段——这只是启发式，
// 不是司法辖区分类器，所以做成可插拔接口而不是写死。
type TransferPolicy interface {
	IsCrossBorder(payload map[string]interface{}) bool
}

// KeywordTransferPolicy 默认实现：目的地类字段包含关键字即判定跨境
type KeywordTransferPolicy struct {
	Fields   []string
	Keywords []string
}

func NewKeywordTransferPolicy() *KeywordTransferPolicy {
	return &KeywordTransferPolicy{
		Fields:   []string{"destination", "transfer_destination", "recipient_country", "region"},
		Keywords: []string{"overseas", "international", "cross-border", "abroad", "foreign"},
	}
}

func (p *KeywordTransferPolicy) IsCrossBorder(payload map[string]interface{}) bool {
	for _, f := range p.Fields {
		v, ok := payload[f]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		lower := strings.ToLower(s)
		for _, kw := range p.Keywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	return false
}

// SecretResolver 按名称解析连接器凭证。配置里只存 secret 名，
// 真实值不落库、不进日志、不进审计哈希。
type SecretResolver interface {
	Resolve(name string) (string, error)
}

// EnvSecretResolver 默认实现：从环境变量取
type EnvSecretResolver struct{}

func (EnvSecretResolver) Resolve(name string) (string, error) {
	v := os.Getenv(name)
	if v == "" {
		return "", NewConfigError("secret %s 未配置", name)
	}
	return v, nil
}
