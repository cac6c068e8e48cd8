package core

import "testing"

func TestKeywordTransferPolicy(t *testing.T) {
	p := NewKeywordTransferPolicy()

	flagged := []map[string]interface{}{
		{"destination": "Overseas warehouse"},
		{"transfer_destination": "international DC"},
		{"recipient_country": "cross-border partner"},
	}
	for _, payload := range flagged {
		if !p.IsCrossBorder(payload) {
			t.Errorf("payload %v should be flagged", payload)
		}
	}

	clean := []map[string]interface{}{
		{"destination": "local depot"},
		{"region": 42}, // 非字符串字段忽略
		{"kwh": 10},
		{},
	}
	for _, payload := range clean {
		if p.IsCrossBorder(payload) {
			t.Errorf("payload %v should not be flagged", payload)
		}
	}
}
