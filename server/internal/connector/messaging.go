package connector

import (
	"context"

	"GreenLedger/server/internal/core"
)

// MessagingAdapter 消息频道源（运营群里上报的数据读数）。
// Config: {"base_url": "...", "api_key_secret": "...", "channel": "..."}
type MessagingAdapter struct {
	api *APIClient
}

func NewMessagingAdapter(api *APIClient) *MessagingAdapter {
	return &MessagingAdapter{api: api}
}

func (a *MessagingAdapter) ValidateConfig(config map[string]interface{}) error {
	for _, key := range []string{"base_url", "api_key_secret", "channel"} {
		if _, err := core.RequireString(config, key); err != nil {
			return err
		}
	}
	return nil
}

func (a *MessagingAdapter) DiscoverSchema(ctx context.Context, config map[string]interface{}) ([]core.ColumnInfo, error) {
	records, err := a.FetchRows(ctx, config)
	if err != nil {
		return nil, err
	}
	return schemaFromRecords(records), nil
}

func (a *MessagingAdapter) FetchRows(ctx context.Context, config map[string]interface{}) ([]core.RawRecord, error) {
	if err := a.ValidateConfig(config); err != nil {
		return nil, err
	}
	baseURL, _ := core.RequireString(config, "base_url")
	tokenSecret, _ := core.RequireString(config, "api_key_secret")
	channel, _ := core.RequireString(config, "channel")

	var messages []map[string]interface{}
	if err := a.api.GetJSON(ctx, baseURL+"/channels/"+channel+"/messages", tokenSecret, &messages); err != nil {
		return nil, err
	}

	records := make([]core.RawRecord, 0, len(messages))
	for _, msg := range messages {
		records = append(records, core.RawRecord{Table: "messages", Payload: msg})
	}
	return records, nil
}
