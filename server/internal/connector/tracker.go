package connector

import (
	"context"

	"GreenLedger/server/internal/core"
)

// IssueTrackerAdapter 工单系统（环境事件、整改任务等都挂在工单里）。
// Config: {"base_url": "...", "api_key_secret": "...", "project": "可选"}
type IssueTrackerAdapter struct {
	api *APIClient
}

func NewIssueTrackerAdapter(api *APIClient) *IssueTrackerAdapter {
	return &IssueTrackerAdapter{api: api}
}

func (a *IssueTrackerAdapter) ValidateConfig(config map[string]interface{}) error {
	if _, err := core.RequireString(config, "base_url"); err != nil {
		return err
	}
	if _, err := core.RequireString(config, "api_key_secret"); err != nil {
		return err
	}
	return nil
}

func (a *IssueTrackerAdapter) DiscoverSchema(ctx context.Context, config map[string]interface{}) ([]core.ColumnInfo, error) {
	records, err := a.FetchRows(ctx, config)
	if err != nil {
		return nil, err
	}
	return schemaFromRecords(records), nil
}

func (a *IssueTrackerAdapter) FetchRows(ctx context.Context, config map[string]interface{}) ([]core.RawRecord, error) {
	baseURL, err := core.RequireString(config, "base_url")
	if err != nil {
		return nil, err
	}
	tokenSecret, err := core.RequireString(config, "api_key_secret")
	if err != nil {
		return nil, err
	}

	url := baseURL + "/issues"
	if project := core.OptionalString(config, "project", ""); project != "" {
		url += "?project=" + project
	}

	var issues []map[string]interface{}
	if err := a.api.GetJSON(ctx, url, tokenSecret, &issues); err != nil {
		return nil, err
	}

	records := make([]core.RawRecord, 0, len(issues))
	for _, issue := range issues {
		records = append(records, core.RawRecord{Table: "issues", Payload: issue})
	}
	return records, nil
}
