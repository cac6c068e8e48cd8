package connector

import (
	"context"

	"GreenLedger/server/internal/core"
)

// DocumentLibraryAdapter 文档库源：拉文档元数据和结构化附表。
// Config: {"base_url": "...", "api_key_secret": "...", "library": "..."}
type DocumentLibraryAdapter struct {
	api *APIClient
}

func NewDocumentLibraryAdapter(api *APIClient) *DocumentLibraryAdapter {
	return &DocumentLibraryAdapter{api: api}
}

func (a *DocumentLibraryAdapter) ValidateConfig(config map[string]interface{}) error {
	for _, key := range []string{"base_url", "api_key_secret", "library"} {
		if _, err := core.RequireString(config, key); err != nil {
			return err
		}
	}
	return nil
}

func (a *DocumentLibraryAdapter) DiscoverSchema(ctx context.Context, config map[string]interface{}) ([]core.ColumnInfo, error) {
	records, err := a.FetchRows(ctx, config)
	if err != nil {
		return nil, err
	}
	return schemaFromRecords(records), nil
}

func (a *DocumentLibraryAdapter) FetchRows(ctx context.Context, config map[string]interface{}) ([]core.RawRecord, error) {
	if err := a.ValidateConfig(config); err != nil {
		return nil, err
	}
	baseURL, _ := core.RequireString(config, "base_url")
	tokenSecret, _ := core.RequireString(config, "api_key_secret")
	library, _ := core.RequireString(config, "library")

	var docs []map[string]interface{}
	if err := a.api.GetJSON(ctx, baseURL+"/libraries/"+library+"/documents", tokenSecret, &docs); err != nil {
		return nil, err
	}

	records := make([]core.RawRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, core.RawRecord{Table: "documents", Payload: doc})
	}
	return records, nil
}
