package connector

import (
	"context"
	"encoding/xml"

	"GreenLedger/server/internal/core"
)

// FeedAdapter RSS 订阅源（监管公告、行业披露动态）。
// Config: {"feed_url": "..."}，公开 Feed 不需要凭证。
type FeedAdapter struct {
	api *APIClient
}

func NewFeedAdapter(api *APIClient) *FeedAdapter {
	return &FeedAdapter{api: api}
}

type rssDocument struct {
	Channel struct {
		Title string    `xml:"title"`
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	GUID        string `xml:"guid"`
}

func (a *FeedAdapter) ValidateConfig(config map[string]interface{}) error {
	if _, err := core.RequireString(config, "feed_url"); err != nil {
		return err
	}
	return nil
}

func (a *FeedAdapter) DiscoverSchema(ctx context.Context, config map[string]interface{}) ([]core.ColumnInfo, error) {
	records, err := a.FetchRows(ctx, config)
	if err != nil {
		return nil, err
	}
	return schemaFromRecords(records), nil
}

func (a *FeedAdapter) FetchRows(ctx context.Context, config map[string]interface{}) ([]core.RawRecord, error) {
	feedURL, err := core.RequireString(config, "feed_url")
	if err != nil {
		return nil, err
	}

	body, err := a.api.GetRaw(ctx, feedURL, "")
	if err != nil {
		return nil, err
	}

	var doc rssDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, core.NewTransientError(err, "RSS 解析失败: %s", feedURL)
	}

	records := make([]core.RawRecord, 0, len(doc.Channel.Items))
	for _, item := range doc.Channel.Items {
		records = append(records, core.RawRecord{
			Table: "feed_items",
			Payload: map[string]interface{}{
				"guid":        item.GUID,
				"title":       item.Title,
				"link":        item.Link,
				"description": item.Description,
				"pub_date":    item.PubDate,
				"source":      doc.Channel.Title,
			},
		})
	}
	return records, nil
}
