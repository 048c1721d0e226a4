package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kazz187/taskmirror/pkg/cerr"
	"github.com/kazz187/taskmirror/pkg/restclient"
)

const (
	DefaultNotionBaseURL = "https://api.notion.com/v1"
	DefaultNotionVersion = "2022-06-28"

	notionPageSize = 100
)

type NotionConfig struct {
	Token         string
	DatabaseID    string
	BaseURL       string
	Version       string
	Timeout       time.Duration
	RatePerSecond float64
}

// NotionClient lists the pages of one Notion database.
type NotionClient struct {
	api        *restclient.Client
	databaseID string
}

func NewNotionClient(cfg NotionConfig) *NotionClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultNotionBaseURL
	}
	if cfg.Version == "" {
		cfg.Version = DefaultNotionVersion
	}
	return &NotionClient{
		api: restclient.New(restclient.Config{
			BaseURL: cfg.BaseURL,
			Header: http.Header{
				"Authorization":  []string{"Bearer " + cfg.Token},
				"Notion-Version": []string{cfg.Version},
			},
			Timeout:       cfg.Timeout,
			RatePerSecond: cfg.RatePerSecond,
		}),
		databaseID: cfg.DatabaseID,
	}
}

type notionSort struct {
	Timestamp string `json:"timestamp"`
	Direction string `json:"direction"`
}

type notionQuery struct {
	Sorts       []notionSort `json:"sorts"`
	PageSize    int          `json:"page_size"`
	StartCursor string       `json:"start_cursor,omitempty"`
}

type notionQueryResult struct {
	Results    []notionPage `json:"results"`
	HasMore    bool         `json:"has_more"`
	NextCursor *string      `json:"next_cursor"`
}

// ListRecords follows the query cursor until the database is exhausted, so
// the result is complete however large the database is.
func (c *NotionClient) ListRecords(ctx context.Context) ([]*Record, error) {
	path := fmt.Sprintf("/databases/%s/query", c.databaseID)
	query := notionQuery{
		Sorts:    []notionSort{{Timestamp: "created_time", Direction: "descending"}},
		PageSize: notionPageSize,
	}

	var records []*Record
	for page := 1; ; page++ {
		var result notionQueryResult
		if err := c.api.Do(ctx, http.MethodPost, path, query, &result); err != nil {
			return nil, cerr.WrapTransportError("notion query", err)
		}
		for i := range result.Results {
			if rec := result.Results[i].record(); rec != nil {
				records = append(records, rec)
			}
		}
		if !result.HasMore || result.NextCursor == nil || *result.NextCursor == "" {
			break
		}
		slog.DebugContext(ctx, "notion: fetching next page", "page", page+1, "records", len(records))
		query.StartCursor = *result.NextCursor
	}
	return records, nil
}
