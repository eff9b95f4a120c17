package gateway

import "time"

// DefaultBaseURL is the public Cloudflare v4 API root.
const DefaultBaseURL = "https://api.cloudflare.com/client/v4"

// DefaultMaxPages caps list pagination when the config leaves it unset.
const DefaultMaxPages = 1000

// Config holds the settings needed to reach the Zero Trust Gateway lists API.
type Config struct {
	BaseURL    string
	AccountID  string
	APIToken   string
	Timeout    time.Duration
	MaxPages   int
	MaxRetries int
}

// ListItem is one entry of a gateway list.
type ListItem struct {
	Value string `json:"value"`
}

// ResultInfo carries the pagination block of a list-items response.
type ResultInfo struct {
	Page       int  `json:"page,omitempty"`
	PerPage    int  `json:"per_page,omitempty"`
	TotalPages *int `json:"total_pages,omitempty"`
	TotalCount int  `json:"total_count,omitempty"`
}

// ListItemsResponse is the body of GET .../lists/{id}/items.
type ListItemsResponse struct {
	Result     []ListItem  `json:"result"`
	ResultInfo *ResultInfo `json:"result_info,omitempty"`
}

// appendRequest is the PATCH body that adds items. Values are objects.
type appendRequest struct {
	Append []ListItem `json:"append"`
}

// removeRequest is the PATCH body that removes items. Values are plain
// strings, not objects.
type removeRequest struct {
	Remove []string `json:"remove"`
}
