package chi

import (
	"encoding/json"
	"time"

	"github.com/crookcounty/surveysearch/internal/render"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type searchRequest struct {
	Query string `json:"query"`
	Mode  string `json:"mode,omitempty"`
	Field string `json:"field,omitempty"`
}

type searchResponse struct {
	SessionID string           `json:"session_id"`
	Seq       uint64           `json:"seq"`
	Outcome   string           `json:"outcome"`
	Count     int              `json:"count,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	Viewport  *render.Viewport `json:"viewport,omitempty"`
}

type prefetchRequest struct {
	Datasets []string `json:"datasets"`
}

type prefetchResult struct {
	Dataset string `json:"dataset"`
	Records int    `json:"records"`
	Error   string `json:"error,omitempty"`
}

type prefetchResponse struct {
	Results []prefetchResult `json:"results"`
}

type snapshotItem struct {
	Dataset   string     `json:"dataset"`
	Ready     bool       `json:"ready"`
	Restored  bool       `json:"restored"`
	Records   int        `json:"records"`
	FetchedAt *time.Time `json:"fetched_at,omitempty"`
}

type snapshotListResponse struct {
	Items []snapshotItem `json:"items"`
}

type layerResponse struct {
	Count    int             `json:"count"`
	Features json.RawMessage `json:"features,omitempty"`
}

type sessionResponse struct {
	ID          string                   `json:"id"`
	Seq         uint64                   `json:"seq"`
	Mode        string                   `json:"mode,omitempty"`
	Query       string                   `json:"query"`
	State       string                   `json:"state"`
	Stage       string                   `json:"stage,omitempty"`
	LastOutcome string                   `json:"last_outcome,omitempty"`
	LastReason  string                   `json:"last_reason,omitempty"`
	LastUsed    time.Time                `json:"last_used"`
	Layers      map[string]layerResponse `json:"layers,omitempty"`
	Viewport    *render.Viewport         `json:"viewport,omitempty"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
