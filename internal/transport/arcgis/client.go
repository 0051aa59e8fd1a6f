// Package arcgis is the Feature Source implementation for ArcGIS REST map
// and feature service layers.
package arcgis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/crookcounty/surveysearch/internal/domain"
	"github.com/crookcounty/surveysearch/internal/domain/dataset"
	"github.com/crookcounty/surveysearch/internal/domain/feature"
	"github.com/crookcounty/surveysearch/internal/domain/record"
	"github.com/crookcounty/surveysearch/internal/resilience"
	"github.com/crookcounty/surveysearch/internal/version"
)

// DefaultWKID is WGS84 longitude/latitude.
const DefaultWKID = 4326

const (
	maxPages     = 200
	maxErrorBody = 2048
)

// Config describes one layer endpoint.
type Config struct {
	// URL is the layer URL, e.g. .../MapServer/0.
	URL     string
	Dataset dataset.ID
	// Fields are the known attribute fields; others are dropped.
	Fields []string
	WKID   int
}

// Client queries one ArcGIS layer.
type Client struct {
	cfg      Config
	http     *http.Client
	limiter  *rate.Limiter
	exec     *resilience.Executor
	requests *prometheus.CounterVec
	logger   *zap.Logger
}

// NewClient creates a layer client. limiter and requests may be nil;
// requests is a counter vec with labels "dataset", "status".
func NewClient(
	cfg Config,
	httpClient *http.Client,
	limiter *rate.Limiter,
	exec *resilience.Executor,
	requests *prometheus.CounterVec,
	logger *zap.Logger,
) *Client {
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if cfg.WKID == 0 {
		cfg.WKID = DefaultWKID
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if exec == nil {
		exec = resilience.NewExecutor(resilience.DefaultConfig(), logger)
	}
	return &Client{cfg: cfg, http: httpClient, limiter: limiter, exec: exec, requests: requests, logger: logger}
}

// Dataset returns the dataset the client serves.
func (c *Client) Dataset() dataset.ID { return c.cfg.Dataset }

// Query runs q against the layer, following result pages until the service
// stops reporting an exceeded transfer limit. Errors satisfy
// errors.Is(err, domain.ErrSourceUnavailable).
func (c *Client) Query(ctx context.Context, q feature.Query) (feature.Set, error) {
	form, err := c.form(q)
	if err != nil {
		return nil, domain.SourceUnavailable("arcgis query "+c.cfg.Dataset.String(), err)
	}

	var (
		out      feature.Set
		consumed int // raw features seen, including quarantined ones
	)
	for page := 0; page < maxPages; page++ {
		if page > 0 {
			form.Set("resultOffset", strconv.Itoa(consumed))
		}
		var resp *response
		err := c.call(ctx, "query", func(ctx context.Context) error {
			var err error
			resp, err = c.post(ctx, form)
			return err
		})
		if err != nil {
			return nil, domain.SourceUnavailable("arcgis query "+c.cfg.Dataset.String(), err)
		}
		consumed += len(resp.Features)
		out = append(out, c.features(resp)...)
		if !resp.exceeded() || len(resp.Features) == 0 {
			return out, nil
		}
	}
	c.logger.Warn("Stopped paging feature source",
		zap.String("dataset", c.cfg.Dataset.String()), zap.Int("features", len(out)))
	return out, nil
}

// Ping fetches layer metadata.
func (c *Client) Ping(ctx context.Context) error {
	err := c.call(ctx, "ping", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"?f=json", nil)
		if err != nil {
			return fmt.Errorf("create ping request: %w", err)
		}
		_, err = c.do(req, "ping")
		return err
	})
	if err != nil {
		return domain.SourceUnavailable("arcgis ping "+c.cfg.Dataset.String(), err)
	}
	return nil
}

func (c *Client) form(q feature.Query) (url.Values, error) {
	form := url.Values{}
	form.Set("where", q.WhereClause())
	form.Set("outFields", strings.Join(q.Fields(), ","))
	form.Set("returnGeometry", strconv.FormatBool(q.ReturnGeometry))
	form.Set("outSR", strconv.Itoa(c.cfg.WKID))
	form.Set("f", "geojson")
	if q.Intersects != nil {
		g, typ, err := encodeGeometry(q.Intersects, c.cfg.WKID)
		if err != nil {
			return nil, err
		}
		form.Set("geometry", g)
		form.Set("geometryType", typ)
		form.Set("inSR", strconv.Itoa(c.cfg.WKID))
		form.Set("spatialRel", "esriSpatialRelIntersects")
	}
	return form, nil
}

// call waits for the rate limiter and runs fn under the executor.
func (c *Client) call(ctx context.Context, op string, fn func(context.Context) error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.inc("rate_limited")
			return fmt.Errorf("rate limit: %w", err)
		}
	}
	err := c.exec.Execute(ctx, "arcgis "+op+" "+c.cfg.Dataset.String(), fn, classify)
	switch {
	case err == nil:
		c.inc("ok")
	case resilience.IsCircuitOpen(err):
		c.inc("circuit_open")
	default:
		c.inc("error")
	}
	return err
}

func (c *Client) post(ctx context.Context, form url.Values) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/query", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	body, err := c.do(req, "query")
	if err != nil {
		return nil, err
	}

	var resp response
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}
	return &resp, nil
}

// do executes req and returns the body, turning HTTP and in-body service
// errors into typed errors.
func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("arcgis %s request: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPStatusError{Operation: op, StatusCode: resp.StatusCode, Status: resp.Status, Body: string(msg)}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", op, err)
	}

	var envelope struct {
		Error *errorDTO `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		return nil, envelope.Error.toDomain()
	}
	return body, nil
}

// features converts GeoJSON features, quarantining those whose attributes
// do not fit the record shape.
func (c *Client) features(resp *response) feature.Set {
	out := make(feature.Set, 0, len(resp.Features))
	for i, f := range resp.Features {
		rec, err := record.New(c.cfg.Dataset, f.Properties, c.cfg.Fields)
		if err != nil {
			c.logger.Warn("Quarantined feature with unexpected attributes",
				zap.String("dataset", c.cfg.Dataset.String()), zap.Int("index", i), zap.Error(err))
			c.inc("quarantined")
			continue
		}
		ft := feature.Feature{Attributes: rec}
		if f.Geometry != nil {
			g, err := f.Geometry.Decode()
			if err != nil {
				c.logger.Warn("Dropped undecodable geometry",
					zap.String("dataset", c.cfg.Dataset.String()), zap.Int("index", i), zap.Error(err))
			} else {
				ft.Geometry = g
			}
		}
		out = append(out, ft)
	}
	return out
}

func (c *Client) inc(status string) {
	if c.requests != nil {
		c.requests.WithLabelValues(c.cfg.Dataset.String(), status).Inc()
	}
}

type response struct {
	Type                  string       `json:"type"`
	Features              []featureDTO `json:"features"`
	ExceededTransferLimit bool         `json:"exceededTransferLimit"`
	Properties            struct {
		ExceededTransferLimit bool `json:"exceededTransferLimit"`
	} `json:"properties"`
}

func (r *response) exceeded() bool {
	return r.ExceededTransferLimit || r.Properties.ExceededTransferLimit
}

type featureDTO struct {
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties map[string]any    `json:"properties"`
}

type errorDTO struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

func (e *errorDTO) toDomain() error {
	return &ServiceError{Code: e.Code, Message: e.Message, Details: e.Details}
}
