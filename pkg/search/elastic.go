package search

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/elastic/go-elasticsearch/v8/esutil"

	"github.com/exploopio/lakesync/pkg/errors"
	"github.com/exploopio/lakesync/pkg/logging"
)

// ElasticConfig configures an Elastic backend.
type ElasticConfig struct {
	Addresses []string
	Username  string
	Password  string
	APIKey    string

	// RefreshInterval is set on newly created indices for bulk loading.
	// Default: "30s"
	RefreshInterval string

	// FlushBytes bounds the body of one bulk request. Default: 5MB
	FlushBytes int

	// Transport overrides the HTTP transport.
	Transport http.RoundTripper

	Logger logging.Logger
}

var _ Backend = (*Elastic)(nil)

// Elastic is a Backend over an Elasticsearch 8 cluster.
type Elastic struct {
	client          *elasticsearch.Client
	refreshInterval string
	flushBytes      int
	logger          logging.Logger
}

// NewElastic creates an Elastic backend. The client does not retry on its
// own; retries belong to the chunk that issued the request.
func NewElastic(cfg ElasticConfig) (*Elastic, error) {
	const op = "search.NewElastic"

	if len(cfg.Addresses) == 0 {
		return nil, errors.E(errors.KindInvalidInput, op, "at least one cluster address is required")
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    cfg.Addresses,
		Username:     cfg.Username,
		Password:     cfg.Password,
		APIKey:       cfg.APIKey,
		Transport:    cfg.Transport,
		DisableRetry: true,
	})
	if err != nil {
		return nil, errors.E(errors.KindInvalidInput, op, err)
	}

	e := &Elastic{
		client:          client,
		refreshInterval: cfg.RefreshInterval,
		flushBytes:      cfg.FlushBytes,
		logger:          logging.OrNop(cfg.Logger),
	}
	if e.refreshInterval == "" {
		e.refreshInterval = "30s"
	}
	if e.flushBytes <= 0 {
		e.flushBytes = 5 << 20
	}
	return e, nil
}

// SyncIndex implements Backend.
func (e *Elastic) SyncIndex(ctx context.Context, index string, mapping Mapping) error {
	const op = "search.SyncIndex"

	res, err := e.client.Indices.Get([]string{index}, e.client.Indices.Get.WithContext(ctx))
	if err != nil {
		return errors.E(errors.KindNetwork, op, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		idxErr := responseError(res, index)
		if !errors.IsNotFoundError(idxErr) {
			return errors.E(errors.KindIndex, op, "get index", idxErr)
		}
		e.logger.Info("index %s not found, creating it", index)
		return e.createIndex(ctx, index, mapping)
	}
	return e.putMapping(ctx, index, mapping)
}

func (e *Elastic) createIndex(ctx context.Context, index string, mapping Mapping) error {
	const op = "search.createIndex"

	body, err := jsonBody(map[string]any{"mappings": map[string]any{"properties": withSuggest(mapping)}})
	if err != nil {
		return errors.E(errors.KindInternal, op, err)
	}
	res, err := e.client.Indices.Create(index,
		e.client.Indices.Create.WithBody(body),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return errors.E(errors.KindNetwork, op, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		idxErr := responseError(res, index)
		if idxErr.Type == "resource_already_exists_exception" {
			// Created concurrently; treat as present.
			return e.putMapping(ctx, index, mapping)
		}
		return errors.E(errors.KindIndex, op, "create index", idxErr)
	}

	settings, err := jsonBody(map[string]any{"index": map[string]any{"refresh_interval": e.refreshInterval}})
	if err != nil {
		return errors.E(errors.KindInternal, op, err)
	}
	sres, err := e.client.Indices.PutSettings(settings,
		e.client.Indices.PutSettings.WithIndex(index),
		e.client.Indices.PutSettings.WithContext(ctx),
	)
	if err != nil {
		return errors.E(errors.KindNetwork, op, err)
	}
	defer sres.Body.Close()
	if sres.IsError() {
		return errors.E(errors.KindIndex, op, "put settings", responseError(sres, index))
	}
	return nil
}

func (e *Elastic) putMapping(ctx context.Context, index string, mapping Mapping) error {
	const op = "search.putMapping"

	body, err := jsonBody(map[string]any{"properties": mapping})
	if err != nil {
		return errors.E(errors.KindInternal, op, err)
	}
	res, err := e.client.Indices.PutMapping([]string{index}, body,
		e.client.Indices.PutMapping.WithContext(ctx),
	)
	if err != nil {
		return errors.E(errors.KindNetwork, op, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return errors.E(errors.KindIndex, op, "put mapping", responseError(res, index))
	}
	return nil
}

// updateAction is the body of a bulk update item.
type updateAction struct {
	Doc         any  `json:"doc"`
	DocAsUpsert bool `json:"doc_as_upsert"`
}

// BulkUpsert implements Backend.
func (e *Elastic) BulkUpsert(ctx context.Context, index string, docs []Document) error {
	const op = "search.BulkUpsert"

	if len(docs) == 0 {
		return nil
	}

	var (
		mu       sync.Mutex
		failures []errors.BulkFailure
		flushErr error
	)
	recordErr := func(err error) {
		mu.Lock()
		if flushErr == nil {
			flushErr = err
		}
		mu.Unlock()
	}

	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:     e.client,
		Index:      index,
		NumWorkers: 1,
		FlushBytes: e.flushBytes,
		OnError:    func(_ context.Context, err error) { recordErr(err) },
	})
	if err != nil {
		return errors.E(errors.KindInternal, op, err)
	}

	onFailure := func(_ context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
		if err != nil {
			recordErr(err)
			return
		}
		mu.Lock()
		failures = append(failures, errors.BulkFailure{
			DocumentID: item.DocumentID,
			Status:     res.Status,
			Type:       res.Error.Type,
			Reason:     res.Error.Reason,
		})
		mu.Unlock()
	}

	for _, doc := range docs {
		body, err := json.Marshal(updateAction{Doc: doc.Body, DocAsUpsert: true})
		if err != nil {
			_ = bi.Close(ctx)
			return errors.E(errors.KindInvalidInput, op, "encode document "+doc.ID, err)
		}
		err = bi.Add(ctx, esutil.BulkIndexerItem{
			Action:     "update",
			DocumentID: doc.ID,
			Routing:    doc.Routing,
			Body:       bytes.NewReader(body),
			OnFailure:  onFailure,
		})
		if err != nil {
			_ = bi.Close(ctx)
			return errors.E(errors.KindTimeout, op, err)
		}
	}
	if err := bi.Close(ctx); err != nil {
		return errors.E(errors.KindNetwork, op, err)
	}

	if flushErr != nil {
		return errors.E(errors.KindNetwork, op, "bulk request failed", flushErr)
	}
	if len(failures) > 0 {
		sort.Slice(failures, func(i, j int) bool { return failures[i].DocumentID < failures[j].DocumentID })
		return errors.E(errors.KindIndex, op, &errors.BulkError{Index: index, Failures: failures})
	}

	stats := bi.Stats()
	e.logger.Debug("bulk upsert into %s: %d documents, %d requests", index, stats.NumFlushed, stats.NumRequests)
	return nil
}

// DeleteIndex implements Backend.
func (e *Elastic) DeleteIndex(ctx context.Context, index string) error {
	const op = "search.DeleteIndex"

	res, err := e.client.Indices.Delete([]string{index}, e.client.Indices.Delete.WithContext(ctx))
	if err != nil {
		return errors.E(errors.KindNetwork, op, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		idxErr := responseError(res, index)
		if errors.IsNotFoundError(idxErr) {
			return nil
		}
		return errors.E(errors.KindIndex, op, "delete index", idxErr)
	}
	return nil
}

// Ping implements Backend.
func (e *Elastic) Ping(ctx context.Context) error {
	const op = "search.Ping"

	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return errors.E(errors.KindNetwork, op, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return errors.E(errors.KindIndex, op, responseError(res, ""))
	}
	return nil
}

// responseError decodes a cluster error response.
func responseError(res *esapi.Response, index string) *errors.IndexError {
	idxErr := &errors.IndexError{StatusCode: res.StatusCode, Index: index}

	var body struct {
		Error json.RawMessage `json:"error"`
	}
	if res.Body != nil {
		data, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
		_ = json.Unmarshal(data, &body)
	}

	var detail struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}
	if len(body.Error) > 0 && json.Unmarshal(body.Error, &detail) != nil {
		// Some endpoints report the error as a plain string.
		_ = json.Unmarshal(body.Error, &detail.Reason)
	}
	idxErr.Type = detail.Type
	idxErr.Reason = detail.Reason
	if idxErr.Reason == "" {
		idxErr.Reason = http.StatusText(res.StatusCode)
	}
	return idxErr
}

func jsonBody(v any) (io.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}
