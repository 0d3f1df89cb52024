package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/LouYuanbo1/authorharvest/internal/config"
	"github.com/LouYuanbo1/authorharvest/internal/infra/persistence"
	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/esutil"
	"github.com/elastic/go-elasticsearch/v9/typedapi/types"
	"go.uber.org/zap"
)

// Sink 每次发布重建索引, 每一行是一个文档
type Sink struct {
	client *elasticsearch.TypedClient
	index  string
	logger *zap.Logger
}

var _ persistence.Sink = (*Sink)(nil)

// NewSink transport 为 nil 时使用默认连接池设置
func NewSink(cfg config.ElasticConfig, transport http.RoundTripper, logger *zap.Logger) (*Sink, error) {
	if transport == nil {
		transport = &http.Transport{
			MaxIdleConnsPerHost:   10,
			ResponseHeaderTimeout: 30 * time.Second,
			IdleConnTimeout:       90 * time.Second,
			// 仅用于自签名证书的开发环境
			TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
		}
	}
	typedClient, err := elasticsearch.NewTypedClient(elasticsearch.Config{
		Username:  cfg.Username,
		Password:  cfg.Password,
		Addresses: []string{cfg.Address},
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Elasticsearch client: %w", err)
	}
	return &Sink{client: typedClient, index: cfg.Index, logger: logger}, nil
}

func (s *Sink) Name() string {
	return config.SinkElastic
}

// FieldName 列名转为文档字段名, 例如 "Join Author's Newsletter" -> "join_authors_newsletter"
func FieldName(column string) string {
	column = strings.ReplaceAll(column, "'", "")
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(column)), " ", "_")
}

func mapping(header []string) *types.TypeMapping {
	props := make(map[string]types.Property, len(header))
	for _, col := range header {
		props[FieldName(col)] = types.NewKeywordProperty()
	}
	return &types.TypeMapping{Properties: props}
}

// classify 把 401/403 归为鉴权失败, 404 视为不存在
func classify(err error) error {
	var esErr *types.ElasticsearchError
	if errors.As(err, &esErr) && (esErr.Status == http.StatusUnauthorized || esErr.Status == http.StatusForbidden) {
		return fmt.Errorf("%w: %v", persistence.ErrUnauthorized, err)
	}
	return err
}

func isNotFound(err error) bool {
	var esErr *types.ElasticsearchError
	return errors.As(err, &esErr) && esErr.Status == http.StatusNotFound
}

func (s *Sink) Publish(ctx context.Context, header []string, rows [][]string) error {
	if err := s.DeleteIndex(ctx); err != nil {
		return err
	}
	if _, err := s.client.Indices.Create(s.index).Mappings(mapping(header)).Do(ctx); err != nil {
		return fmt.Errorf("failed to create index in es: %w", classify(err))
	}
	if err := s.bulkIndex(ctx, header, rows); err != nil {
		return err
	}
	if _, err := s.client.Indices.Refresh().Index(s.index).Do(ctx); err != nil {
		return fmt.Errorf("failed to refresh index in es: %w", classify(err))
	}
	return nil
}

// DeleteIndex 删除索引, 索引不存在不算错误
func (s *Sink) DeleteIndex(ctx context.Context) error {
	_, err := s.client.Indices.Delete(s.index).Do(ctx)
	if err == nil || isNotFound(err) {
		return nil
	}
	return fmt.Errorf("failed to delete index in es: %w", classify(err))
}

func (s *Sink) bulkIndex(ctx context.Context, header []string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Index:         s.index,
		Client:        s.client,
		NumWorkers:    1,
		FlushBytes:    5 * 1024 * 1024,
		FlushInterval: 30 * time.Second,
		OnError: func(_ context.Context, err error) {
			s.logger.Error("bulk indexer error", zap.Error(err))
		},
	})
	if err != nil {
		return fmt.Errorf("error creating bulk indexer: %w", err)
	}

	var failed atomic.Int64
	for i, row := range rows {
		doc := make(map[string]string, len(header))
		for j, col := range header {
			if j < len(row) {
				doc[FieldName(col)] = row[j]
			}
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("error marshaling row %d: %w", i, err)
		}
		// book_id 可能为空, 用行号作为文档 ID
		err = bi.Add(ctx, esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: strconv.Itoa(i),
			Body:       bytes.NewReader(data),
			OnFailure: func(_ context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				failed.Add(1)
				if err != nil {
					s.logger.Error("error indexing document", zap.String("id", item.DocumentID), zap.Error(err))
				} else {
					s.logger.Error("failed to index document", zap.String("id", item.DocumentID), zap.String("reason", res.Error.Reason))
				}
			},
		})
		if err != nil {
			_ = bi.Close(ctx)
			return fmt.Errorf("unexpected bulk error: %w", err)
		}
	}
	if err := bi.Close(ctx); err != nil {
		return fmt.Errorf("error closing bulk indexer: %w", err)
	}

	stats := bi.Stats()
	s.logger.Info("bulk indexing completed", zap.Uint64("indexed", stats.NumIndexed), zap.Uint64("failed", stats.NumFailed))
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d documents failed to index", n)
	}
	return nil
}
