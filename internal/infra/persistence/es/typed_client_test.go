package es

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/LouYuanbo1/authorharvest/internal/config"
	"github.com/LouYuanbo1/authorharvest/internal/infra/persistence"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const base = "http://es.test:9200"

func esResponse(status int, body string) *http.Response {
	resp := httpmock.NewStringResponse(status, body)
	resp.Header.Set("Content-Type", "application/json")
	resp.Header.Set("X-Elastic-Product", "Elasticsearch")
	return resp
}

type fakeCluster struct {
	mu      sync.Mutex
	calls   []string
	docs    map[string]map[string]string
	mapping string
}

func (c *fakeCluster) record(call string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
}

func (c *fakeCluster) register(mt *httpmock.MockTransport) {
	mt.RegisterResponder(http.MethodDelete, base+"/books", func(*http.Request) (*http.Response, error) {
		c.record("delete")
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.docs == nil {
			return esResponse(404, `{"error":{"type":"index_not_found_exception","reason":"no such index [books]"},"status":404}`), nil
		}
		c.docs = nil
		return esResponse(200, `{"acknowledged":true}`), nil
	})
	mt.RegisterResponder(http.MethodPut, base+"/books", func(req *http.Request) (*http.Response, error) {
		c.record("create")
		var body strings.Builder
		_, _ = bufio.NewReader(req.Body).WriteTo(&body)
		c.mu.Lock()
		c.docs = map[string]map[string]string{}
		c.mapping = body.String()
		c.mu.Unlock()
		return esResponse(200, `{"acknowledged":true,"shards_acknowledged":true,"index":"books"}`), nil
	})
	mt.RegisterResponder(http.MethodPost, base+"/books/_bulk", func(req *http.Request) (*http.Response, error) {
		c.record("bulk")
		var items []string
		scanner := bufio.NewScanner(req.Body)
		for scanner.Scan() {
			var action struct {
				Index struct {
					ID string `json:"_id"`
				} `json:"index"`
			}
			if err := json.Unmarshal(scanner.Bytes(), &action); err != nil || action.Index.ID == "" {
				return esResponse(400, `{"error":{"type":"parse_exception","reason":"bad bulk"},"status":400}`), nil
			}
			if !scanner.Scan() {
				break
			}
			var doc map[string]string
			if err := json.Unmarshal(scanner.Bytes(), &doc); err != nil {
				return esResponse(400, `{"error":{"type":"parse_exception","reason":"bad doc"},"status":400}`), nil
			}
			c.mu.Lock()
			c.docs[action.Index.ID] = doc
			c.mu.Unlock()
			items = append(items, fmt.Sprintf(`{"index":{"_index":"books","_id":%q,"status":201,"result":"created"}}`, action.Index.ID))
		}
		return esResponse(200, `{"took":1,"errors":false,"items":[`+strings.Join(items, ",")+`]}`), nil
	})
	mt.RegisterResponder(http.MethodPost, base+"/books/_refresh", func(*http.Request) (*http.Response, error) {
		c.record("refresh")
		return esResponse(200, `{"_shards":{"total":1,"successful":1,"failed":0}}`), nil
	})
}

func newTestSink(t *testing.T, mt *httpmock.MockTransport) *Sink {
	t.Helper()
	s, err := NewSink(config.ElasticConfig{Address: base, Index: "books"}, mt, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestPublishRebuildsIndex(t *testing.T) {
	mt := httpmock.NewMockTransport()
	cluster := &fakeCluster{}
	cluster.register(mt)
	s := newTestSink(t, mt)
	ctx := context.Background()

	header := []string{"Book ID", "Book Title", "Join Author's Newsletter"}
	require.NoError(t, s.Publish(ctx, header, [][]string{{"1", "One", ""}, {"", "Two", "https://news"}}))
	assert.Equal(t, []string{"delete", "create", "bulk", "refresh"}, cluster.calls)
	assert.Contains(t, cluster.mapping, `"join_authors_newsletter"`)
	require.Len(t, cluster.docs, 2)
	assert.Equal(t, map[string]string{"book_id": "", "book_title": "Two", "join_authors_newsletter": "https://news"}, cluster.docs["1"])

	require.NoError(t, s.Publish(ctx, header, [][]string{{"3", "Three", ""}}))
	assert.Len(t, cluster.docs, 1, "second publish replaces the first")
	assert.Equal(t, "Three", cluster.docs["0"]["book_title"])
}

func TestPublishUnauthorized(t *testing.T) {
	mt := httpmock.NewMockTransport()
	mt.RegisterResponder(http.MethodDelete, base+"/books", func(*http.Request) (*http.Response, error) {
		return esResponse(401, `{"error":{"type":"security_exception","reason":"missing authentication credentials"},"status":401}`), nil
	})
	s := newTestSink(t, mt)

	err := s.Publish(context.Background(), []string{"Book ID"}, nil)
	assert.ErrorIs(t, err, persistence.ErrUnauthorized)
}

func TestFieldName(t *testing.T) {
	assert.Equal(t, "author_website", FieldName("Author Website"))
	assert.Equal(t, "join_authors_newsletter", FieldName("Join Author's Newsletter"))
	assert.Equal(t, "youtube", FieldName("YouTube"))
}
