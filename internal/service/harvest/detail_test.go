package harvest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LouYuanbo1/authorharvest/internal/domain/entity"
	"github.com/LouYuanbo1/authorharvest/internal/domain/model"
	"github.com/LouYuanbo1/authorharvest/internal/infra/crawler/types"
	"github.com/LouYuanbo1/authorharvest/internal/service/harvest/param"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testPacing = param.Pacing{
	SettleMin:   1500 * time.Millisecond,
	SettleMax:   3500 * time.Millisecond,
	CooldownMin: time.Second,
	CooldownMax: 2500 * time.Millisecond,
}

func newTestNavigator(b *fakeBrowser, p Pacer) *Navigator {
	return NewNavigator(b, newTestExtractor(), p, testPacing, time.Minute, zap.NewNop())
}

func entryFor(i int) entity.ListingEntry {
	return entity.ListingEntry{AuthorLink: authorURL(i), AuthorName: "Author"}
}

// assertOnlyListing 访问结束后只剩列表页上下文且处于活动状态
func assertOnlyListing(t *testing.T, b *fakeBrowser) {
	t.Helper()
	assert.Equal(t, []types.Handle{rootHandle}, b.Handles())
	assert.Equal(t, rootHandle, b.Active())
}

func TestVisitSuccess(t *testing.T) {
	b := newFakeBrowser(site(1))
	p := &recordingPacer{}
	require.Len(t, b.Handles(), 1)

	fields, err := newTestNavigator(b, p).Visit(context.Background(), entryFor(1))
	require.NoError(t, err)
	assert.Equal(t, "https://author1.example/", fields.Website)
	assert.Equal(t, "https://twitter.com/a1", fields.Platforms[model.Twitter])

	assertOnlyListing(t, b)
	assert.Equal(t, 2, b.maxOpen)
	assert.Equal(t, []pause{
		{testPacing.SettleMin, testPacing.SettleMax},
		{testPacing.CooldownMin, testPacing.CooldownMax},
	}, p.calls)
}

func TestVisitFailuresRestoreListingContext(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(b *fakeBrowser)
		reason string
	}{
		{"detail page missing", func(b *fakeBrowser) { delete(b.pages, authorURL(1)) }, "navigation"},
		{"context died", func(b *fakeBrowser) { b.snapshotErr[authorURL(1)] = errors.New("target closed") }, "extract"},
		{"panic while extracting", func(b *fakeBrowser) { b.panicOn[authorURL(1)] = true }, "panic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBrowser(site(1))
			tt.setup(b)
			p := &recordingPacer{}

			_, err := newTestNavigator(b, p).Visit(context.Background(), entryFor(1))
			require.Error(t, err)
			assert.Equal(t, tt.reason, Reason(err))
			assertOnlyListing(t, b)
			require.NotEmpty(t, p.calls)
			assert.Equal(t, pause{testPacing.CooldownMin, testPacing.CooldownMax}, p.calls[len(p.calls)-1],
				"cooldown follows a clean teardown")
		})
	}
}

func TestVisitCleanupFailure(t *testing.T) {
	b := newFakeBrowser(site(1))
	b.closeErr = errors.New("close refused")
	p := &recordingPacer{}

	_, err := newTestNavigator(b, p).Visit(context.Background(), entryFor(1))
	var ce *CleanupError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "cleanup", Reason(err))
	assert.Equal(t, []pause{{testPacing.SettleMin, testPacing.SettleMax}}, p.calls, "no cooldown after failed cleanup")
}

func TestVisitCancelledDuringSettle(t *testing.T) {
	b := newFakeBrowser(site(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestNavigator(b, &recordingPacer{}).Visit(ctx, entryFor(1))
	assert.ErrorIs(t, err, context.Canceled)
	assertOnlyListing(t, b)
}

func TestWithinRestoresCallerContext(t *testing.T) {
	b := newFakeBrowser(site(2))
	n := newTestNavigator(b, &recordingPacer{})
	ctx := context.Background()

	var seen string
	err := n.Within(ctx, authorURL(2), func(ctx context.Context) error {
		page, err := b.Snapshot(ctx)
		if err != nil {
			return err
		}
		seen = page.URL.String()
		return errors.New("stop")
	})
	assert.EqualError(t, err, "stop")
	assert.Equal(t, authorURL(2), seen, "fn runs against the new context")
	assertOnlyListing(t, b)
}
