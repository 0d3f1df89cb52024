package harvest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/LouYuanbo1/authorharvest/internal/domain/model"
	"github.com/LouYuanbo1/authorharvest/internal/infra/crawler/types"
	"github.com/LouYuanbo1/authorharvest/internal/infra/metrics"
	"github.com/LouYuanbo1/authorharvest/internal/infra/persistence"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fixture struct {
	browser *fakeBrowser
	sink    *memorySink
	pacer   *recordingPacer
	metrics *metrics.Metrics
	logs    *observer.ObservedLogs
	states  []State
	svc     *Service
}

func newFixture(t *testing.T, pages map[string]string, limit int, opts ...Option) *fixture {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	f := &fixture{
		browser: newFakeBrowser(pages),
		sink:    &memorySink{},
		pacer:   &recordingPacer{},
		metrics: metrics.New(),
		logs:    logs,
	}
	opts = append([]Option{
		WithPacer(f.pacer),
		WithMetrics(f.metrics),
		WithObserver(func(s State) { f.states = append(f.states, s) }),
	}, opts...)
	f.svc = NewService(f.browser, f.sink, testConfig(t, limit), zap.New(core), opts...)
	return f
}

func titles(rs model.ResultSet) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.BookTitle)
	}
	return out
}

func TestRunPublishesAllRecords(t *testing.T) {
	f := newFixture(t, site(3), 5)

	report, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Done, f.svc.State())
	assert.Equal(t, Done, report.State)
	assert.True(t, report.Published)
	assert.Equal(t, 3, report.Scraped())
	assert.Equal(t, 3, report.Attempted)

	require.Equal(t, 1, f.sink.calls)
	require.Len(t, f.sink.table, 4)
	assert.Equal(t, model.Columns, f.sink.table[0])
	for _, row := range f.sink.table[1:] {
		assert.Len(t, row, len(model.Columns))
	}
	assert.Equal(t, []string{"1", "Title 1", siteURL + "/book/1/title-1/", "Author 1", authorURL(1),
		"https://author1.example/", "", "https://twitter.com/a1", "", "", "", "", "", "", ""}, f.sink.table[1])

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LastRunSuccess))
}

func TestRunStateSequence(t *testing.T) {
	f := newFixture(t, site(2), 5)
	_, err := f.svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []State{
		Harvesting,
		Visiting, Extracting, Assembling,
		Visiting, Extracting, Assembling,
		Publishing, Done,
	}, f.states)
}

func TestRunLimitBound(t *testing.T) {
	f := newFixture(t, site(8), 5)
	report, err := f.svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, report.Found)
	assert.Equal(t, 5, report.Attempted)
	assert.Len(t, f.sink.table, 6)
	assert.Len(t, f.browser.opened, 5)
}

func TestRunIsolatesFailingEntry(t *testing.T) {
	failures := map[string]func(b *fakeBrowser){
		"navigation": func(b *fakeBrowser) { delete(b.pages, authorURL(3)) },
		"extract":    func(b *fakeBrowser) { b.snapshotErr[authorURL(3)] = errors.New("target closed") },
		"panic":      func(b *fakeBrowser) { b.panicOn[authorURL(3)] = true },
	}
	for reason, breakEntry := range failures {
		t.Run(reason, func(t *testing.T) {
			f := newFixture(t, site(5), 5)
			breakEntry(f.browser)

			report, err := f.svc.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, []string{"Title 1", "Title 2", "Title 4", "Title 5"}, titles(report.Records))
			assert.Equal(t, 5, report.Attempted)
			require.Len(t, report.Results, 5)
			assert.False(t, report.Results[2].OK())
			assert.Equal(t, reason, Reason(report.Results[2].Err))

			assert.Equal(t, 1, f.sink.calls)
			assert.Len(t, f.sink.table, 5)
			assert.Equal(t, []types.Handle{rootHandle}, f.browser.Handles())
			assert.LessOrEqual(t, f.browser.maxOpen, 2)
			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FailuresTotal.WithLabelValues(reason)))
			assert.Equal(t, 4.0, testutil.ToFloat64(f.metrics.ScrapedTotal))
			assert.Equal(t, 1, f.logs.FilterMessage("跳过条目").Len())
		})
	}
}

func TestRunKeepsEntryWithoutBookID(t *testing.T) {
	pages := map[string]string{
		listingURL: `<table><tr class="odd"><td class="bookname"><a href="/title/only/">No Id</a></td>
			<td class="book-author-name"><a href="/author/a1/">Author 1</a></td></tr></table>`,
		authorURL(1): authorHTML(),
	}
	f := newFixture(t, pages, 5)

	report, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Records, 1)
	rec := report.Records[0]
	assert.Empty(t, rec.BookID)
	assert.Equal(t, "No Id", rec.BookTitle)
	assert.Equal(t, "N/A", rec.AuthorWebsite)
	assert.Empty(t, rec.Newsletter)
}

func TestRunSkipsMalformedRow(t *testing.T) {
	pages := site(2)
	pages[listingURL] = `<table>
		<tr class="odd"><td class="bookname">missing link</td></tr>
		<tr class="even"><td class="bookname"><a href="/book/2/t/">Title 2</a></td>
		<td class="book-author-name"><a href="/author/a2/">Author 2</a></td></tr></table>`
	f := newFixture(t, pages, 5)

	report, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, []string{"Title 2"}, titles(report.Records))
	assert.Len(t, report.Skipped, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FailuresTotal.WithLabelValues("row")))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.EntriesTotal))
}

func TestRunAbortsWhenListingNeverLoads(t *testing.T) {
	f := newFixture(t, map[string]string{listingURL: `<html><body></body></html>`}, 5)

	report, err := f.svc.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAborted)
	var te *types.TimeoutError
	assert.True(t, errors.As(err, &te))
	assert.Equal(t, Aborted, f.svc.State())
	assert.Equal(t, Aborted, report.State)
	assert.False(t, report.Published)
	assert.Zero(t, f.sink.calls)
	assert.Equal(t, []State{Harvesting, Aborted}, f.states)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.LastRunSuccess))
}

func TestRunCancelledPublishesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	visits := 0
	f := newFixture(t, site(4), 5, WithObserver(func(s State) {
		if s == Visiting {
			visits++
			if visits == 2 {
				cancel()
			}
		}
	}))

	report, err := f.svc.Run(ctx)
	assert.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.sink.calls)
	assert.False(t, report.Published)
	assert.Equal(t, 2, visits)
	assert.Equal(t, []types.Handle{rootHandle}, f.browser.Handles())
}

func TestRunSinkFailureAborts(t *testing.T) {
	f := newFixture(t, site(1), 5)
	f.sink.err = fmt.Errorf("sheets: %w", persistence.ErrUnauthorized)

	report, err := f.svc.Run(context.Background())
	assert.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, err, persistence.ErrUnauthorized)
	assert.Equal(t, 1, f.sink.calls)
	assert.False(t, report.Published)
	assert.Equal(t, Aborted, f.svc.State())
}

func TestRunTwiceReplacesSinkContents(t *testing.T) {
	f := newFixture(t, site(3), 5)
	ctx := context.Background()

	_, err := f.svc.Run(ctx)
	require.NoError(t, err)
	_, err = f.svc.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, f.sink.calls)
	assert.Len(t, f.sink.table, 4, "header plus three rows, nothing accumulated")
}

func TestRunPacesEachEntry(t *testing.T) {
	f := newFixture(t, site(2), 5)
	_, err := f.svc.Run(context.Background())
	require.NoError(t, err)

	cfg := testConfig(t, 5).Pacing
	settle := pause{cfg.SettleMin, cfg.SettleMax}
	cooldown := pause{cfg.CooldownMin, cfg.CooldownMax}
	assert.Equal(t, []pause{settle, cooldown, settle, cooldown}, f.pacer.calls)
}

func TestRunLogsSummary(t *testing.T) {
	f := newFixture(t, site(2), 5)
	delete(f.browser.pages, authorURL(2))
	_, err := f.svc.Run(context.Background())
	require.NoError(t, err)

	entries := f.logs.FilterMessage("抓取完成").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.EqualValues(t, 1, fields["scraped"])
	assert.EqualValues(t, 2, fields["attempted"])
	assert.Equal(t, 1, f.logs.FilterMessage("Title 1 by Author 1").Len())
}
