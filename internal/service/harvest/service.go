package harvest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/LouYuanbo1/authorharvest/internal/config"
	"github.com/LouYuanbo1/authorharvest/internal/domain/entity"
	"github.com/LouYuanbo1/authorharvest/internal/domain/model"
	"github.com/LouYuanbo1/authorharvest/internal/infra/crawler"
	"github.com/LouYuanbo1/authorharvest/internal/infra/metrics"
	"github.com/LouYuanbo1/authorharvest/internal/infra/persistence"
	"github.com/LouYuanbo1/authorharvest/internal/service/harvest/param"
	"go.uber.org/zap"
)

// ErrAborted 运行在发布前终止
var ErrAborted = errors.New("harvest aborted")

// EntryResult 单个列表条目的处理结果, Err 为 nil 时 Record 有效
type EntryResult struct {
	Index  int
	Entry  entity.ListingEntry
	Record model.BookRecord
	Err    error
}

func (r EntryResult) OK() bool {
	return r.Err == nil
}

// RunReport 一次运行的汇总
type RunReport struct {
	Found     int
	Attempted int
	Results   []EntryResult
	Skipped   []RowError
	Records   model.ResultSet
	Published bool
	State     State
	Duration  time.Duration
}

// Scraped 成功的条目数
func (r *RunReport) Scraped() int {
	return len(r.Records)
}

type Option func(*Service)

func WithPacer(p Pacer) Option {
	return func(s *Service) { s.pacer = p }
}

// WithObserver 每次状态变化时同步调用 fn
func WithObserver(fn func(State)) Option {
	return func(s *Service) { s.observer = fn }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Service 列表页 -> 详情页 -> 记录 -> 发布, 条目严格串行处理
type Service struct {
	harvester      *Harvester
	navigator      *Navigator
	sink           persistence.Sink
	limit          int
	publishTimeout time.Duration
	pacer          Pacer
	metrics        *metrics.Metrics
	observer       func(State)
	state          atomic.Int32
	logger         *zap.Logger
}

// NewService browser 由调用方创建和关闭, Service 在运行期间独占使用
func NewService(browser crawler.Browser, sink persistence.Sink, cfg *config.Config, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		sink:           sink,
		limit:          cfg.Listing.Limit,
		publishTimeout: cfg.Sinks.PublishTimeout,
		pacer:          RandomPacer{},
		logger:         logger.Named("harvest"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.harvester = NewHarvester(browser, param.ListingFromConfig(cfg.Listing), s.logger.Named("listing"))
	extractor := NewExtractor(param.DetailFromConfig(cfg.Listing), s.logger.Named("fields"))
	s.navigator = NewNavigator(browser, extractor, s.pacer, param.PacingFromConfig(cfg.Pacing),
		cfg.Listing.NavigationTimeout, s.logger.Named("detail"))
	s.navigator.onExtract = func() { s.transition(Extracting) }
	return s
}

func (s *Service) State() State {
	return State(s.state.Load())
}

func (s *Service) transition(to State) {
	from := State(s.state.Swap(int32(to)))
	s.logger.Debug("状态变化", zap.Stringer("from", from), zap.Stringer("to", to))
	if s.observer != nil {
		s.observer(to)
	}
}

func (s *Service) abort(report *RunReport, err error) (*RunReport, error) {
	s.transition(Aborted)
	report.State = Aborted
	s.metrics.SetRunResult(false)
	s.logger.Error("运行终止, 未发布任何数据", zap.Error(err))
	return report, fmt.Errorf("%w: %w", ErrAborted, err)
}

// Run 执行一次完整的抓取. 单个条目失败不会终止运行;
// 列表页加载失败、ctx 被取消或发布失败时返回 ErrAborted.
func (s *Service) Run(ctx context.Context) (*RunReport, error) {
	start := time.Now()
	report := &RunReport{}
	defer func() { report.Duration = time.Since(start) }()

	s.transition(Harvesting)
	listing, err := s.harvester.Harvest(ctx, s.limit)
	if err != nil {
		return s.abort(report, err)
	}
	report.Found = listing.Found
	report.Attempted = listing.Attempted()
	report.Skipped = listing.Skipped
	for _, rowErr := range listing.Skipped {
		s.metrics.IncEntry()
		s.metrics.IncFailure(Reason(rowErr.Err))
	}

	for i, entry := range listing.Entries {
		if err := ctx.Err(); err != nil {
			return s.abort(report, err)
		}
		res := s.processEntry(ctx, i, entry)
		report.Results = append(report.Results, res)
	}
	if err := ctx.Err(); err != nil {
		return s.abort(report, err)
	}
	report.Records = collect(report.Results)

	s.transition(Publishing)
	if err := s.publish(ctx, report.Records); err != nil {
		return s.abort(report, err)
	}
	report.Published = true
	s.transition(Done)
	report.State = Done
	s.metrics.SetRunResult(true)
	s.logger.Info("抓取完成",
		zap.Int("scraped", report.Scraped()),
		zap.Int("attempted", report.Attempted),
		zap.Int("found", report.Found),
	)
	return report, nil
}

// collect 保持列表顺序, 只保留成功的条目
func collect(results []EntryResult) model.ResultSet {
	records := make(model.ResultSet, 0, len(results))
	for _, r := range results {
		if r.OK() {
			records = append(records, r.Record)
		}
	}
	return records
}

func (s *Service) processEntry(ctx context.Context, i int, entry entity.ListingEntry) (res EntryResult) {
	res = EntryResult{Index: i, Entry: entry}
	start := time.Now()
	s.metrics.IncEntry()
	defer func() {
		if r := recover(); r != nil {
			res.Err = &PanicError{Value: r}
		}
		s.metrics.ObserveVisit(time.Since(start))
		if res.Err != nil {
			s.metrics.IncFailure(Reason(res.Err))
			s.logger.Warn("跳过条目",
				zap.Int("index", i),
				zap.String("author_link", entry.AuthorLink),
				zap.String("reason", Reason(res.Err)),
				zap.Error(res.Err),
			)
			return
		}
		s.metrics.IncScraped()
	}()

	s.transition(Visiting)
	s.logger.Info(fmt.Sprintf("%s by %s", entry.BookTitle, entry.AuthorName), zap.Int("index", i))
	fields, err := s.navigator.Visit(ctx, entry)
	if err != nil {
		res.Err = err
		return res
	}
	s.transition(Assembling)
	res.Record = entry.ToRecord(&fields)
	return res
}

func (s *Service) publish(ctx context.Context, records model.ResultSet) error {
	if s.publishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.publishTimeout)
		defer cancel()
	}
	if err := s.sink.Publish(ctx, model.Columns, records.Rows()); err != nil {
		return fmt.Errorf("发布失败: %w", err)
	}
	return nil
}
