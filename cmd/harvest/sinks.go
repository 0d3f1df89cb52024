package main

import (
	"context"
	"fmt"

	"github.com/LouYuanbo1/authorharvest/internal/config"
	"github.com/LouYuanbo1/authorharvest/internal/infra/metrics"
	"github.com/LouYuanbo1/authorharvest/internal/infra/persistence"
	"github.com/LouYuanbo1/authorharvest/internal/infra/persistence/es"
	"github.com/LouYuanbo1/authorharvest/internal/infra/persistence/sheets"
	"github.com/LouYuanbo1/authorharvest/internal/infra/persistence/xlsx"
	"go.uber.org/zap"
)

// buildSinks 按 sinks.enabled 的顺序创建输出端
func buildSinks(ctx context.Context, cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (persistence.Sink, error) {
	sinks := make([]persistence.Sink, 0, len(cfg.Sinks.Enabled))
	for _, name := range cfg.Sinks.Enabled {
		sinkLogger := logger.Named("sink." + name)
		switch name {
		case config.SinkSheets:
			s, err := sheets.NewSink(ctx, cfg.Sheets, sinkLogger)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, s)
		case config.SinkElastic:
			s, err := es.NewSink(cfg.Elastic, nil, sinkLogger)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, s)
		case config.SinkXlsx:
			sinks = append(sinks, xlsx.NewSink(cfg.Xlsx, sinkLogger))
		default:
			return nil, fmt.Errorf("unknown sink %q", name)
		}
	}
	return persistence.NewFanout(logger.Named("sink"), m, sinks...), nil
}
