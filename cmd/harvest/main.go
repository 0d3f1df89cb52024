package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LouYuanbo1/authorharvest/internal/config"
	"github.com/LouYuanbo1/authorharvest/internal/infra/crawler"
	"github.com/LouYuanbo1/authorharvest/internal/infra/metrics"
	"github.com/LouYuanbo1/authorharvest/internal/observability"
	"github.com/LouYuanbo1/authorharvest/internal/service/harvest"
	"go.uber.org/zap"
)

// 默认配置, 可通过 HARVEST_CONFIG 指向的文件和 HARVEST_* 环境变量覆盖
//
//go:embed appconfig/appconfig.json
var appConfig []byte

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	appcfg, err := config.ParseConfig(appConfig)
	if err != nil {
		return fmt.Errorf("解析配置失败: %w", err)
	}
	logger, cleanup := observability.InitializeLogger(appcfg.Logger)
	defer cleanup()

	m := metrics.New()
	defer pushMetrics(m, appcfg.Metrics, logger)

	// 先准备输出端, 凭据有问题时不必启动浏览器
	sink, err := buildSinks(ctx, appcfg, logger, m)
	if err != nil {
		m.SetRunResult(false)
		logger.Error("初始化输出端失败", zap.Error(err))
		return err
	}

	browser, err := crawler.Open(ctx, appcfg, logger.Named("browser."+appcfg.Browser.Driver))
	if err != nil {
		m.SetRunResult(false)
		logger.Error("启动浏览器失败", zap.Error(err))
		return err
	}
	defer func() {
		if err := browser.Close(); err != nil {
			logger.Warn("关闭浏览器失败", zap.Error(err))
		}
	}()

	svc := harvest.NewService(browser, sink, appcfg, logger, harvest.WithMetrics(m))
	report, err := svc.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("收到退出信号, 已放弃本次运行")
		}
		return err
	}
	fmt.Printf("scraped %d of %d books\n", report.Scraped(), report.Attempted)
	return nil
}

func pushMetrics(m *metrics.Metrics, cfg config.MetricsConfig, logger *zap.Logger) {
	if cfg.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Push(ctx, cfg.PushgatewayURL, cfg.Job); err != nil {
		logger.Warn("推送指标失败", zap.Error(err))
	}
}
