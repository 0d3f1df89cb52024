package xlsx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/LouYuanbo1/authorharvest/internal/config"
	"github.com/LouYuanbo1/authorharvest/internal/infra/persistence"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Sink 每次发布重写整个文件, 先写临时文件再替换
type Sink struct {
	path      string
	sheetName string
	logger    *zap.Logger
}

var _ persistence.Sink = (*Sink)(nil)

func NewSink(cfg config.XlsxConfig, logger *zap.Logger) *Sink {
	sheet := cfg.SheetName
	if sheet == "" {
		sheet = "Sheet1"
	}
	return &Sink{path: cfg.Path, sheetName: sheet, logger: logger}
}

func (s *Sink) Name() string {
	return config.SinkXlsx
}

func (s *Sink) Publish(ctx context.Context, header []string, rows [][]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f := excelize.NewFile()
	defer f.Close()

	const defaultSheet = "Sheet1"
	if s.sheetName != defaultSheet {
		if err := f.SetSheetName(defaultSheet, s.sheetName); err != nil {
			return fmt.Errorf("重命名工作表失败: %w", err)
		}
	}

	sw, err := f.NewStreamWriter(s.sheetName)
	if err != nil {
		return fmt.Errorf("创建写入器失败: %w", err)
	}
	write := func(rowNum int, values []string) error {
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		row := make([]interface{}, len(values))
		for i, v := range values {
			row[i] = v
		}
		return sw.SetRow(cell, row)
	}
	if err := write(1, header); err != nil {
		return fmt.Errorf("写入表头失败: %w", err)
	}
	for i, r := range rows {
		if err := write(i+2, r); err != nil {
			return fmt.Errorf("写入第 %d 行失败: %w", i+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("写入工作表失败: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	tmp := tempPath(s.path)
	if err := f.SaveAs(tmp); err != nil {
		return fmt.Errorf("保存文件失败: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("替换文件失败: %w", err)
	}
	s.logger.Debug("已写入 xlsx", zap.String("path", s.path), zap.Int("rows", len(rows)))
	return nil
}

// tempPath excelize 按扩展名判断格式, 临时文件保留原扩展名
func tempPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".tmp" + ext
}
