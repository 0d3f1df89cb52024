package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/LouYuanbo1/authorharvest/internal/config"
	"github.com/LouYuanbo1/authorharvest/internal/infra/persistence"
	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

const spreadsheetMime = "application/vnd.google-apps.spreadsheet"

// Sink 写入 Google 表格的第一个工作表
type Sink struct {
	sheets    *gsheets.Service
	drive     *drive.Service
	id        string
	title     string
	sheetName string
	logger    *zap.Logger
}

var _ persistence.Sink = (*Sink)(nil)

// ClientOptions 从服务账号 JSON 构造客户端选项
func ClientOptions(ctx context.Context, credentialsJSON string) ([]option.ClientOption, error) {
	creds, err := google.CredentialsFromJSON(ctx, []byte(credentialsJSON),
		gsheets.SpreadsheetsScope,
		drive.DriveReadonlyScope,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: 解析服务账号凭据失败: %v", persistence.ErrUnauthorized, err)
	}
	return []option.ClientOption{option.WithCredentials(creds)}, nil
}

// NewSink opts 为空时使用 cfg.CredentialsJSON 中的凭据
func NewSink(ctx context.Context, cfg config.SheetsConfig, logger *zap.Logger, opts ...option.ClientOption) (*Sink, error) {
	if len(opts) == 0 {
		var err error
		if opts, err = ClientOptions(ctx, cfg.CredentialsJSON); err != nil {
			return nil, err
		}
	}
	sheetsOpts := opts
	if cfg.Endpoint != "" {
		sheetsOpts = append(append([]option.ClientOption(nil), opts...), option.WithEndpoint(cfg.Endpoint))
	}
	sheetsSrv, err := gsheets.NewService(ctx, sheetsOpts...)
	if err != nil {
		return nil, fmt.Errorf("创建 Sheets 客户端失败: %w", err)
	}
	driveSrv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("创建 Drive 客户端失败: %w", err)
	}
	return &Sink{
		sheets:    sheetsSrv,
		drive:     driveSrv,
		id:        cfg.SpreadsheetID,
		title:     cfg.SpreadsheetTitle,
		sheetName: cfg.SheetName,
		logger:    logger,
	}, nil
}

func (s *Sink) Name() string {
	return config.SinkSheets
}

func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden) {
		return fmt.Errorf("%w: %v", persistence.ErrUnauthorized, err)
	}
	return err
}

// quoteSheet A1 表示法中的工作表名
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// spreadsheetID 未配置 ID 时按标题在 Drive 中查找
func (s *Sink) spreadsheetID(ctx context.Context) (string, error) {
	if s.id != "" {
		return s.id, nil
	}
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false",
		strings.ReplaceAll(s.title, "'", `\'`), spreadsheetMime)
	list, err := s.drive.Files.List().Q(q).Fields("files(id, name)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("查找表格 %q 失败: %w", s.title, classify(err))
	}
	if len(list.Files) == 0 {
		return "", fmt.Errorf("找不到表格 %q", s.title)
	}
	s.id = list.Files[0].Id
	s.logger.Debug("找到表格", zap.String("title", s.title), zap.String("id", s.id))
	return s.id, nil
}

func (s *Sink) Publish(ctx context.Context, header []string, rows [][]string) error {
	id, err := s.spreadsheetID(ctx)
	if err != nil {
		return err
	}
	sheetRange := quoteSheet(s.sheetName)
	if _, err := s.sheets.Spreadsheets.Values.Clear(id, sheetRange, &gsheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("清空工作表失败: %w", classify(err))
	}

	values := make([][]interface{}, 0, len(rows)+1)
	values = append(values, toValues(header))
	for _, row := range rows {
		values = append(values, toValues(row))
	}
	_, err = s.sheets.Spreadsheets.Values.Append(id, sheetRange+"!A1", &gsheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("写入工作表失败: %w", classify(err))
	}
	return nil
}

func toValues(row []string) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}
