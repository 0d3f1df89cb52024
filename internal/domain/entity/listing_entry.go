package entity

import (
	"strings"

	"github.com/LouYuanbo1/authorharvest/internal/domain/model"
)

// ListingEntry 列表页中的一行, 创建后不再修改
type ListingEntry struct {
	// BookID 从 BookLink 中解析, 链接不含标记时为 nil
	BookID     *string
	BookTitle  string
	BookLink   string
	AuthorName string
	AuthorLink string
}

// ExtractBookID 取 marker 之后的第一个路径段, 例如 /book/123/title -> "123"
func ExtractBookID(bookLink, marker string) *string {
	_, rest, found := strings.Cut(bookLink, marker)
	if !found || marker == "" {
		return nil
	}
	id, _, _ := strings.Cut(rest, "/")
	return &id
}

// ToRecord 合并身份字段与详情页字段, 缺失的字段一律为空字符串
func (e ListingEntry) ToRecord(fields *model.AuthorFields) model.BookRecord {
	record := model.BookRecord{
		BookTitle:  e.BookTitle,
		BookLink:   e.BookLink,
		AuthorName: e.AuthorName,
		AuthorLink: e.AuthorLink,
	}
	if e.BookID != nil {
		record.BookID = *e.BookID
	}
	if fields == nil {
		return record
	}
	platform := func(p model.Platform) string {
		// 未写入的键取零值 ""
		return fields.Platforms[p]
	}
	record.AuthorWebsite = fields.Website
	record.Facebook = platform(model.Facebook)
	record.Twitter = platform(model.Twitter)
	record.Instagram = platform(model.Instagram)
	record.Goodreads = platform(model.Goodreads)
	record.Amazon = platform(model.Amazon)
	record.YouTube = platform(model.YouTube)
	record.Pinterest = platform(model.Pinterest)
	record.Linkedin = platform(model.Linkedin)
	record.Newsletter = platform(model.Newsletter)
	return record
}
