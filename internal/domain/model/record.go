package model

// Platform 作者详情页上可识别的社交平台, 取值即链接上的可见文本
type Platform string

const (
	Facebook   Platform = "Facebook"
	Twitter    Platform = "Twitter"
	Instagram  Platform = "Instagram"
	Goodreads  Platform = "Goodreads"
	Amazon     Platform = "Amazon"
	YouTube    Platform = "YouTube"
	Pinterest  Platform = "Pinterest"
	Linkedin   Platform = "Linkedin"
	Newsletter Platform = "Join Author's Newsletter"
)

// Platforms 固定顺序, 与输出表的列顺序一致
var Platforms = []Platform{
	Facebook, Twitter, Instagram, Goodreads, Amazon,
	YouTube, Pinterest, Linkedin, Newsletter,
}

// LookupPlatform 将链接文本映射到平台, 未知文本返回 false
func LookupPlatform(text string) (Platform, bool) {
	for _, p := range Platforms {
		if string(p) == text {
			return p, true
		}
	}
	return "", false
}

// Columns 输出表头
var Columns = []string{
	"Book ID", "Book Title", "Book Link", "Author Name", "Author Link", "Author Website",
	"Facebook", "Twitter", "Instagram", "Goodreads", "Amazon",
	"YouTube", "Pinterest", "Linkedin", "Join Author's Newsletter",
}

// AuthorFields 一次详情页访问得到的补充字段
type AuthorFields struct {
	Website   string
	Platforms map[Platform]string
}

// NewAuthorFields 所有平台键初始化为空字符串
func NewAuthorFields(website string) AuthorFields {
	platforms := make(map[Platform]string, len(Platforms))
	for _, p := range Platforms {
		platforms[p] = ""
	}
	return AuthorFields{Website: website, Platforms: platforms}
}

// BookRecord 扁平化后的一行输出
type BookRecord struct {
	BookID        string `json:"book_id"`
	BookTitle     string `json:"book_title"`
	BookLink      string `json:"book_link"`
	AuthorName    string `json:"author_name"`
	AuthorLink    string `json:"author_link"`
	AuthorWebsite string `json:"author_website"`
	Facebook      string `json:"facebook"`
	Twitter       string `json:"twitter"`
	Instagram     string `json:"instagram"`
	Goodreads     string `json:"goodreads"`
	Amazon        string `json:"amazon"`
	YouTube       string `json:"youtube"`
	Pinterest     string `json:"pinterest"`
	Linkedin      string `json:"linkedin"`
	Newsletter    string `json:"newsletter"`
}

// Row 按 Columns 的顺序返回各字段
func (r BookRecord) Row() []string {
	return []string{
		r.BookID, r.BookTitle, r.BookLink, r.AuthorName, r.AuthorLink, r.AuthorWebsite,
		r.Facebook, r.Twitter, r.Instagram, r.Goodreads, r.Amazon,
		r.YouTube, r.Pinterest, r.Linkedin, r.Newsletter,
	}
}

// ResultSet 成功处理的记录, 保持列表页顺序
type ResultSet []BookRecord

// Rows 转换为表格行, 不含表头
func (rs ResultSet) Rows() [][]string {
	rows := make([][]string, 0, len(rs))
	for _, r := range rs {
		rows = append(rows, r.Row())
	}
	return rows
}
