// Package remote defines the RemoteAPI contract the core depends on, its
// classified error taxonomy, and a concrete net/http-based
// implementation. Pagination stays behind the interface: callers always
// see the full result set.
package remote

import "context"

// PageFormat selects which serialization a page body is carried in. The
// two formats are serializations of one structured document; downstream
// block/diff logic never branches on the tag.
type PageFormat int

const (
	FormatStorage PageFormat = iota // XML-with-namespaces storage format
	FormatRich                      // structured JSON rich document format
)

// PageRef is the minimal identity/version returned by mutating calls.
type PageRef struct {
	PageID  string
	Version int
}

// Page is a fetched page's full content in one format.
type Page struct {
	PageID     string
	Title      string
	Body       string // raw storage XML or rich-document JSON, per Format
	Format     PageFormat
	Version    int
	ParentID   string
	LastMod    int64 // unix seconds, UTC
}

// PageSummary is one row of a SearchByQuery result.
type PageSummary struct {
	PageID        string
	Title         string
	LastModified  int64    // unix seconds, UTC
	AncestorChain []string // root -> direct parent
	SpaceKey      string
}

// API is the abstract RemoteAPI the core depends on. Every method fails
// with a classified error; no method blocks longer than its caller's
// context allows.
type API interface {
	GetPage(ctx context.Context, id string, format PageFormat) (*Page, error)
	SearchByQuery(ctx context.Context, query string, expandFields []string, pageSize int) ([]PageSummary, error)
	CreatePage(ctx context.Context, space, title, body, parentID string) (*PageRef, error)
	UpdatePage(ctx context.Context, id, title, body string, version int) (*PageRef, error)
	UpdateParent(ctx context.Context, id, newParentID string, version int) (*PageRef, error)
	DeletePage(ctx context.Context, id string) error
}
