package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mrlokans/bibliotheek/internal/entities"
)

var paths = map[entities.Kind]string{
	entities.KindBook:     "/api/boeken",
	entities.KindMember:   "/api/leden",
	entities.KindLoan:     "/api/uitleningen",
	entities.KindCategory: "/api/categorieen",
}

// Path returns the collection path of kind on the store of record.
func Path(kind entities.Kind) string {
	return paths[kind]
}

// PagedResult is one page of a collection listing.
type PagedResult[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
}

// Gateway exposes the collection of one entity kind.
type Gateway[T any, P entities.Ptr[T]] struct {
	c    *Client
	kind entities.Kind
	path string
}

func NewGateway[T any, P entities.Ptr[T]](c *Client) *Gateway[T, P] {
	var zero T
	kind := P(&zero).Kind()
	return &Gateway[T, P]{c: c, kind: kind, path: Path(kind)}
}

func (g *Gateway[T, P]) Kind() entities.Kind {
	return g.kind
}

// FetchPage fetches one page under the bulk deadline, retrying transient
// failures. Pages are 1-based.
func (g *Gateway[T, P]) FetchPage(ctx context.Context, page, pageSize int) (*PagedResult[T], error) {
	return g.fetchPage(ctx, page, pageSize, Bulk)
}

func (g *Gateway[T, P]) fetchPage(ctx context.Context, page, pageSize int, budget Budget) (*PagedResult[T], error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))

	var result PagedResult[T]
	decoded, err := g.c.do(ctx, request{
		op:     fmt.Sprintf("list %s page %d", g.kind, page),
		method: http.MethodGet,
		path:   g.path,
		query:  q,
		budget: budget,
		retry:  budget == Bulk,
	}, &result)
	if err != nil {
		return nil, err
	}
	if !decoded {
		return nil, fmt.Errorf("list %s page %d: %w: empty response", g.kind, page, ErrUnavailable)
	}
	return &result, nil
}

// FetchAll walks every page of the collection. Any failing page fails the
// whole fetch; partial results are never returned.
func (g *Gateway[T, P]) FetchAll(ctx context.Context, pageSize int, budget Budget) ([]T, error) {
	if pageSize <= 0 {
		pageSize = 1000
	}
	var all []T
	for page := 1; ; page++ {
		result, err := g.fetchPage(ctx, page, pageSize, budget)
		if err != nil {
			return nil, err
		}
		all = append(all, result.Items...)
		if len(result.Items) == 0 || page >= result.TotalPages {
			break
		}
	}
	if all == nil {
		all = []T{}
	}
	return all, nil
}

// Create posts rec and returns the record as stored remotely, carrying its
// server id. A success without a body returns rec itself.
func (g *Gateway[T, P]) Create(ctx context.Context, rec P) (P, error) {
	var created T
	decoded, err := g.c.do(ctx, request{
		op:     "create " + string(g.kind),
		method: http.MethodPost,
		path:   g.path,
		body:   rec,
		write:  true,
	}, &created)
	if err != nil {
		return nil, err
	}
	if !decoded {
		return rec, nil
	}
	return &created, nil
}

// Update replaces the remote record with rec.
func (g *Gateway[T, P]) Update(ctx context.Context, rec P) error {
	_, err := g.c.do(ctx, request{
		op:     fmt.Sprintf("update %s %d", g.kind, rec.GetID()),
		method: http.MethodPut,
		path:   g.itemPath(rec.GetID()),
		body:   rec,
		write:  true,
	}, nil)
	return err
}

// Delete removes the remote record with the given id.
func (g *Gateway[T, P]) Delete(ctx context.Context, id uint) error {
	_, err := g.c.do(ctx, request{
		op:     fmt.Sprintf("delete %s %d", g.kind, id),
		method: http.MethodDelete,
		path:   g.itemPath(id),
		write:  true,
	}, nil)
	return err
}

func (g *Gateway[T, P]) itemPath(id uint) string {
	return g.path + "/" + strconv.FormatUint(uint64(id), 10)
}
