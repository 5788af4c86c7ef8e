package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mrlokans/bibliotheek/internal/database/cache"
	"github.com/mrlokans/bibliotheek/internal/entities"
)

// ErrUnknownKind is returned for a kind outside entities.Kinds.
var ErrUnknownKind = errors.New("unknown kind")

// CacheReader adapts the cache catalog to CatalogReader.
type CacheReader struct {
	Catalog *cache.Catalog
}

func (r CacheReader) Counts(ctx context.Context) (map[entities.Kind]int64, error) {
	return r.Catalog.Counts(ctx)
}

func (r CacheReader) List(ctx context.Context, kind entities.Kind) (any, error) {
	switch kind {
	case entities.KindCategory:
		return r.Catalog.Categories.GetAll(ctx)
	case entities.KindBook:
		return r.Catalog.Books.GetAll(ctx)
	case entities.KindMember:
		return r.Catalog.Members.GetAll(ctx)
	case entities.KindLoan:
		return r.Catalog.Loans.GetAll(ctx)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

func (r CacheReader) OpenLoans(ctx context.Context) ([]entities.Loan, error) {
	return r.Catalog.Loans.Open(ctx)
}

func (r CacheReader) OverdueLoans(ctx context.Context, now time.Time) ([]entities.Loan, error) {
	return r.Catalog.Loans.Overdue(ctx, now)
}

// CatalogController serves the cached catalog. It never calls the remote.
type CatalogController struct {
	reader CatalogReader
	log    *zap.Logger
	now    func() time.Time
}

func NewCatalogController(reader CatalogReader, log *zap.Logger) *CatalogController {
	return &CatalogController{reader: reader, log: log, now: time.Now}
}

// Counts handles GET /api/catalog
func (cc *CatalogController) Counts(c *gin.Context) {
	counts, err := cc.reader.Counts(c.Request.Context())
	if err != nil {
		respondInternalError(c, cc.log, err, "count catalog")
		return
	}
	c.JSON(http.StatusOK, gin.H{"counts": counts})
}

// List handles GET /api/catalog/:kind
func (cc *CatalogController) List(c *gin.Context) {
	kind := entities.Kind(c.Param("kind"))
	items, err := cc.reader.List(c.Request.Context(), kind)
	if errors.Is(err, ErrUnknownKind) {
		respondNotFound(c, "kind "+string(kind))
		return
	}
	if err != nil {
		respondInternalError(c, cc.log, err, "list "+string(kind))
		return
	}
	c.JSON(http.StatusOK, gin.H{"kind": kind, "data": items})
}

// Loans handles GET /api/loans?filter=open|overdue
func (cc *CatalogController) Loans(c *gin.Context) {
	var (
		loans []entities.Loan
		err   error
	)
	switch filter := c.DefaultQuery("filter", "open"); filter {
	case "open":
		loans, err = cc.reader.OpenLoans(c.Request.Context())
	case "overdue":
		loans, err = cc.reader.OverdueLoans(c.Request.Context(), cc.now())
	default:
		respondBadRequest(c, "filter must be open or overdue")
		return
	}
	if err != nil {
		respondInternalError(c, cc.log, err, "list loans")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": loans, "total": len(loans)})
}
