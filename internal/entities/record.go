package entities

import "time"

// Kind names one of the catalog collections kept in sync with the store of record.
type Kind string

const (
	KindCategory Kind = "category"
	KindBook     Kind = "book"
	KindMember   Kind = "member"
	KindLoan     Kind = "loan"
)

// Kinds lists every synchronised kind in dependency order: loans reference
// books and members, books reference categories.
var Kinds = []Kind{KindCategory, KindBook, KindMember, KindLoan}

// PendingOp marks a local change that has not reached the store of record yet.
type PendingOp string

const (
	PendingNone   PendingOp = ""
	PendingCreate PendingOp = "create"
	PendingUpdate PendingOp = "update"
	PendingDelete PendingOp = "delete"
)

// Record is implemented by every synchronised entity.
type Record interface {
	GetID() uint
	SetID(id uint)
	Kind() Kind
	Deleted() bool

	// NaturalKey returns the column/value pairs identifying the same real-world
	// record across independent inserts, or nil when the record has none.
	NaturalKey() map[string]any

	// Normalize canonicalises fields that take part in the natural key.
	Normalize()

	Pending() PendingOp
	SetPending(op PendingOp)
}

// Ptr constrains a type parameter to the pointer of a Record implementation,
// so generic code can allocate a T and still call Record methods on it.
type Ptr[T any] interface {
	*T
	Record
}

// Model holds the columns shared by every synchronised entity. ID 0 means the
// entity has not been assigned an identity by the store of record yet.
type Model struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	IsDeleted bool      `gorm:"index;not null;default:false" json:"isDeleted"`
	PendingOp PendingOp `gorm:"column:pending;size:10;index" json:"-"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

func (m *Model) GetID() uint             { return m.ID }
func (m *Model) SetID(id uint)           { m.ID = id }
func (m *Model) Deleted() bool           { return m.IsDeleted }
func (m *Model) Pending() PendingOp      { return m.PendingOp }
func (m *Model) SetPending(op PendingOp) { m.PendingOp = op }
