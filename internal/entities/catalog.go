package entities

import (
	"strings"
	"time"
)

type Category struct {
	Model
	Name string `gorm:"size:100;not null;index" json:"name" validate:"required,max=100"`
}

func (Category) TableName() string { return "categories" }
func (*Category) Kind() Kind       { return KindCategory }

func (c *Category) Normalize() { c.Name = strings.TrimSpace(c.Name) }

func (c *Category) NaturalKey() map[string]any {
	if c.Name == "" {
		return nil
	}
	return map[string]any{"name": c.Name}
}

type Book struct {
	Model
	Title           string `gorm:"size:512;not null" json:"title" validate:"required,max=512"`
	Author          string `gorm:"size:512" json:"author" validate:"max=512"`
	ISBN            string `gorm:"size:20;index" json:"isbn" validate:"omitempty,min=10,max=13"`
	PublicationYear int    `json:"publicationYear" validate:"omitempty,min=0,max=9999"`
	CategoryID      *uint  `gorm:"index" json:"categoryId,omitempty"`
}

func (Book) TableName() string { return "books" }
func (*Book) Kind() Kind       { return KindBook }

// Normalize strips the separators commonly printed inside an ISBN.
func (b *Book) Normalize() {
	b.Title = strings.TrimSpace(b.Title)
	b.Author = strings.TrimSpace(b.Author)
	b.ISBN = strings.NewReplacer("-", "", " ", "").Replace(b.ISBN)
}

func (b *Book) NaturalKey() map[string]any {
	if b.ISBN == "" {
		return nil
	}
	return map[string]any{"isbn": b.ISBN}
}

type Member struct {
	Model
	FirstName      string    `gorm:"size:100;not null" json:"firstName" validate:"required,max=100"`
	LastName       string    `gorm:"size:100;not null" json:"lastName" validate:"required,max=100"`
	Email          string    `gorm:"size:255;index" json:"email" validate:"required,email,max=255"`
	Phone          string    `gorm:"size:32" json:"phone,omitempty" validate:"max=32"`
	MembershipDate time.Time `json:"membershipDate"`
}

func (Member) TableName() string { return "members" }
func (*Member) Kind() Kind       { return KindMember }

func (m *Member) Normalize() {
	m.FirstName = strings.TrimSpace(m.FirstName)
	m.LastName = strings.TrimSpace(m.LastName)
	m.Email = strings.ToLower(strings.TrimSpace(m.Email))
}

func (m *Member) NaturalKey() map[string]any {
	if m.Email == "" {
		return nil
	}
	return map[string]any{"email": m.Email}
}

// FullName returns "First Last".
func (m *Member) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

type Loan struct {
	Model
	BookID     uint       `gorm:"index;not null" json:"bookId" validate:"required"`
	MemberID   uint       `gorm:"index;not null" json:"memberId" validate:"required"`
	LoanDate   time.Time  `gorm:"index" json:"loanDate" validate:"required"`
	DueDate    time.Time  `json:"dueDate" validate:"required,gtefield=LoanDate"`
	ReturnedAt *time.Time `gorm:"index" json:"returnedAt,omitempty"`
}

func (Loan) TableName() string { return "loans" }
func (*Loan) Kind() Kind       { return KindLoan }

func (l *Loan) Normalize() {}

// NaturalKey identifies an open loan by book and member. Returned loans are
// history and never merge with each other.
func (l *Loan) NaturalKey() map[string]any {
	if !l.IsOpen() {
		return nil
	}
	return map[string]any{"book_id": l.BookID, "member_id": l.MemberID, "returned_at": nil}
}

// IsOpen reports whether the book has not been returned yet.
func (l *Loan) IsOpen() bool { return l.ReturnedAt == nil }

// IsOverdue reports whether an open loan is past its due date at now.
func (l *Loan) IsOverdue(now time.Time) bool {
	return l.IsOpen() && now.After(l.DueDate)
}
