package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mrlokans/bibliotheek/internal/entities"
)

var defaultCategories = []entities.Category{
	{Name: "Fiction"},
	{Name: "Non-fiction"},
	{Name: "Science"},
	{Name: "History"},
	{Name: "Children"},
}

var sampleBooks = []struct {
	book     entities.Book
	category string
}{
	{entities.Book{Title: "1984", Author: "George Orwell", ISBN: "9780451524935", PublicationYear: 1949}, "Fiction"},
	{entities.Book{Title: "To Kill a Mockingbird", Author: "Harper Lee", ISBN: "9780061120084", PublicationYear: 1960}, "Fiction"},
	{entities.Book{Title: "A Brief History of Time", Author: "Stephen Hawking", ISBN: "9780553380163", PublicationYear: 1988}, "Science"},
}

var sampleMembers = []entities.Member{
	{FirstName: "Sample", LastName: "Member", Email: "member@example.org"},
}

// SeedResult reports how many rows Seed inserted per kind.
type SeedResult struct {
	Categories int
	Books      int
	Members    int
}

// Seed inserts default categories and sample records into empty tables. Tables
// that already hold rows, deleted or not, are left alone.
func (d *Database) Seed(ctx context.Context) (SeedResult, error) {
	var res SeedResult
	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if res.Categories, err = seedCategories(tx); err != nil {
			return err
		}
		if res.Books, err = seedIfEmpty(tx, &entities.Book{}, func(tx *gorm.DB) (int, error) {
			return seedBooks(tx)
		}); err != nil {
			return err
		}
		res.Members, err = seedIfEmpty(tx, &entities.Member{}, func(tx *gorm.DB) (int, error) {
			now := time.Now()
			for _, m := range sampleMembers {
				m.MembershipDate = now
				if err := tx.Create(&m).Error; err != nil {
					return 0, fmt.Errorf("failed to seed member %s: %w", m.Email, err)
				}
			}
			return len(sampleMembers), nil
		})
		return err
	})
	if err != nil {
		return SeedResult{}, err
	}
	if res != (SeedResult{}) {
		d.log.Info("seeded local catalog",
			zap.Int("categories", res.Categories),
			zap.Int("books", res.Books),
			zap.Int("members", res.Members))
	}
	return res, nil
}

// seedCategories finds-or-creates every default category by name.
func seedCategories(tx *gorm.DB) (int, error) {
	created := 0
	for _, category := range defaultCategories {
		var existing entities.Category
		err := tx.Where("name = ?", category.Name).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := tx.Create(&category).Error; err != nil {
				return created, fmt.Errorf("failed to create category %s: %w", category.Name, err)
			}
			created++
			continue
		}
		if err != nil {
			return created, err
		}
	}
	return created, nil
}

func seedBooks(tx *gorm.DB) (int, error) {
	for _, sample := range sampleBooks {
		b := sample.book
		var category entities.Category
		err := tx.Where("name = ?", sample.category).First(&category).Error
		switch {
		case err == nil:
			b.CategoryID = &category.ID
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return 0, err
		}
		if err := tx.Create(&b).Error; err != nil {
			return 0, fmt.Errorf("failed to seed book %s: %w", b.Title, err)
		}
	}
	return len(sampleBooks), nil
}

func seedIfEmpty(tx *gorm.DB, model any, seed func(tx *gorm.DB) (int, error)) (int, error) {
	var count int64
	if err := tx.Model(model).Count(&count).Error; err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}
	return seed(tx)
}
