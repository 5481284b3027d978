package pricing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mfeldmann/storehaus-backend/pkg/db/models"
)

// Repository manages read access to price books, tax rates and the catalog.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetVariant(ctx context.Context, id uuid.UUID) (*models.Variant, error)
	ListBooksForContext(ctx context.Context, currency, country, channel, customerGroup string) ([]models.PriceBook, error)
	GetDefaultBook(ctx context.Context, currency string) (*models.PriceBook, error)
	ListEntries(ctx context.Context, bookIDs []uuid.UUID, variantID, productID uuid.UUID, categoryID *uuid.UUID) ([]models.PriceBookEntry, error)
	FindTaxRate(ctx context.Context, country, taxClass string, at time.Time) (*models.TaxRate, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a pricing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetVariant(ctx context.Context, id uuid.UUID) (*models.Variant, error) {
	var variant models.Variant
	err := r.db.WithContext(ctx).
		Preload("Product").
		Preload("Product.Category").
		First(&variant, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &variant, nil
}

// ListBooksForContext returns active books whose dimensions all match the
// request. Empty book dimensions are wildcards.
func (r *repository) ListBooksForContext(ctx context.Context, currency, country, channel, customerGroup string) ([]models.PriceBook, error) {
	var books []models.PriceBook
	query := r.db.WithContext(ctx).
		Where("is_active = ? AND currency = ?", true, currency).
		Where("country = ? OR country = ''", country).
		Where("channel = ? OR channel = ''", channel).
		Where("customer_group = ? OR customer_group = ''", customerGroup).
		Order("is_default ASC, created_at ASC")
	if err := query.Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

func (r *repository) GetDefaultBook(ctx context.Context, currency string) (*models.PriceBook, error) {
	var book models.PriceBook
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND is_default = ? AND currency = ?", true, true, currency).
		First(&book).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *repository) ListEntries(ctx context.Context, bookIDs []uuid.UUID, variantID, productID uuid.UUID, categoryID *uuid.UUID) ([]models.PriceBookEntry, error) {
	if len(bookIDs) == 0 {
		return nil, nil
	}
	query := r.db.WithContext(ctx).
		Where("price_book_id IN ?", bookIDs)
	if categoryID != nil {
		query = query.Where("variant_id = ? OR product_id = ? OR category_id = ?", variantID, productID, *categoryID)
	} else {
		query = query.Where("variant_id = ? OR product_id = ?", variantID, productID)
	}
	var entries []models.PriceBookEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) FindTaxRate(ctx context.Context, country, taxClass string, at time.Time) (*models.TaxRate, error) {
	var rate models.TaxRate
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND country = ? AND tax_class = ?", true, country, taxClass).
		Where("effective_from <= ? AND (effective_to IS NULL OR effective_to > ?)", at, at).
		Order("effective_from DESC").
		First(&rate).Error
	if err != nil {
		return nil, err
	}
	return &rate, nil
}
