package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mfeldmann/storehaus-backend/pkg/db/models"
	apperrors "github.com/mfeldmann/storehaus-backend/pkg/errors"
)

// Service exposes read operations on carts for the reservation flow.
type Service interface {
	GetForReservation(ctx context.Context, cartID uuid.UUID) (*models.Cart, error)
	CleanupExpired(ctx context.Context, limit int) (int64, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires the cart service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

// GetForReservation loads a cart and verifies it can still be reserved:
// it must exist, hold at least one item, and not be expired.
func (s *service) GetForReservation(ctx context.Context, cartID uuid.UUID) (*models.Cart, error) {
	if cartID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "cart id is required")
	}

	cart, err := s.repo.GetByID(ctx, cartID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.CodeNotFound, "cart not found")
	}
	if err != nil {
		return nil, err
	}
	if cart.IsExpired(s.now().UTC()) {
		return nil, apperrors.New(apperrors.CodeStateConflict, "cart has expired")
	}
	if len(cart.Items) == 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "cart is empty")
	}
	for _, item := range cart.Items {
		if item.Quantity <= 0 {
			return nil, apperrors.Newf(apperrors.CodeValidation, "cart item %s has invalid quantity %d", item.ID, item.Quantity)
		}
	}
	return cart, nil
}

func (s *service) CleanupExpired(ctx context.Context, limit int) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now().UTC(), limit)
}
