package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mfeldmann/storehaus-backend/internal/pricing"
	"github.com/mfeldmann/storehaus-backend/internal/reservation"
	"github.com/mfeldmann/storehaus-backend/pkg/db"
	"github.com/mfeldmann/storehaus-backend/pkg/db/models"
	dbtypes "github.com/mfeldmann/storehaus-backend/pkg/db/types"
	"github.com/mfeldmann/storehaus-backend/pkg/enums"
	apperrors "github.com/mfeldmann/storehaus-backend/pkg/errors"
	"github.com/mfeldmann/storehaus-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service assembles orders out of confirmed reservations, or straight
// from a cart via the reserve-then-confirm composition.
type Service interface {
	CreateFromReservation(ctx context.Context, input CreateFromReservationInput) (*models.Order, error)
	CreateDirect(ctx context.Context, input CreateDirectInput) (*models.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

type service struct {
	repo         Repository
	reservations reservation.Service
	pricer       pricing.Service
	tx           txRunner
	logg         *logger.Logger
	taxRate      decimal.Decimal
	shipping     decimal.Decimal
	now          func() time.Time
}

// Options bundles the order service dependencies.
type Options struct {
	Repo         Repository
	Reservations reservation.Service
	Pricer       pricing.Service
	Tx           txRunner
	Logger       *logger.Logger
	TaxRate      decimal.Decimal
	Shipping     decimal.Decimal
}

// CustomerInput carries the buyer identity and addresses.
type CustomerInput struct {
	CustomerID      *uuid.UUID
	CustomerEmail   string
	ShippingAddress map[string]string
	BillingAddress  map[string]string
	Currency        string
	Country         string
	Channel         string
	CustomerGroup   string
}

// CreateFromReservationInput turns a reservation token into an order.
type CreateFromReservationInput struct {
	Token    uuid.UUID
	Customer CustomerInput
}

// CreateDirectInput builds an order straight from a cart in one call.
// WarehouseID optionally pins every line to one warehouse.
type CreateDirectInput struct {
	CartID      uuid.UUID
	WarehouseID *uuid.UUID
	Customer    CustomerInput
}

// NewService wires the order service.
func NewService(opts Options) (Service, error) {
	if opts.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if opts.Reservations == nil {
		return nil, fmt.Errorf("reservation service required")
	}
	if opts.Pricer == nil {
		return nil, fmt.Errorf("pricing service required")
	}
	if opts.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	taxRate := opts.TaxRate
	if taxRate.IsZero() {
		taxRate = decimal.RequireFromString("0.21")
	}
	shipping := opts.Shipping
	if shipping.IsZero() {
		shipping = decimal.RequireFromString("5.99")
	}
	return &service{
		repo:         opts.Repo,
		reservations: opts.Reservations,
		pricer:       opts.Pricer,
		tx:           opts.Tx,
		logg:         opts.Logger,
		taxRate:      taxRate,
		shipping:     shipping,
		now:          time.Now,
	}, nil
}

// CreateFromReservation confirms every line under the token and snapshots
// resolved prices into an immutable order. Confirmation and order creation
// share one transaction: a failed order leaves the reservation untouched.
func (s *service) CreateFromReservation(ctx context.Context, input CreateFromReservationInput) (*models.Order, error) {
	if input.Token == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "reservation token is required")
	}
	if err := validateCustomer(input.Customer); err != nil {
		return nil, err
	}

	var created *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := s.newOrderShell(ctx, repo, input.Customer)
		if err != nil {
			return err
		}

		confirmed, err := s.reservations.ConfirmInTx(ctx, tx, input.Token, order.ID)
		if err != nil {
			return err
		}

		items := make([]models.OrderItem, 0, len(confirmed))
		for i := range confirmed {
			item, err := s.buildItem(ctx, repo, confirmed[i].VariantID, confirmed[i].WarehouseID, confirmed[i].Quantity, input.Customer, order.ID)
			if err != nil {
				return err
			}
			items = append(items, *item)
		}

		if err := s.finalize(ctx, repo, order, items); err != nil {
			return err
		}
		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(ctx, fmt.Sprintf("order %s created from reservation (%d lines, total %s)",
		created.OrderNumber, len(created.Items), created.Total.StringFixed(2)))
	return created, nil
}

// CreateDirect reserves the cart and immediately confirms the reservation
// into an order. A failure after the reservation succeeded leaves the
// holds behind; the expiry sweep reclaims them.
func (s *service) CreateDirect(ctx context.Context, input CreateDirectInput) (*models.Order, error) {
	if input.CartID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "cart id is required")
	}
	if err := validateCustomer(input.Customer); err != nil {
		return nil, err
	}

	held, err := s.reservations.CreateFromCart(ctx, reservation.CreateFromCartInput{
		CartID:      input.CartID,
		WarehouseID: input.WarehouseID,
	})
	if err != nil {
		return nil, err
	}

	order, err := s.CreateFromReservation(ctx, CreateFromReservationInput{
		Token:    held.Token,
		Customer: input.Customer,
	})
	if err != nil {
		s.logg.Warn(ctx, fmt.Sprintf("direct order failed after reserving cart %s, holds expire at %s",
			input.CartID, held.ExpiresAt.Format(time.RFC3339)))
		return nil, err
	}
	return order, nil
}

func (s *service) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if id == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "order id is required")
	}
	order, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

func validateCustomer(customer CustomerInput) error {
	if customer.CustomerEmail == "" {
		return apperrors.New(apperrors.CodeValidation, "customer email is required")
	}
	return nil
}

// newOrderShell creates the order row so line items and reservations can
// reference its id. Totals are filled in by finalize.
func (s *service) newOrderShell(ctx context.Context, repo Repository, customer CustomerInput) (*models.Order, error) {
	number, err := s.nextOrderNumber(ctx, repo)
	if err != nil {
		return nil, err
	}
	currency := customer.Currency
	if currency == "" {
		currency = "EUR"
	}
	order := &models.Order{
		OrderNumber:     number,
		CustomerID:      customer.CustomerID,
		CustomerEmail:   customer.CustomerEmail,
		ShippingAddress: dbtypes.JSONMap(customer.ShippingAddress),
		BillingAddress:  dbtypes.JSONMap(customer.BillingAddress),
		Currency:        currency,
		Status:          enums.OrderStatusDraft,
	}
	if err := repo.Create(ctx, order); err != nil {
		// concurrent order on the same day took this number
		if db.IsUniqueViolation(err, "order_number") {
			return nil, apperrors.Wrap(apperrors.CodeConflict, err, "order number already taken, retry the request")
		}
		return nil, err
	}
	return order, nil
}

func (s *service) buildItem(ctx context.Context, repo Repository, variantID, warehouseID uuid.UUID, quantity int, customer CustomerInput, orderID uuid.UUID) (*models.OrderItem, error) {
	variant, err := repo.GetVariant(ctx, variantID)
	if err != nil {
		return nil, err
	}

	quote, err := s.pricer.ResolvePrice(ctx, pricing.ResolveInput{
		VariantID:     variantID,
		Quantity:      quantity,
		Currency:      customer.Currency,
		Country:       customer.Country,
		Channel:       customer.Channel,
		CustomerGroup: customer.CustomerGroup,
	})
	if err != nil {
		return nil, err
	}

	name := variant.SKU
	if variant.Product != nil {
		name = variant.Product.Name
	}
	return &models.OrderItem{
		OrderID:     orderID,
		VariantID:   variantID,
		WarehouseID: warehouseID,
		Quantity:    quantity,
		UnitPrice:   quote.UnitPrice,
		SKU:         variant.SKU,
		VariantName: name,
	}, nil
}

// finalize persists the items and writes the totals: order-level tax on
// the subtotal plus a flat shipping amount.
func (s *service) finalize(ctx context.Context, repo Repository, order *models.Order, items []models.OrderItem) error {
	if err := repo.CreateItems(ctx, items); err != nil {
		return err
	}

	subtotal := decimal.Zero
	for i := range items {
		subtotal = subtotal.Add(items[i].TotalPrice())
	}
	order.Subtotal = subtotal
	order.ShippingAmount = s.shipping
	order.TaxAmount = subtotal.Mul(s.taxRate).Round(2)
	order.Total = order.Subtotal.Add(order.ShippingAmount).Add(order.TaxAmount)
	order.Status = enums.OrderStatusConfirmed
	order.Items = items
	return repo.Save(ctx, order)
}

// nextOrderNumber issues ORD-YYYYMMDD-NNNN, numbering within the day.
// The unique index on order_number catches a rare same-instant clash.
func (s *service) nextOrderNumber(ctx context.Context, repo Repository) (string, error) {
	now := s.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	count, err := repo.CountCreatedBetween(ctx, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ORD-%s-%04d", now.Format("20060102"), count+1), nil
}
