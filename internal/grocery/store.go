package grocery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"sustainplate/m/domain"
	"sustainplate/m/internal/apperr"
	"sustainplate/m/internal/logger"
	"sustainplate/m/internal/metrics"
	"sustainplate/m/internal/validator"
)

// DefaultExpiringWindow is how many days ahead an item counts as nearing expiry.
const DefaultExpiringWindow = 7

// ShelfLifeEstimator supplies a shelf life in days for a freshly bought item.
type ShelfLifeEstimator interface {
	EstimateShelfLifeDays(ctx context.Context, itemName string) (int, error)
}

// NewItem is the input for Create. ShelfLifeDays skips estimation when set.
type NewItem struct {
	Name          string `json:"name" validate:"required,notblank"`
	Quantity      int64  `json:"quantity" validate:"gt=0"`
	ShelfLifeDays *int   `json:"shelfLifeDays,omitempty" validate:"omitempty,gte=0,lte=36500"`
}

// Store owns the groceries table.
type Store struct {
	db        *sqlx.DB
	estimator ShelfLifeEstimator
	now       func() time.Time
	log       *zap.Logger
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source used for purchase dates.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore constructs a Store.
func NewStore(db *sqlx.DB, estimator ShelfLifeEstimator, opts ...Option) *Store {
	s := &Store{db: db, estimator: estimator, now: time.Now, log: logger.WithModule("grocery")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stamps the purchase date, resolves the shelf life and inserts the row.
// Nothing is written when validation or estimation fails.
func (s *Store) Create(ctx context.Context, in NewItem) (domain.GroceryItem, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validator.ValidateStruct(in); err != nil {
		return domain.GroceryItem{}, apperr.Validation(err.Error())
	}

	purchased := s.now().UnixMilli()
	days := lo.FromPtr(in.ShelfLifeDays)
	if in.ShelfLifeDays == nil {
		estimated, err := s.estimator.EstimateShelfLifeDays(ctx, in.Name)
		if err != nil {
			return domain.GroceryItem{}, err
		}
		if estimated < 0 || estimated > domain.MaxShelfLifeDays {
			return domain.GroceryItem{}, apperr.Upstream(
				fmt.Errorf("shelf life %d outside 0..%d days", estimated, domain.MaxShelfLifeDays),
				"unable to estimate shelf life",
			)
		}
		days = estimated
	}

	item := domain.GroceryItem{
		Name:                in.Name,
		Quantity:            in.Quantity,
		PurchaseDate:        purchased,
		EstimatedExpiryDate: domain.ExpiryFrom(purchased, days),
	}
	res, err := s.db.NamedExecContext(ctx, `INSERT INTO groceries (name, quantity, purchase_date, estimated_expiry_date)
        VALUES (:name, :quantity, :purchase_date, :estimated_expiry_date)`, item)
	if err != nil {
		return domain.GroceryItem{}, apperr.Storage(err, "unable to add item")
	}
	item.ID, err = res.LastInsertId()
	if err != nil {
		return domain.GroceryItem{}, apperr.Storage(err, "unable to add item")
	}

	metrics.GroceryChanges.WithLabelValues("create").Inc()
	s.log.Info("grocery item added",
		zap.Int64("id", item.ID),
		zap.String("name", item.Name),
		zap.Int("shelf_life_days", days),
	)
	return item, nil
}

// ListAll returns every row ordered by id.
func (s *Store) ListAll(ctx context.Context) ([]domain.GroceryItem, error) {
	items := []domain.GroceryItem{}
	if err := s.db.SelectContext(ctx, &items, `SELECT id, name, quantity, purchase_date, estimated_expiry_date
        FROM groceries ORDER BY id`); err != nil {
		return nil, apperr.Storage(err, "unable to list items")
	}
	return items, nil
}

// DeleteByID removes the row if present. Deleting a missing id is not an error.
func (s *Store) DeleteByID(ctx context.Context, id int64) (string, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM groceries WHERE id = ?`, id)
	if err != nil {
		return "", apperr.Storage(err, "unable to delete item")
	}
	if n, _ := res.RowsAffected(); n > 0 {
		metrics.GroceryChanges.WithLabelValues("delete").Inc()
	}
	return fmt.Sprintf("Item with ID %d deleted.", id), nil
}

// Expiring returns items with between zero and withinDays days left.
func (s *Store) Expiring(ctx context.Context, withinDays int) ([]domain.GroceryItem, error) {
	items, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return lo.Filter(items, func(item domain.GroceryItem, _ int) bool {
		left := item.DaysRemaining(now)
		return left >= 0 && left <= withinDays
	}), nil
}
