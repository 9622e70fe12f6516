package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/voltride/ebike-backend/pkg/enums"
	pkgerrors "github.com/voltride/ebike-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// StockItem is an inventory row joined with its product name and derived status.
type StockItem struct {
	ProductID   uuid.UUID         `json:"product_id"`
	ProductName string            `json:"product_name"`
	LocationID  uuid.UUID         `json:"location_id"`
	Stock       int               `json:"stock"`
	MinStock    int               `json:"min_stock"`
	Status      enums.StockStatus `json:"status"`
}

// Service exposes read models and admin restocking on top of the ledger.
type Service interface {
	Availability(ctx context.Context, productID, locationID uuid.UUID, qty int) (Availability, error)
	ListLowStock(ctx context.Context, locationID *uuid.UUID) ([]StockItem, error)
	ListOutOfStock(ctx context.Context, locationID *uuid.UUID) ([]StockItem, error)
	Restock(ctx context.Context, productID, locationID uuid.UUID, qty int) (*StockItem, error)
}

type service struct {
	db     *gorm.DB
	ledger *Ledger
	tx     txRunner
}

// NewService wires the inventory read/admin service.
func NewService(db *gorm.DB, ledger *Ledger, tx txRunner) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	return &service{db: db, ledger: ledger, tx: tx}, nil
}

func (s *service) Availability(ctx context.Context, productID, locationID uuid.UUID, qty int) (Availability, error) {
	return s.ledger.IsAvailable(ctx, productID, locationID, qty)
}

func (s *service) ListLowStock(ctx context.Context, locationID *uuid.UUID) ([]StockItem, error) {
	return s.list(ctx, locationID, "inventory_records.stock > 0 AND inventory_records.stock <= inventory_records.min_stock")
}

func (s *service) ListOutOfStock(ctx context.Context, locationID *uuid.UUID) ([]StockItem, error) {
	return s.list(ctx, locationID, "inventory_records.stock <= 0")
}

func (s *service) Restock(ctx context.Context, productID, locationID uuid.UUID, qty int) (*StockItem, error) {
	var item *StockItem
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		record, err := s.ledger.Restock(ctx, tx, productID, locationID, qty)
		if err != nil {
			return err
		}
		item = &StockItem{
			ProductID:  record.ProductID,
			LocationID: record.LocationID,
			Stock:      record.Stock,
			MinStock:   record.MinStock,
			Status:     StockStatus(record.Stock, record.MinStock),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

type stockRow struct {
	ProductID   uuid.UUID
	ProductName string
	LocationID  uuid.UUID
	Stock       int
	MinStock    int
}

func (s *service) list(ctx context.Context, locationID *uuid.UUID, condition string) ([]StockItem, error) {
	query := s.db.WithContext(ctx).
		Table("inventory_records").
		Select("inventory_records.product_id, products.name AS product_name, inventory_records.location_id, inventory_records.stock, inventory_records.min_stock").
		Joins("LEFT JOIN products ON products.id = inventory_records.product_id").
		Where(condition)
	if locationID != nil {
		query = query.Where("inventory_records.location_id = ?", *locationID)
	}

	var rows []stockRow
	if err := query.Order("inventory_records.stock ASC").Scan(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list inventory")
	}

	items := make([]StockItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, StockItem{
			ProductID:   row.ProductID,
			ProductName: row.ProductName,
			LocationID:  row.LocationID,
			Stock:       row.Stock,
			MinStock:    row.MinStock,
			Status:      StockStatus(row.Stock, row.MinStock),
		})
	}
	return items, nil
}
