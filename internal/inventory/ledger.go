package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/voltride/ebike-backend/pkg/db/models"
	pkgerrors "github.com/voltride/ebike-backend/pkg/errors"
)

// Availability is a read-only stock check result.
type Availability struct {
	Available bool `json:"available"`
	Stock     int  `json:"stock"`
}

// Ledger is the only writer of inventory stock. Every mutation is a single
// conditional statement so concurrent callers on any instance stay consistent.
type Ledger struct {
	db *gorm.DB
}

// NewLedger binds the ledger to the primary connection used for reads.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Reserve decrements stock by qty when at least qty is on hand.
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, productID, locationID uuid.UUID, qty int) error {
	if err := validateLine(productID, locationID, qty); err != nil {
		return err
	}
	conn := l.conn(tx).WithContext(ctx)

	res := conn.Model(&models.InventoryRecord{}).
		Where("product_id = ? AND location_id = ? AND stock >= ?", productID, locationID, qty).
		UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "reserve inventory")
	}
	if res.RowsAffected == 1 {
		return nil
	}

	available, err := currentStock(conn, productID, locationID)
	if err != nil {
		return err
	}
	return InsufficientStockError([]Shortage{{
		ProductID:  productID,
		LocationID: locationID,
		Requested:  qty,
		Available:  available,
	}})
}

// Release returns qty to stock. Callers release a reservation at most once.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, productID, locationID uuid.UUID, qty int) error {
	if err := validateLine(productID, locationID, qty); err != nil {
		return err
	}
	res := l.conn(tx).WithContext(ctx).
		Model(&models.InventoryRecord{}).
		Where("product_id = ? AND location_id = ?", productID, locationID).
		UpdateColumn("stock", gorm.Expr("stock + ?", qty))
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "release inventory")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "inventory record not found").WithDetails(map[string]any{
			"product_id":  productID,
			"location_id": locationID,
		})
	}
	return nil
}

// IsAvailable reports whether qty could be reserved right now without reserving it.
func (l *Ledger) IsAvailable(ctx context.Context, productID, locationID uuid.UUID, qty int) (Availability, error) {
	if err := validateLine(productID, locationID, qty); err != nil {
		return Availability{}, err
	}
	stock, err := currentStock(l.db.WithContext(ctx), productID, locationID)
	if err != nil {
		return Availability{}, err
	}
	return Availability{Available: stock >= qty, Stock: stock}, nil
}

// Restock adds qty, creating the record on first delivery to a location.
func (l *Ledger) Restock(ctx context.Context, tx *gorm.DB, productID, locationID uuid.UUID, qty int) (*models.InventoryRecord, error) {
	if err := validateLine(productID, locationID, qty); err != nil {
		return nil, err
	}
	conn := l.conn(tx).WithContext(ctx)

	res := conn.Model(&models.InventoryRecord{}).
		Where("product_id = ? AND location_id = ?", productID, locationID).
		UpdateColumn("stock", gorm.Expr("stock + ?", qty))
	if res.Error != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "restock inventory")
	}
	if res.RowsAffected == 0 {
		record := &models.InventoryRecord{ProductID: productID, LocationID: locationID, Stock: qty, MinStock: models.DefaultMinStock}
		if err := conn.Create(record).Error; err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create inventory record")
		}
		return record, nil
	}

	var record models.InventoryRecord
	if err := conn.First(&record, "product_id = ? AND location_id = ?", productID, locationID).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load inventory record")
	}
	return &record, nil
}

func (l *Ledger) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return l.db
}

func currentStock(conn *gorm.DB, productID, locationID uuid.UUID) (int, error) {
	var record models.InventoryRecord
	err := conn.Select("stock").
		Where("product_id = ? AND location_id = ?", productID, locationID).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load inventory stock")
	}
	return record.Stock, nil
}

func validateLine(productID, locationID uuid.UUID, qty int) error {
	if productID == uuid.Nil || locationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product and location are required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be positive, got %d", qty))
	}
	return nil
}
