package inventory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltride/ebike-backend/pkg/db"
	"github.com/voltride/ebike-backend/pkg/db/models"
	"github.com/voltride/ebike-backend/pkg/enums"
)

func TestServiceListsLowAndOutOfStock(t *testing.T) {
	conn := newTestDB(t)
	ledger := NewLedger(conn)
	svc, err := NewService(conn, ledger, db.FromConn(conn))
	require.NoError(t, err)

	location := uuid.New()
	product := models.Product{Name: "City Cruiser 500W", Price: 18_900_000}
	require.NoError(t, conn.Create(&product).Error)

	rows := []models.InventoryRecord{
		{ProductID: product.ID, LocationID: location, Stock: 1, MinStock: 3},
		{ProductID: uuid.New(), LocationID: location, Stock: 0, MinStock: 3},
		{ProductID: uuid.New(), LocationID: location, Stock: 9, MinStock: 3},
		{ProductID: uuid.New(), LocationID: uuid.New(), Stock: 2, MinStock: 3},
	}
	for i := range rows {
		require.NoError(t, conn.Create(&rows[i]).Error)
	}

	low, err := svc.ListLowStock(context.Background(), &location)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "City Cruiser 500W", low[0].ProductName)
	assert.Equal(t, enums.StockStatusLowStock, low[0].Status)

	allLow, err := svc.ListLowStock(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, allLow, 2)

	out, err := svc.ListOutOfStock(context.Background(), &location)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, enums.StockStatusOutOfStock, out[0].Status)
}

func TestServiceRestockCreatesAndIncrements(t *testing.T) {
	conn := newTestDB(t)
	ledger := NewLedger(conn)
	svc, err := NewService(conn, ledger, db.FromConn(conn))
	require.NoError(t, err)

	productID, locationID := uuid.New(), uuid.New()
	item, err := svc.Restock(context.Background(), productID, locationID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, item.Stock)
	assert.Equal(t, models.DefaultMinStock, item.MinStock)
	assert.Equal(t, enums.StockStatusLowStock, item.Status)

	item, err = svc.Restock(context.Background(), productID, locationID, 6)
	require.NoError(t, err)
	assert.Equal(t, 10, item.Stock)
	assert.Equal(t, enums.StockStatusInStock, item.Status)
}
