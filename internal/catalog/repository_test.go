package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/voltride/ebike-backend/pkg/db/models"
	pkgerrors "github.com/voltride/ebike-backend/pkg/errors"
)

func newTestRepo(t *testing.T) (*Repository, *gorm.DB) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Product{}, &models.StoreLocation{}))
	return NewRepository(conn), conn
}

func TestFindProductSkipsInactive(t *testing.T) {
	repo, conn := newTestRepo(t)
	active := models.Product{Name: "Trail 750", Price: 32_000_000}
	retired := models.Product{Name: "Commuter 250", Price: 9_000_000}
	require.NoError(t, conn.Create(&active).Error)
	require.NoError(t, conn.Create(&retired).Error)
	require.NoError(t, conn.Model(&retired).Update("is_active", false).Error)

	got, err := repo.FindProduct(context.Background(), active.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(32_000_000), got.Price)

	_, err = repo.FindProduct(context.Background(), retired.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	found, err := repo.FindProducts(context.Background(), []uuid.UUID{active.ID, retired.ID, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Contains(t, found, active.ID)
}

func TestFindLocation(t *testing.T) {
	repo, conn := newTestRepo(t)
	loc := models.StoreLocation{Name: "District 1", Address: "1 Le Loi", City: "HCMC", Latitude: 10.77, Longitude: 106.70}
	require.NoError(t, conn.Create(&loc).Error)

	got, err := repo.FindLocation(context.Background(), loc.ID)
	require.NoError(t, err)
	assert.Equal(t, 10.77, got.Coordinates().Lat)

	_, err = repo.FindLocation(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
