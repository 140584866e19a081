package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-service/internal/models"
	"pos-service/internal/store"
)

func TestBuildListQuery(t *testing.T) {
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	q := store.BuildQuery(store.WhereGTE(store.FieldTimestamp, since), store.OrderByDesc(store.FieldTimestamp))

	query, args := buildListQuery(store.SalesCollection, q)

	assert.Equal(t,
		`SELECT id, fields FROM documents WHERE collection = $1 AND fields->>$2 >= $3 ORDER BY (fields->>$4) COLLATE "C" DESC, id`,
		query)
	assert.Equal(t, []interface{}{"sales", "timestamp", "2026-03-01T00:00:00.000000000Z", "timestamp"}, args)
}

func TestBuildListQueryNumericFilter(t *testing.T) {
	q := store.BuildQuery(store.WhereGTE(store.FieldStock, 1))

	query, _ := buildListQuery(store.ProductsCollection, q)

	assert.Contains(t, query, "(fields->>$2)::numeric >= $3")
	assert.Contains(t, query, "ORDER BY id")
}

func TestEncodeFieldsResolvesServerTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 5, 14, 0, 0, 0, time.FixedZone("ART", -3*3600))

	payload, err := encodeFields(map[string]interface{}{
		store.FieldTimestamp: store.ServerTimestamp,
		store.FieldDay:       "2026-03-05",
	}, now)
	require.NoError(t, err)

	fields, err := decodeFields([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, "2026-03-05T17:00:00.000000000Z", fields[store.FieldTimestamp])
	assert.Equal(t, "2026-03-05", fields[store.FieldDay])
}

func TestTimeLayoutSortsAsText(t *testing.T) {
	a := time.Date(2026, 3, 5, 9, 0, 0, 5, time.UTC).Format(timeLayout)
	b := time.Date(2026, 3, 5, 9, 0, 0, 40, time.UTC).Format(timeLayout)
	assert.Less(t, a, b)
}

func newIntegrationStore(t *testing.T) *Store {
	url := os.Getenv("POS_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Integration test - requires database (set POS_TEST_DATABASE_URL)")
	}

	s, err := NewStore(url, 10)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	_, err = s.GetDB().Exec("DELETE FROM documents WHERE collection IN ($1, $2)",
		store.ProductsCollection, store.SalesCollection)
	require.NoError(t, err)
	return s
}

func TestCommitDecrementsStockAndWritesLedger(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, store.ProductsCollection, store.ProductFields(models.Product{
		Name: "Martillo Azul", Price: 8500, Stock: 3, Barcodes: []string{"7791234000011"},
	}))
	require.NoError(t, err)

	var saleID string
	err = s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		doc, err := tx.Get(ctx, store.ProductsCollection, id)
		if err != nil {
			return err
		}
		stock, err := store.StockFromFields(id, doc.Fields)
		if err != nil {
			return err
		}
		tx.Update(store.ProductsCollection, id, map[string]interface{}{store.FieldStock: stock - 2})
		saleID = tx.Insert(store.SalesCollection, store.SaleRecordFields(models.SaleRecord{
			Day:   "2026-03-05",
			Items: []models.SaleItem{{ProductID: id, Name: "Martillo Azul", UnitPrice: 8500, Quantity: 2}},
		}))
		return nil
	})
	require.NoError(t, err)

	doc, err := s.Get(ctx, store.ProductsCollection, id)
	require.NoError(t, err)
	stock, err := store.StockFromFields(id, doc.Fields)
	require.NoError(t, err)
	assert.Equal(t, 1, stock)

	sale, err := s.Get(ctx, store.SalesCollection, saleID)
	require.NoError(t, err)
	rec, err := store.SaleRecordFromDocument(sale)
	require.NoError(t, err)
	assert.False(t, rec.Timestamp.IsZero())
	assert.Len(t, rec.Items, 1)
}

func TestReadAfterWriteRejected(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, store.ProductsCollection, map[string]interface{}{store.FieldName: "Cinta", store.FieldStock: 1})
	require.NoError(t, err)

	err = s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		tx.Update(store.ProductsCollection, id, map[string]interface{}{store.FieldStock: 0})
		_, err := tx.Get(ctx, store.ProductsCollection, id)
		return err
	})
	assert.ErrorIs(t, err, store.ErrReadAfterWrite)
}
