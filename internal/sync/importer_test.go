package sync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbusillo/product-connect/internal/shopify"
	"github.com/cbusillo/product-connect/pkg/config"
	"github.com/cbusillo/product-connect/pkg/models"
)

func ts(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return t
}

func tsPtr(value string) *time.Time {
	t := ts(value)
	return &t
}

func TestLatestLocalModification(t *testing.T) {
	since := ts("2024-01-01T00:00:00Z")

	tests := []struct {
		name    string
		product models.Product
		want    time.Time
	}{
		{
			name: "write date wins",
			product: models.Product{
				WriteDate:           ts("2024-03-01T00:00:00Z"),
				TemplateWriteDate:   ts("2024-02-01T00:00:00Z"),
				ShopifyLastExported: tsPtr("2024-01-15T00:00:00Z"),
			},
			want: ts("2024-03-01T00:00:00Z"),
		},
		{
			name: "template write date wins",
			product: models.Product{
				WriteDate:           ts("2024-02-01T00:00:00Z"),
				TemplateWriteDate:   ts("2024-04-01T00:00:00Z"),
				ShopifyLastExported: tsPtr("2024-01-15T00:00:00Z"),
			},
			want: ts("2024-04-01T00:00:00Z"),
		},
		{
			name: "last export wins",
			product: models.Product{
				WriteDate:           ts("2024-02-01T00:00:00Z"),
				TemplateWriteDate:   ts("2024-02-01T00:00:00Z"),
				ShopifyLastExported: tsPtr("2024-05-01T00:00:00Z"),
			},
			want: ts("2024-05-01T00:00:00Z"),
		},
		{
			name:    "all timestamps zero falls back to the epoch sentinel",
			product: models.Product{},
			want:    epoch,
		},
		{
			name: "never exported",
			product: models.Product{
				WriteDate:         ts("2024-02-01T00:00:00Z"),
				TemplateWriteDate: ts("2024-01-01T00:00:00Z"),
			},
			want: ts("2024-02-01T00:00:00Z"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LatestLocalModification(&tt.product, since))
		})
	}
}

func TestLatestLocalModification_EpochSinceForcesStale(t *testing.T) {
	// A since bound before the sentinel means "import everything": every
	// local record must look older than any plausible remote updated_at.
	p := models.Product{
		WriteDate:           ts("2024-03-01T00:00:00Z"),
		TemplateWriteDate:   ts("2024-02-01T00:00:00Z"),
		ShopifyLastExported: tsPtr("2024-05-01T00:00:00Z"),
	}

	got := LatestLocalModification(&p, epoch)
	assert.Equal(t, epoch, got)
}

// The staleness rule: a record updates iff the remote updated_at is strictly
// later than the latest local modification.
func TestStalenessDecision(t *testing.T) {
	since := ts("2024-01-01T00:00:00Z")
	p := models.Product{
		WriteDate:           ts("2024-02-01T00:00:00Z"),
		TemplateWriteDate:   ts("2024-03-01T00:00:00Z"),
		ShopifyLastExported: tsPtr("2024-01-15T00:00:00Z"),
	}
	latest := LatestLocalModification(&p, since)

	assert.True(t, ts("2024-03-01T00:00:01Z").After(latest), "newer remote edit is stale")
	assert.False(t, ts("2024-03-01T00:00:00Z").After(latest), "equal timestamp is not stale")
	assert.False(t, ts("2024-02-15T00:00:00Z").After(latest), "older remote edit is not stale")
}

func TestRemoteProduct_PrimaryVariant(t *testing.T) {
	p := models.RemoteProduct{}
	assert.Nil(t, p.PrimaryVariant())

	p.Variants = []models.RemoteVariant{{SKU: "123456 - A01"}, {SKU: "999999"}}
	assert.Equal(t, "123456 - A01", p.PrimaryVariant().SKU)
}

func TestRemoteProduct_UpdatedAtTime(t *testing.T) {
	p := models.RemoteProduct{UpdatedAt: "2024-06-01T12:00:00Z"}
	got, err := p.UpdatedAtTime()
	assert.NoError(t, err)
	assert.Equal(t, ts("2024-06-01T12:00:00Z"), got)

	p.UpdatedAt = "not a date"
	_, err = p.UpdatedAtTime()
	assert.Error(t, err)
}

func intPtr(v int) *int {
	return &v
}

// fakeRecordStore records every write the reconciler issues.
type fakeRecordStore struct {
	byShopifyID map[int64]*models.Product
	bySKU       map[string]*models.Product
	conditions  map[string]bool

	created    []map[string]interface{}
	createdIDs []int64
	updated    map[int64]map[string]interface{}
	quantities map[int64]float64
	nextID     int64
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{
		byShopifyID: map[int64]*models.Product{},
		bySKU:       map[string]*models.Product{},
		conditions:  map[string]bool{},
		updated:     map[int64]map[string]interface{}{},
		quantities:  map[int64]float64{},
		nextID:      100,
	}
}

func (f *fakeRecordStore) FindProductByShopifyID(_ context.Context, shopifyID int64) (*models.Product, error) {
	return f.byShopifyID[shopifyID], nil
}

func (f *fakeRecordStore) FindProductBySKU(_ context.Context, sku string) (*models.Product, error) {
	return f.bySKU[sku], nil
}

func (f *fakeRecordStore) CreateProduct(_ context.Context, fields map[string]interface{}) (int64, error) {
	f.nextID++
	f.created = append(f.created, fields)
	f.createdIDs = append(f.createdIDs, f.nextID)
	return f.nextID, nil
}

func (f *fakeRecordStore) UpdateProduct(_ context.Context, id int64, fields map[string]interface{}) error {
	f.updated[id] = fields
	return nil
}

func (f *fakeRecordStore) UpdateQuantity(_ context.Context, productID int64, _ string, quantity float64) error {
	f.quantities[productID] = quantity
	return nil
}

func (f *fakeRecordStore) FindOrCreateManufacturer(_ context.Context, _ string) (int64, error) {
	return 7, nil
}

func (f *fakeRecordStore) FindOrCreatePartType(_ context.Context, _, _ string) (int64, error) {
	return 0, nil
}

func (f *fakeRecordStore) ConditionExists(_ context.Context, code string) (bool, error) {
	return f.conditions[code], nil
}

func (f *fakeRecordStore) HasImages(_ context.Context, _ int64) (bool, error) {
	return false, nil
}

func (f *fakeRecordStore) AttachImage(_ context.Context, _ int64, _ int, _ []byte) error {
	return nil
}

func testImporter() *Importer {
	return &Importer{
		cfg:    &config.SyncConfig{CommitEvery: 1000, LocationName: "Stock"},
		logger: quietLogger().WithField("component", "importer"),
	}
}

func TestReconcileOne_CreatesRecordFromCompositeSKU(t *testing.T) {
	st := newFakeRecordStore()
	imp := testImporter()

	remote := &models.RemoteProduct{
		ID:             "gid://shopify/Product/777",
		Title:          "Starter Motor",
		Status:         "ACTIVE",
		CreatedAt:      "2024-05-01T00:00:00Z",
		UpdatedAt:      "2024-06-01T00:00:00Z",
		TotalInventory: intPtr(3),
		Variants: []models.RemoteVariant{{
			ID:    "gid://shopify/ProductVariant/778",
			SKU:   "000123 - A01",
			Price: "25.00",
		}},
	}

	status, err := imp.reconcileOne(context.Background(), st, remote, ts("2024-01-01T00:00:00Z"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCreated, status)

	require.Len(t, st.created, 1)
	fields := st.created[0]
	assert.Equal(t, "000123", fields["sku"])
	assert.Equal(t, "A01", fields["bin"])
	assert.Equal(t, int64(777), fields["shopify_product_id"])
	assert.Equal(t, int64(778), fields["shopify_variant_id"])
	assert.Equal(t, 25.0, fields["list_price"])
	assert.Equal(t, true, fields["is_published"])

	assert.Empty(t, st.updated)
	assert.Equal(t, 3.0, st.quantities[st.createdIDs[0]])
}

func TestReconcileOne_UnchangedRemoteWritesNothing(t *testing.T) {
	st := newFakeRecordStore()
	imp := testImporter()

	local := &models.Product{
		ID:                  5,
		SKU:                 "000123",
		WriteDate:           ts("2024-05-20T00:00:00Z"),
		TemplateWriteDate:   ts("2024-05-20T00:00:00Z"),
		ShopifyLastExported: tsPtr("2024-06-01T00:00:00Z"),
	}
	st.byShopifyID[777] = local

	remote := &models.RemoteProduct{
		ID:        "gid://shopify/Product/777",
		Title:     "Starter Motor",
		Status:    "ACTIVE",
		UpdatedAt: "2024-06-01T00:00:00Z",
		Variants: []models.RemoteVariant{{
			ID:  "gid://shopify/ProductVariant/778",
			SKU: "000123 - A01",
		}},
	}

	status, err := imp.reconcileOne(context.Background(), st, remote, ts("2024-06-02T00:00:00Z"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnchanged, status)

	assert.Empty(t, st.created)
	assert.Empty(t, st.updated)
	assert.Empty(t, st.quantities)
}

type stubTx struct {
	commits   int
	rollbacks int
	commitErr error
}

func (tx *stubTx) Commit() error {
	tx.commits++
	return tx.commitErr
}

func (tx *stubTx) Rollback() error {
	tx.rollbacks++
	return nil
}

// productPageServer serves one page containing a single valid product, then
// an empty page.
func productPageServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Variables map[string]interface{} `json:"variables"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

		edges := []map[string]interface{}{}
		if cursor, _ := payload.Variables["cursor"].(string); cursor == "" {
			edges = append(edges, map[string]interface{}{
				"cursor": "c1",
				"node": map[string]interface{}{
					"id":        "gid://shopify/Product/901",
					"title":     "Trim Tab",
					"status":    "ACTIVE",
					"updatedAt": "2024-06-01T00:00:00Z",
					"variants": []interface{}{
						map[string]interface{}{
							"id":    "gid://shopify/ProductVariant/902",
							"sku":   "000456 - B02",
							"price": "15.00",
						},
					},
				},
			})
		}
		assert.NoError(t, json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"products": map[string]interface{}{"edges": edges},
			},
		}))
	}))
}

// A batch boundary where opening the next transaction fails must surface the
// error, not crash on a rollback of a transaction that never started.
func TestRun_BeginFailureAfterBatchCommit(t *testing.T) {
	server := productPageServer(t)
	defer server.Close()

	rate, err := shopify.NewRateController(2000, 100, quietLogger())
	require.NoError(t, err)
	client, err := shopify.NewClient(&config.ShopifyConfig{
		StoreKey:           "test-store",
		APIToken:           "test-token",
		APIVersion:         "2023-10",
		Endpoint:           server.URL,
		Timeout:            5 * time.Second,
		EstimatedQueryCost: 100,
		MaxRetries:         5,
		MaxRetryDelay:      time.Second,
	}, rate, quietLogger())
	require.NoError(t, err)

	st := newFakeRecordStore()
	first := &stubTx{}
	begins := 0

	imp := testImporter()
	imp.cfg.CommitEvery = 1
	imp.walker = shopify.NewWalker(client, 250, quietLogger())
	imp.begin = func(context.Context) (batchTx, error) {
		begins++
		if begins > 1 {
			return nil, errors.New("connection lost")
		}
		return first, nil
	}
	imp.withTx = func(batchTx) recordStore { return st }

	result, err := imp.Run(context.Background(), "2024-01-01T00:00:00Z", ts("2024-01-01T00:00:00Z"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "connection lost")

	assert.Equal(t, 1, result.Total)
	require.Len(t, st.created, 1)
	assert.Equal(t, "000456", st.created[0]["sku"])
	assert.Equal(t, 1, first.commits)
	assert.Zero(t, first.rollbacks)
}
