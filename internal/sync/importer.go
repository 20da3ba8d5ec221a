package sync

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cbusillo/product-connect/internal/notify"
	"github.com/cbusillo/product-connect/internal/shopify"
	"github.com/cbusillo/product-connect/internal/store"
	"github.com/cbusillo/product-connect/pkg/config"
	"github.com/cbusillo/product-connect/pkg/logger"
	"github.com/cbusillo/product-connect/pkg/models"
)

// epoch is the sentinel bound: a checkpoint before 2001 means "import
// everything".
var epoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// recordStore is the slice of the store the reconciler writes through. Both
// *store.Store and its transaction-scoped clones satisfy it.
type recordStore interface {
	FindProductByShopifyID(ctx context.Context, shopifyID int64) (*models.Product, error)
	FindProductBySKU(ctx context.Context, sku string) (*models.Product, error)
	CreateProduct(ctx context.Context, fields map[string]interface{}) (int64, error)
	UpdateProduct(ctx context.Context, id int64, fields map[string]interface{}) error
	UpdateQuantity(ctx context.Context, productID int64, location string, quantity float64) error
	FindOrCreateManufacturer(ctx context.Context, name string) (int64, error)
	FindOrCreatePartType(ctx context.Context, name, ebayCategoryID string) (int64, error)
	ConditionExists(ctx context.Context, code string) (bool, error)
	HasImages(ctx context.Context, productID int64) (bool, error)
	AttachImage(ctx context.Context, productID int64, sequence int, data []byte) error
}

// batchTx is the commit scope of one import batch.
type batchTx interface {
	Commit() error
	Rollback() error
}

// Importer reconciles remote catalog records into the local store. For each
// record it matches by remote id or parsed SKU, decides create/update/skip by
// comparing modification timestamps, maps remote fields to local fields, and
// delegates image and stock side effects. Writes are committed in batches so
// a mid-phase crash loses at most one batch of work.
type Importer struct {
	begin    func(ctx context.Context) (batchTx, error)
	withTx   func(tx batchTx) recordStore
	walker   *shopify.Walker
	notifier *notify.Notifier
	images   *ImageFetcher
	logs     *logger.RingBuffer
	logger   *logrus.Entry
	cfg      *config.SyncConfig
}

// NewImporter creates an import reconciler.
func NewImporter(
	st *store.Store,
	walker *shopify.Walker,
	notifier *notify.Notifier,
	images *ImageFetcher,
	logs *logger.RingBuffer,
	cfg *config.SyncConfig,
	log *logrus.Logger,
) *Importer {
	return &Importer{
		begin: func(ctx context.Context) (batchTx, error) {
			tx, err := st.Begin(ctx)
			if err != nil {
				return nil, err
			}
			return tx, nil
		},
		withTx: func(tx batchTx) recordStore {
			return st.WithTx(tx.(*sql.Tx))
		},
		walker:   walker,
		notifier: notifier,
		images:   images,
		logs:     logs,
		logger:   log.WithField("component", "importer"),
		cfg:      cfg,
	}
}

// Run walks every remote product updated since the bound and reconciles it
// locally. The batch transaction is committed every CommitEvery records.
func (imp *Importer) Run(ctx context.Context, sinceStr string, since time.Time) (models.ImportResult, error) {
	var result models.ImportResult

	tx, err := imp.begin(ctx)
	if err != nil {
		return result, err
	}
	st := imp.withTx(tx)

	walkErr := imp.walker.Walk(ctx, "product", "GetProducts", sinceStr, "", func(record map[string]interface{}) error {
		var remote models.RemoteProduct
		if err := shopify.Decode(record, &remote); err != nil {
			return &shopify.ProtocolError{Messages: []string{fmt.Sprintf("malformed product record: %v", err)}}
		}

		status, err := imp.reconcileOne(ctx, st, &remote, since)
		if err != nil {
			return err
		}

		result.Total++
		switch status {
		case models.StatusCreated:
			result.Created++
		case models.StatusUpdated:
			result.Updated++
		case models.StatusRejected:
			result.Rejected++
		default:
			result.Unchanged++
		}

		imp.logger.WithFields(logrus.Fields{
			"total":   result.Total,
			"product": remote.ID,
			"status":  status,
		}).Debug("Imported remote product")

		if result.Total%imp.cfg.CommitEvery == 0 {
			if err := tx.Commit(); err != nil {
				return &store.WriteError{Op: "commit import batch", Err: err}
			}
			tx, err = imp.begin(ctx)
			if err != nil {
				return err
			}
			st = imp.withTx(tx)
		}
		return nil
	})

	if walkErr != nil {
		// tx is nil when the walk failed starting a fresh batch.
		if tx != nil {
			_ = tx.Rollback()
		}
		return result, walkErr
	}

	if err := tx.Commit(); err != nil {
		return result, &store.WriteError{Op: "commit import batch", Err: err}
	}
	return result, nil
}

// reconcileOne matches one remote record to a local one and applies it when
// the remote data is newer.
func (imp *Importer) reconcileOne(ctx context.Context, st recordStore, remote *models.RemoteProduct, since time.Time) (string, error) {
	variant := remote.PrimaryVariant()
	if variant == nil {
		imp.rejectRecord(ctx, remote, "no variants")
		return models.StatusRejected, nil
	}

	sku, bin := ParseSKUBin(variant.SKU)
	if !ValidSKU(sku) {
		imp.rejectRecord(ctx, remote, fmt.Sprintf("unparsable SKU %q", variant.SKU))
		return models.StatusRejected, nil
	}

	remoteID, err := shopify.ExtractID(remote.ID)
	if err != nil {
		return "", &shopify.ProtocolError{Messages: []string{err.Error()}}
	}

	local, err := st.FindProductByShopifyID(ctx, remoteID)
	if err != nil {
		return "", err
	}
	if local == nil {
		local, err = st.FindProductBySKU(ctx, sku)
		if err != nil {
			return "", err
		}
	}

	if local != nil {
		updatedAt, err := remote.UpdatedAtTime()
		if err != nil {
			return "", &shopify.ProtocolError{
				Messages: []string{fmt.Sprintf("invalid updatedAt %q on product %s", remote.UpdatedAt, remote.ID)},
			}
		}
		if !updatedAt.After(LatestLocalModification(local, since)) {
			return models.StatusUnchanged, nil
		}
	}

	if err := imp.applyRecord(ctx, st, remote, local, remoteID, sku, bin); err != nil {
		var productID *int64
		if local != nil {
			productID = &local.ID
		}
		imp.notifier.NotifyOnError(ctx, "Import from Shopify failed", err.Error(), productID, imp.logs.Lines())
		return "", err
	}

	if local != nil {
		return models.StatusUpdated, nil
	}
	return models.StatusCreated, nil
}

// LatestLocalModification returns the newest of the local record's own write
// time, its parent-record write time and its last-export time. A local edit
// can touch either level, and an export itself advances modification time;
// all three are considered so an import neither clobbers a newer local edit
// nor mistakes a just-performed export for a pending remote update. A since
// bound before the epoch sentinel forces everything stale.
func LatestLocalModification(p *models.Product, since time.Time) time.Time {
	if since.Year() < 2001 {
		return epoch
	}

	latest := epoch
	for _, t := range []time.Time{p.WriteDate, p.TemplateWriteDate} {
		if t.After(latest) {
			latest = t
		}
	}
	if p.ShopifyLastExported != nil && p.ShopifyLastExported.After(latest) {
		latest = *p.ShopifyLastExported
	}
	return latest
}

// applyRecord maps remote fields onto the local record and performs the
// image and stock side effects.
func (imp *Importer) applyRecord(ctx context.Context, st recordStore, remote *models.RemoteProduct, local *models.Product, remoteID int64, sku, bin string) error {
	fields, err := imp.mapFields(ctx, st, remote, local, remoteID, sku, bin)
	if err != nil {
		return err
	}

	productID := int64(0)
	if local != nil {
		productID = local.ID
		if err := st.UpdateProduct(ctx, productID, fields); err != nil {
			return err
		}
	} else {
		productID, err = st.CreateProduct(ctx, fields)
		if err != nil {
			return err
		}
	}

	if err := imp.importImages(ctx, st, productID, remote); err != nil {
		return err
	}

	// Stock flows through the quantity side channel only when the remote
	// reports an inventory total.
	if remote.TotalInventory != nil {
		if err := st.UpdateQuantity(ctx, productID, imp.cfg.LocationName, float64(*remote.TotalInventory)); err != nil {
			return err
		}
	}
	return nil
}

// mapFields translates a remote record into a local field/value map.
func (imp *Importer) mapFields(ctx context.Context, st recordStore, remote *models.RemoteProduct, local *models.Product, remoteID int64, sku, bin string) (map[string]interface{}, error) {
	variant := remote.PrimaryVariant()

	variantID, err := shopify.ExtractID(variant.ID)
	if err != nil {
		return nil, &shopify.ProtocolError{Messages: []string{err.Error()}}
	}

	fields := map[string]interface{}{
		"name":               remote.Title,
		"sku":                sku,
		"bin":                bin,
		"description_sale":   remote.DescriptionHTML,
		"shopify_product_id": remoteID,
		"shopify_variant_id": variantID,
		"barcode":            "",
		"list_price":         variant.PriceValue(),
		"standard_price":     variant.CostValue(),
		"mpn":                variant.Barcode,
		"weight":             variant.Weight,
		"is_published":       strings.EqualFold(remote.Status, "active"),
	}

	if created, err := time.Parse(time.RFC3339, remote.CreatedAt); err == nil {
		fields["shopify_created_at"] = created.UTC()
	}

	if remote.Vendor != "" {
		manufacturerID, err := st.FindOrCreateManufacturer(ctx, remote.Vendor)
		if err != nil {
			return nil, err
		}
		fields["manufacturer_id"] = manufacturerID
	}

	condition := ""
	for _, mf := range remote.Metafields {
		switch mf.Key {
		case "condition":
			condition = mf.Value
			if id, err := shopify.ExtractID(mf.ID); err == nil {
				fields["shopify_condition_id"] = id
			}
		case "ebay_category_id":
			if id, err := shopify.ExtractID(mf.ID); err == nil {
				fields["shopify_ebay_category_id"] = id
			}
			partTypeID, err := st.FindOrCreatePartType(ctx, remote.ProductType, mf.Value)
			if err != nil {
				return nil, err
			}
			if partTypeID != 0 {
				fields["part_type_id"] = partTypeID
			}
		}
	}

	// When the remote condition is absent or unknown the existing local
	// condition is kept.
	if condition != "" {
		known, err := st.ConditionExists(ctx, condition)
		if err != nil {
			return nil, err
		}
		if known {
			fields["condition_code"] = condition
		} else if local != nil {
			fields["condition_code"] = local.ConditionCode
		}
	}

	return fields, nil
}

// importImages fetches and attaches remote images, only when the local
// record has none yet. Download failures are logged, never fatal.
func (imp *Importer) importImages(ctx context.Context, st recordStore, productID int64, remote *models.RemoteProduct) error {
	if len(remote.Images) == 0 {
		return nil
	}

	has, err := st.HasImages(ctx, productID)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	for i, img := range remote.Images {
		data, err := imp.images.Fetch(ctx, img.URL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			imp.logger.WithError(err).WithField("url", img.URL).Error("Giving up on image")
			continue
		}
		if err := st.AttachImage(ctx, productID, i, data); err != nil {
			return err
		}
	}
	return nil
}

// rejectRecord reports a record the reconciler refuses to create.
func (imp *Importer) rejectRecord(ctx context.Context, remote *models.RemoteProduct, reason string) {
	imp.logger.WithFields(logrus.Fields{
		"product": remote.ID,
		"title":   remote.Title,
		"reason":  reason,
	}).Warn("Rejected remote product")

	imp.notifier.NotifyOnError(ctx,
		fmt.Sprintf("Failed importing %s due to bad SKU in Shopify", remote.Title),
		remote.ID, nil, nil)
}
