package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cbusillo/product-connect/internal/notify"
	"github.com/cbusillo/product-connect/internal/shopify"
	"github.com/cbusillo/product-connect/internal/store"
	"github.com/cbusillo/product-connect/pkg/config"
	"github.com/cbusillo/product-connect/pkg/logger"
	"github.com/cbusillo/product-connect/pkg/models"
)

// Exporter pushes locally changed products to the remote catalog: it builds
// create-or-update mutation payloads with metafield attachments, links new
// records to every distribution channel, and persists the remote identifiers
// it receives back.
type Exporter struct {
	store    *store.Store
	client   *shopify.Client
	notifier *notify.Notifier
	logs     *logger.RingBuffer
	logger   *logrus.Entry
	cfg      *config.SyncConfig

	// locationGID is the remote location receiving initial stock
	// assignments; set per pass during session setup.
	locationGID string
}

// NewExporter creates an export reconciler.
func NewExporter(
	st *store.Store,
	client *shopify.Client,
	notifier *notify.Notifier,
	logs *logger.RingBuffer,
	cfg *config.SyncConfig,
	log *logrus.Logger,
) *Exporter {
	return &Exporter{
		store:    st,
		client:   client,
		notifier: notifier,
		logs:     logs,
		logger:   log.WithField("component", "exporter"),
		cfg:      cfg,
	}
}

// SetLocation sets the remote location for initial stock assignments.
func (e *Exporter) SetLocation(gid string) {
	e.locationGID = gid
}

// Run exports every locally changed product. One failing record aborts the
// phase after escalation.
func (e *Exporter) Run(ctx context.Context) (int, error) {
	products, err := e.store.ProductsToExport(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, p := range products {
		e.logger.WithFields(logrus.Fields{
			"sku":  p.SKU,
			"name": p.Name,
		}).Debug("Exporting product")

		if err := e.exportOne(ctx, p); err != nil {
			e.notifier.NotifyOnError(ctx, "Export to Shopify failed", err.Error(), &p.ID, e.logs.Lines())
			return count, err
		}
		count++

		e.logger.WithFields(logrus.Fields{
			"exported": count,
			"of":       len(products),
		}).Debug("Export progress")
	}
	return count, nil
}

// exportOne builds, executes and settles one create-or-update mutation.
func (e *Exporter) exportOne(ctx context.Context, p *models.Product) error {
	fields, err := e.loadRelated(ctx, p)
	if err != nil {
		return err
	}
	input := e.buildInput(p, fields)

	operation := "CreateProduct"
	resultKey := "productCreate"
	if p.ShopifyProductID != 0 {
		operation = "UpdateProduct"
		resultKey = "productUpdate"
		input["id"] = shopify.GID("Product", p.ShopifyProductID)
	}

	resp, err := e.client.Execute(ctx, "product", operation, map[string]interface{}{"input": input})
	if err != nil {
		return err
	}

	data, err := shopify.Validate(resp)
	if err != nil {
		return err
	}

	remote, err := decodeMutationProduct(data, resultKey)
	if err != nil {
		return err
	}

	// A created record is not visible anywhere until it is linked to the
	// distribution channels.
	if err := e.publish(ctx, remote.ID); err != nil {
		return err
	}

	return e.persistRemoteIDs(ctx, p, remote)
}

// relatedFields are the store-side lookups a payload needs: the vendor name,
// the category record and, for not-yet-exported products, the image
// attachments.
type relatedFields struct {
	vendor   string
	partType *models.PartType
	images   []models.ProductImage
}

// loadRelated resolves the payload's store-side lookups.
func (e *Exporter) loadRelated(ctx context.Context, p *models.Product) (*relatedFields, error) {
	fields := &relatedFields{}

	if p.ManufacturerID != 0 {
		name, err := e.store.ManufacturerName(ctx, p.ManufacturerID)
		if err != nil {
			return nil, err
		}
		fields.vendor = name
	}
	if p.PartTypeID != 0 {
		partType, err := e.store.PartTypeByID(ctx, p.PartTypeID)
		if err != nil {
			return nil, err
		}
		fields.partType = partType
	}
	if p.ShopifyProductID == 0 {
		images, err := e.store.ProductImages(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		fields.images = images
	}
	return fields, nil
}

// buildInput constructs the mutation payload for one product.
func (e *Exporter) buildInput(p *models.Product, fields *relatedFields) map[string]interface{} {
	variant := map[string]interface{}{
		"price":               p.ListPrice,
		"sku":                 ComposeSKUBin(p.SKU, p.Bin),
		"barcode":             p.MPN,
		"inventoryManagement": "SHOPIFY",
		"weight":              p.Weight,
		"inventoryItem": map[string]interface{}{
			"cost": p.StandardPrice,
		},
	}
	if p.ShopifyVariantID != 0 {
		variant["id"] = shopify.GID("ProductVariant", p.ShopifyVariantID)
	}

	// The initial quantity is assigned only on create; later stock changes
	// flow through the quantity-update path, never this payload.
	if p.ShopifyProductID == 0 {
		variant["inventoryQuantities"] = []map[string]interface{}{
			{
				"availableQuantity": int(p.QtyAvailable),
				"locationId":        e.locationGID,
			},
		}
	}

	status := "DRAFT"
	if p.QtyAvailable > 0 {
		status = "ACTIVE"
	}

	input := map[string]interface{}{
		"title":      p.Name,
		"bodyHtml":   p.DescriptionSale,
		"status":     status,
		"variants":   []interface{}{variant},
		"metafields": e.buildMetafields(p, fields.partType),
	}

	if fields.vendor != "" {
		input["vendor"] = fields.vendor
	}
	if fields.partType != nil {
		input["productType"] = fields.partType.Name
	}

	if p.ShopifyProductID == 0 {
		input["images"] = e.buildImages(p, fields.images)
	}

	return input
}

// buildMetafields attaches the condition and external-category metafields,
// by id when already known remotely, otherwise with full namespace/key/type.
func (e *Exporter) buildMetafields(p *models.Product, partType *models.PartType) []map[string]interface{} {
	condition := map[string]interface{}{"value": p.ConditionCode}
	if p.ShopifyConditionID != 0 {
		condition["id"] = shopify.GID("Metafield", p.ShopifyConditionID)
	} else {
		condition["key"] = "condition"
		condition["type"] = "single_line_text_field"
		condition["namespace"] = "custom"
	}

	var categoryID int64
	if partType != nil {
		categoryID = partType.EbayCategoryID
	}
	category := map[string]interface{}{"value": fmt.Sprintf("%d", categoryID)}
	if p.ShopifyEbayCategoryID != 0 {
		category["id"] = shopify.GID("Metafield", p.ShopifyEbayCategoryID)
	} else {
		category["key"] = "ebay_category_id"
		category["type"] = "number_integer"
		category["namespace"] = "custom"
	}

	return []map[string]interface{}{condition, category}
}

// buildImages lists the local image attachments as remote image inputs,
// ordered by sequence.
func (e *Exporter) buildImages(p *models.Product, attachments []models.ProductImage) []map[string]interface{} {
	images := make([]map[string]interface{}, 0, len(attachments))
	for _, img := range attachments {
		images = append(images, map[string]interface{}{
			"altText": p.Name,
			"src":     fmt.Sprintf("%s/web/image/product.image/%d", e.cfg.BaseURL, img.ID),
		})
	}
	return images
}

// publish links a product to every configured distribution channel.
func (e *Exporter) publish(ctx context.Context, productGID string) error {
	if len(e.cfg.PublicationIDs) == 0 {
		return nil
	}

	publications := make([]map[string]interface{}, 0, len(e.cfg.PublicationIDs))
	for _, id := range e.cfg.PublicationIDs {
		publications = append(publications, map[string]interface{}{
			"publicationId": shopify.GID("Publication", id),
		})
	}

	resp, err := e.client.Execute(ctx, "product", "UpdatePublications", map[string]interface{}{
		"id":    productGID,
		"input": publications,
	})
	if err != nil {
		return err
	}
	_, err = shopify.Validate(resp)
	return err
}

// persistRemoteIDs writes the identifiers the remote API handed back.
func (e *Exporter) persistRemoteIDs(ctx context.Context, p *models.Product, remote *models.RemoteProduct) error {
	productID, err := shopify.ExtractID(remote.ID)
	if err != nil {
		return &shopify.ProtocolError{Messages: []string{err.Error()}}
	}

	fields := map[string]interface{}{
		"shopify_product_id":    productID,
		"shopify_last_exported": time.Now().UTC(),
		"shopify_next_export":   false,
	}

	if variant := remote.PrimaryVariant(); variant != nil {
		if id, err := shopify.ExtractID(variant.ID); err == nil {
			fields["shopify_variant_id"] = id
		}
	}

	for _, mf := range remote.Metafields {
		id, err := shopify.ExtractID(mf.ID)
		if err != nil {
			continue
		}
		switch mf.Key {
		case "condition":
			fields["shopify_condition_id"] = id
		case "ebay_category_id":
			fields["shopify_ebay_category_id"] = id
		}
	}

	return e.store.UpdateProduct(ctx, p.ID, fields)
}

// decodeMutationProduct extracts the product object under the mutation
// result key.
func decodeMutationProduct(data map[string]interface{}, resultKey string) (*models.RemoteProduct, error) {
	result, ok := data[resultKey].(map[string]interface{})
	if !ok {
		return nil, &shopify.ProtocolError{Messages: []string{fmt.Sprintf("response carries no %s result", resultKey)}}
	}
	productData, ok := result["product"]
	if !ok || productData == nil {
		return nil, &shopify.ProtocolError{Messages: []string{fmt.Sprintf("%s result carries no product", resultKey)}}
	}

	var remote models.RemoteProduct
	if err := shopify.Decode(shopify.Flatten(productData), &remote); err != nil {
		return nil, err
	}
	return &remote, nil
}
