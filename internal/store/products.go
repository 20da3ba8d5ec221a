package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cbusillo/product-connect/pkg/models"
)

const productColumns = `id, sku, bin, name, COALESCE(description_sale, ''), list_price, standard_price,
	mpn, barcode, weight, qty_available, COALESCE(manufacturer_id, 0), COALESCE(part_type_id, 0),
	condition_code, is_published, sale_ok, COALESCE(shopify_product_id, 0), COALESCE(shopify_variant_id, 0),
	COALESCE(shopify_condition_id, 0), COALESCE(shopify_ebay_category_id, 0), shopify_created_at,
	shopify_last_exported, shopify_next_export, write_date, template_write_date, created_at`

// writableColumns whitelists the field/value map keys accepted by product
// writes.
var writableColumns = map[string]bool{
	"sku": true, "bin": true, "name": true, "description_sale": true,
	"list_price": true, "standard_price": true, "mpn": true, "barcode": true,
	"weight": true, "qty_available": true, "manufacturer_id": true,
	"part_type_id": true, "condition_code": true, "is_published": true,
	"sale_ok": true, "shopify_product_id": true, "shopify_variant_id": true,
	"shopify_condition_id": true, "shopify_ebay_category_id": true,
	"shopify_created_at": true, "shopify_last_exported": true,
	"shopify_next_export": true,
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var p models.Product
	var shopifyCreated, lastExported sql.NullTime

	err := row.Scan(
		&p.ID, &p.SKU, &p.Bin, &p.Name, &p.DescriptionSale, &p.ListPrice, &p.StandardPrice,
		&p.MPN, &p.Barcode, &p.Weight, &p.QtyAvailable, &p.ManufacturerID, &p.PartTypeID,
		&p.ConditionCode, &p.IsPublished, &p.SaleOK, &p.ShopifyProductID, &p.ShopifyVariantID,
		&p.ShopifyConditionID, &p.ShopifyEbayCategoryID, &shopifyCreated,
		&lastExported, &p.ShopifyNextExport, &p.WriteDate, &p.TemplateWriteDate, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if shopifyCreated.Valid {
		p.ShopifyCreatedAt = &shopifyCreated.Time
	}
	if lastExported.Valid {
		p.ShopifyLastExported = &lastExported.Time
	}
	return &p, nil
}

// FindProductByShopifyID looks up a product by its remote identifier. Returns
// nil when no match exists.
func (s *Store) FindProductByShopifyID(ctx context.Context, shopifyID int64) (*models.Product, error) {
	query := fmt.Sprintf("SELECT %s FROM product WHERE shopify_product_id = ? LIMIT 1", productColumns)
	p, err := scanProduct(s.q().QueryRowContext(ctx, query, shopifyID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query product by shopify id %d: %w", shopifyID, err)
	}
	return p, nil
}

// FindProductBySKU looks up a product by SKU. Returns nil when no match
// exists.
func (s *Store) FindProductBySKU(ctx context.Context, sku string) (*models.Product, error) {
	query := fmt.Sprintf("SELECT %s FROM product WHERE sku = ? LIMIT 1", productColumns)
	p, err := scanProduct(s.q().QueryRowContext(ctx, query, sku))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query product by sku %s: %w", sku, err)
	}
	return p, nil
}

// CreateProduct inserts a product from a field/value map and returns the new
// id. The write date columns are stamped with the current UTC time.
func (s *Store) CreateProduct(ctx context.Context, fields map[string]interface{}) (int64, error) {
	cols, args, err := splitFields(fields)
	if err != nil {
		return 0, &WriteError{Op: "create product", Err: err}
	}

	now := time.Now().UTC()
	cols = append(cols, "write_date", "template_write_date", "created_at")
	args = append(args, now, now, now)

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf("INSERT INTO product (%s) VALUES (%s)", strings.Join(cols, ", "), placeholders)

	result, err := s.q().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, &WriteError{Op: "create product", Err: err}
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, &WriteError{Op: "create product", Err: err}
	}
	return id, nil
}

// UpdateProduct writes a field/value map onto an existing product, bumping
// its write date.
func (s *Store) UpdateProduct(ctx context.Context, id int64, fields map[string]interface{}) error {
	cols, args, err := splitFields(fields)
	if err != nil {
		return &WriteError{Op: "update product", Err: err}
	}

	sets := make([]string, 0, len(cols)+1)
	for _, col := range cols {
		sets = append(sets, col+" = ?")
	}
	sets = append(sets, "write_date = ?")
	args = append(args, writeStamp(fields), id)

	query := fmt.Sprintf("UPDATE product SET %s WHERE id = ?", strings.Join(sets, ", "))
	if _, err := s.q().ExecContext(ctx, query, args...); err != nil {
		return &WriteError{Op: "update product", Err: err}
	}
	return nil
}

// ProductsToExport selects locally published, price-bearing products that
// either have never been exported or changed since their last export.
func (s *Store) ProductsToExport(ctx context.Context) ([]*models.Product, error) {
	query := fmt.Sprintf(`SELECT %s FROM product
		WHERE is_published = 1 AND sale_ok = 1 AND list_price > 0
		AND (
			shopify_product_id IS NULL
			OR shopify_next_export = 1
			OR write_date > COALESCE(shopify_last_exported, '1970-01-01')
			OR template_write_date > COALESCE(shopify_last_exported, '1970-01-01')
		)
		ORDER BY id`, productColumns)

	rows, err := s.q().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query products to export: %w", err)
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// UpdateQuantity moves stock for a product into the named location via the
// quantity side channel, bypassing the product write path.
func (s *Store) UpdateQuantity(ctx context.Context, productID int64, location string, quantity float64) error {
	query := `INSERT INTO product_stock (product_id, location, quantity) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE quantity = VALUES(quantity)`
	if _, err := s.q().ExecContext(ctx, query, productID, location, quantity); err != nil {
		return &WriteError{Op: "update quantity", Err: err}
	}

	if _, err := s.q().ExecContext(ctx, "UPDATE product SET qty_available = ? WHERE id = ?", quantity, productID); err != nil {
		return &WriteError{Op: "update quantity", Err: err}
	}
	return nil
}

// FindOrCreateManufacturer matches a manufacturer by exact name, creating it
// when absent.
func (s *Store) FindOrCreateManufacturer(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.q().QueryRowContext(ctx, "SELECT id FROM manufacturer WHERE name = ? LIMIT 1", name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to query manufacturer %q: %w", name, err)
	}

	result, err := s.q().ExecContext(ctx, "INSERT INTO manufacturer (name) VALUES (?)", name)
	if err != nil {
		return 0, &WriteError{Op: "create manufacturer", Err: err}
	}
	return result.LastInsertId()
}

// FindOrCreatePartType matches a category by name and external category id,
// creating it when absent. An invalid or non-positive category id yields no
// category, without error.
func (s *Store) FindOrCreatePartType(ctx context.Context, name, ebayCategoryID string) (int64, error) {
	categoryID, err := strconv.ParseInt(ebayCategoryID, 10, 64)
	if err != nil || categoryID < 1 || name == "" {
		return 0, nil
	}

	var id int64
	err = s.q().QueryRowContext(ctx,
		"SELECT id FROM part_type WHERE name = ? AND ebay_category_id = ? LIMIT 1",
		name, categoryID,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to query part type %q: %w", name, err)
	}

	result, err := s.q().ExecContext(ctx,
		"INSERT INTO part_type (name, ebay_category_id) VALUES (?, ?)", name, categoryID)
	if err != nil {
		return 0, &WriteError{Op: "create part type", Err: err}
	}
	return result.LastInsertId()
}

// ManufacturerName returns a manufacturer's name, or "" when absent.
func (s *Store) ManufacturerName(ctx context.Context, id int64) (string, error) {
	var name string
	err := s.q().QueryRowContext(ctx, "SELECT name FROM manufacturer WHERE id = ?", id).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query manufacturer %d: %w", id, err)
	}
	return name, nil
}

// PartTypeByID returns a category record, or nil when absent.
func (s *Store) PartTypeByID(ctx context.Context, id int64) (*models.PartType, error) {
	pt := &models.PartType{}
	err := s.q().QueryRowContext(ctx,
		"SELECT id, name, ebay_category_id FROM part_type WHERE id = ?", id,
	).Scan(&pt.ID, &pt.Name, &pt.EbayCategoryID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query part type %d: %w", id, err)
	}
	return pt, nil
}

// ConditionExists reports whether a condition code is known locally.
func (s *Store) ConditionExists(ctx context.Context, code string) (bool, error) {
	var id int64
	err := s.q().QueryRowContext(ctx, "SELECT id FROM product_condition WHERE code = ? LIMIT 1", code).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query condition %q: %w", code, err)
	}
	return true, nil
}

// writeStamp chooses the write_date for an update. An update that records an
// export reuses the export timestamp, so the two columns land on the same
// DATETIME second and the export selector does not re-pick the row.
func writeStamp(fields map[string]interface{}) time.Time {
	if exported, ok := fields["shopify_last_exported"].(time.Time); ok {
		return exported
	}
	return time.Now().UTC()
}

// splitFields turns a field/value map into ordered column and argument
// slices, rejecting unknown columns.
func splitFields(fields map[string]interface{}) ([]string, []interface{}, error) {
	if len(fields) == 0 {
		return nil, nil, fmt.Errorf("no fields to write")
	}

	cols := make([]string, 0, len(fields))
	for col := range fields {
		if !writableColumns[col] {
			return nil, nil, fmt.Errorf("unknown product column %q", col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	args := make([]interface{}, 0, len(cols))
	for _, col := range cols {
		args = append(args, fields[col])
	}
	return cols, args, nil
}
