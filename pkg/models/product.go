package models

import "time"

// Product is the local catalog record. The sync engine reads and writes a
// subset of these fields; everything else belongs to the wider records store.
type Product struct {
	ID                    int64      `json:"id"`
	SKU                   string     `json:"sku"`
	Bin                   string     `json:"bin"`
	Name                  string     `json:"name"`
	DescriptionSale       string     `json:"description_sale"`
	ListPrice             float64    `json:"list_price"`
	StandardPrice         float64    `json:"standard_price"`
	MPN                   string     `json:"mpn"`
	Barcode               string     `json:"barcode"`
	Weight                float64    `json:"weight"`
	QtyAvailable          float64    `json:"qty_available"`
	ManufacturerID        int64      `json:"manufacturer_id"`
	PartTypeID            int64      `json:"part_type_id"`
	ConditionCode         string     `json:"condition_code"`
	IsPublished           bool       `json:"is_published"`
	SaleOK                bool       `json:"sale_ok"`
	ShopifyProductID      int64      `json:"shopify_product_id"`
	ShopifyVariantID      int64      `json:"shopify_variant_id"`
	ShopifyConditionID    int64      `json:"shopify_condition_id"`
	ShopifyEbayCategoryID int64      `json:"shopify_ebay_category_id"`
	ShopifyCreatedAt      *time.Time `json:"shopify_created_at,omitempty"`
	ShopifyLastExported   *time.Time `json:"shopify_last_exported,omitempty"`
	ShopifyNextExport     bool       `json:"shopify_next_export"`
	WriteDate             time.Time  `json:"write_date"`
	TemplateWriteDate     time.Time  `json:"template_write_date"`
	CreatedAt             time.Time  `json:"created_at"`
}

// Manufacturer is a vendor/brand record, matched by exact name on import.
type Manufacturer struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// PartType is a product category carrying the external (eBay) category id.
type PartType struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	EbayCategoryID int64  `json:"ebay_category_id"`
}

// Condition is a product condition code (used, new, refurbished, ...).
type Condition struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// ProductImage is an image attachment on a local product, ordered by Sequence.
type ProductImage struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Sequence  int    `json:"sequence"`
	Data      []byte `json:"-"`
}
