package models

import (
	"strconv"
	"time"
)

// RemoteProduct is the flattened projection of one Shopify catalog entry,
// decoded from the normalized response. Unknown response fields are ignored.
type RemoteProduct struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	DescriptionHTML string          `json:"descriptionHtml"`
	Vendor          string          `json:"vendor"`
	ProductType     string          `json:"productType"`
	Status          string          `json:"status"`
	CreatedAt       string          `json:"createdAt"`
	UpdatedAt       string          `json:"updatedAt"`
	PublishedAt     string          `json:"publishedAt"`
	TotalInventory  *int            `json:"totalInventory"`
	Variants        []RemoteVariant `json:"variants"`
	Metafields      []Metafield     `json:"metafields"`
	Images          []RemoteImage   `json:"images"`
}

// PrimaryVariant returns the first variant, or nil when the product has none.
func (p *RemoteProduct) PrimaryVariant() *RemoteVariant {
	if len(p.Variants) == 0 {
		return nil
	}
	return &p.Variants[0]
}

// UpdatedAtTime parses the remote modification timestamp.
func (p *RemoteProduct) UpdatedAtTime() (time.Time, error) {
	return time.Parse(time.RFC3339, p.UpdatedAt)
}

// RemoteVariant is the SKU-bearing variant of a remote product. Shopify
// serializes money amounts as strings.
type RemoteVariant struct {
	ID            string              `json:"id"`
	SKU           string              `json:"sku"`
	Price         string              `json:"price"`
	Barcode       string              `json:"barcode"`
	Weight        float64             `json:"weight"`
	InventoryItem RemoteInventoryItem `json:"inventoryItem"`
}

// PriceValue returns the variant price as a float, zero when unset.
func (v *RemoteVariant) PriceValue() float64 {
	return parseAmount(v.Price)
}

// CostValue returns the inventory-item unit cost as a float, zero when unset.
func (v *RemoteVariant) CostValue() float64 {
	return parseAmount(v.InventoryItem.UnitCost.Amount)
}

// RemoteInventoryItem carries the cost sub-object of a variant.
type RemoteInventoryItem struct {
	ID       string     `json:"id"`
	UnitCost RemoteCost `json:"unitCost"`
}

// RemoteCost is a Shopify money value.
type RemoteCost struct {
	Amount string `json:"amount"`
}

// RemoteImage is one image of a remote product.
type RemoteImage struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	AltText string `json:"altText"`
}

// Metafield is a namespaced key/value/type triple attached to a remote record.
// The ID is set once the metafield exists remotely.
type Metafield struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Value     string `json:"value"`
	Type      string `json:"type"`
}

// RemoteLocation is a Shopify inventory location.
type RemoteLocation struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RemoteShop identifies the connected store.
type RemoteShop struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

func parseAmount(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
