package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbusillo/product-connect/pkg/config"
	"github.com/cbusillo/product-connect/pkg/models"
)

func testExporter() *Exporter {
	return &Exporter{
		cfg:         &config.SyncConfig{BaseURL: "https://erp.example.com"},
		locationGID: "gid://shopify/Location/7",
	}
}

func exportedVariant(t *testing.T, input map[string]interface{}) map[string]interface{} {
	t.Helper()
	variants, ok := input["variants"].([]interface{})
	require.True(t, ok)
	require.Len(t, variants, 1)
	variant, ok := variants[0].(map[string]interface{})
	require.True(t, ok)
	return variant
}

func TestBuildInput_CreateCarriesInitialInventory(t *testing.T) {
	e := testExporter()
	p := &models.Product{
		ID:           1,
		SKU:          "123456",
		Bin:          "A01",
		Name:         "Lower Unit",
		ListPrice:    499.99,
		QtyAvailable: 2,
	}

	input := e.buildInput(p, &relatedFields{})
	variant := exportedVariant(t, input)

	assert.Equal(t, "123456 - A01", variant["sku"])
	assert.Equal(t, "ACTIVE", input["status"])

	quantities, ok := variant["inventoryQuantities"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, quantities, 1)
	assert.Equal(t, 2, quantities[0]["availableQuantity"])
	assert.Equal(t, "gid://shopify/Location/7", quantities[0]["locationId"])
}

func TestBuildInput_UpdateOmitsInitialInventory(t *testing.T) {
	e := testExporter()
	p := &models.Product{
		ID:               1,
		SKU:              "123456",
		Bin:              "A01",
		ShopifyProductID: 9001,
		ShopifyVariantID: 9002,
		QtyAvailable:     2,
	}

	input := e.buildInput(p, &relatedFields{})
	variant := exportedVariant(t, input)

	assert.NotContains(t, variant, "inventoryQuantities")
	assert.NotContains(t, input, "images")
	assert.Equal(t, "gid://shopify/ProductVariant/9002", variant["id"])
}

func TestBuildInput_OutOfStockIsDraft(t *testing.T) {
	e := testExporter()
	p := &models.Product{SKU: "123456", QtyAvailable: 0, ShopifyProductID: 9001}

	input := e.buildInput(p, &relatedFields{})
	assert.Equal(t, "DRAFT", input["status"])
}

func TestBuildInput_VendorAndCategory(t *testing.T) {
	e := testExporter()
	p := &models.Product{SKU: "123456", ShopifyProductID: 9001}
	fields := &relatedFields{
		vendor:   "Yamaha",
		partType: &models.PartType{ID: 3, Name: "Lower Units", EbayCategoryID: 26443},
	}

	input := e.buildInput(p, fields)
	assert.Equal(t, "Yamaha", input["vendor"])
	assert.Equal(t, "Lower Units", input["productType"])
}

func TestBuildMetafields_NewRecordCarriesFullTriples(t *testing.T) {
	e := testExporter()
	p := &models.Product{ConditionCode: "used"}
	partType := &models.PartType{EbayCategoryID: 26443}

	metafields := e.buildMetafields(p, partType)
	require.Len(t, metafields, 2)

	condition := metafields[0]
	assert.Equal(t, "used", condition["value"])
	assert.Equal(t, "condition", condition["key"])
	assert.Equal(t, "custom", condition["namespace"])
	assert.Equal(t, "single_line_text_field", condition["type"])

	category := metafields[1]
	assert.Equal(t, "26443", category["value"])
	assert.Equal(t, "ebay_category_id", category["key"])
	assert.Equal(t, "number_integer", category["type"])
}

func TestBuildMetafields_KnownIDsUseUpdateSemantics(t *testing.T) {
	e := testExporter()
	p := &models.Product{
		ConditionCode:         "new",
		ShopifyConditionID:    501,
		ShopifyEbayCategoryID: 502,
	}

	metafields := e.buildMetafields(p, nil)
	require.Len(t, metafields, 2)

	assert.Equal(t, "gid://shopify/Metafield/501", metafields[0]["id"])
	assert.NotContains(t, metafields[0], "namespace")
	assert.Equal(t, "gid://shopify/Metafield/502", metafields[1]["id"])
}

func TestBuildImages(t *testing.T) {
	e := testExporter()
	p := &models.Product{ID: 1, Name: "Lower Unit"}
	attachments := []models.ProductImage{
		{ID: 11, ProductID: 1, Sequence: 0},
		{ID: 12, ProductID: 1, Sequence: 1},
	}

	images := e.buildImages(p, attachments)
	require.Len(t, images, 2)
	assert.Equal(t, "https://erp.example.com/web/image/product.image/11", images[0]["src"])
	assert.Equal(t, "Lower Unit", images[0]["altText"])
}

func TestDecodeMutationProduct(t *testing.T) {
	data := map[string]interface{}{
		"productCreate": map[string]interface{}{
			"product": map[string]interface{}{
				"id":    "gid://shopify/Product/123",
				"title": "Lower Unit",
				"variants": map[string]interface{}{
					"edges": []interface{}{
						map[string]interface{}{
							"node": map[string]interface{}{"id": "gid://shopify/ProductVariant/456"},
						},
					},
				},
			},
			"userErrors": []interface{}{},
		},
	}

	remote, err := decodeMutationProduct(data, "productCreate")
	require.NoError(t, err)
	assert.Equal(t, "gid://shopify/Product/123", remote.ID)
	require.NotNil(t, remote.PrimaryVariant())
	assert.Equal(t, "gid://shopify/ProductVariant/456", remote.PrimaryVariant().ID)
}

func TestDecodeMutationProduct_MissingResult(t *testing.T) {
	_, err := decodeMutationProduct(map[string]interface{}{}, "productUpdate")
	assert.Error(t, err)

	_, err = decodeMutationProduct(map[string]interface{}{
		"productUpdate": map[string]interface{}{"product": nil},
	}, "productUpdate")
	assert.Error(t, err)
}
