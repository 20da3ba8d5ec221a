package store

import (
	"context"
	"fmt"
)

// schema is applied by the migrate command. The DSN enables multiStatements.
const schema = `
CREATE TABLE IF NOT EXISTS product (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	sku VARCHAR(32) NOT NULL,
	bin VARCHAR(32) NOT NULL DEFAULT '',
	name VARCHAR(255) NOT NULL DEFAULT '',
	description_sale TEXT,
	list_price DOUBLE NOT NULL DEFAULT 0,
	standard_price DOUBLE NOT NULL DEFAULT 0,
	mpn VARCHAR(64) NOT NULL DEFAULT '',
	barcode VARCHAR(64) NOT NULL DEFAULT '',
	weight DOUBLE NOT NULL DEFAULT 0,
	qty_available DOUBLE NOT NULL DEFAULT 0,
	manufacturer_id BIGINT NULL,
	part_type_id BIGINT NULL,
	condition_code VARCHAR(32) NOT NULL DEFAULT '',
	is_published TINYINT(1) NOT NULL DEFAULT 0,
	sale_ok TINYINT(1) NOT NULL DEFAULT 1,
	shopify_product_id BIGINT NULL,
	shopify_variant_id BIGINT NULL,
	shopify_condition_id BIGINT NULL,
	shopify_ebay_category_id BIGINT NULL,
	shopify_created_at DATETIME NULL,
	shopify_last_exported DATETIME NULL,
	shopify_next_export TINYINT(1) NOT NULL DEFAULT 0,
	write_date DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	template_write_date DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE KEY uq_product_sku (sku),
	KEY idx_product_shopify_id (shopify_product_id)
);

CREATE TABLE IF NOT EXISTS manufacturer (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	UNIQUE KEY uq_manufacturer_name (name)
);

CREATE TABLE IF NOT EXISTS part_type (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	ebay_category_id BIGINT NOT NULL,
	UNIQUE KEY uq_part_type (name, ebay_category_id)
);

CREATE TABLE IF NOT EXISTS product_condition (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	code VARCHAR(32) NOT NULL,
	name VARCHAR(255) NOT NULL DEFAULT '',
	UNIQUE KEY uq_condition_code (code)
);

CREATE TABLE IF NOT EXISTS product_image (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	product_id BIGINT NOT NULL,
	sequence INT NOT NULL DEFAULT 0,
	image LONGBLOB NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	KEY idx_image_product (product_id)
);

CREATE TABLE IF NOT EXISTS product_stock (
	product_id BIGINT NOT NULL,
	location VARCHAR(64) NOT NULL,
	quantity DOUBLE NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
	PRIMARY KEY (product_id, location)
);

CREATE TABLE IF NOT EXISTS config_param (
	param_key VARCHAR(128) PRIMARY KEY,
	param_value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS channel_message (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	channel VARCHAR(64) NOT NULL,
	subject VARCHAR(255) NOT NULL,
	body TEXT NOT NULL,
	product_id BIGINT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	KEY idx_message_channel (channel)
);

CREATE TABLE IF NOT EXISTS notification_history (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	subject VARCHAR(255) NOT NULL,
	channel VARCHAR(64) NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	KEY idx_history_subject (subject, channel)
);
`

// Migrate creates the schema when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	s.logger.Info("Schema migration completed")
	return nil
}
