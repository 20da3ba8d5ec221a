package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cbusillo/product-connect/pkg/models"
)

// HasImages reports whether any image is attached to a product. Import never
// re-fetches images once one exists.
func (s *Store) HasImages(ctx context.Context, productID int64) (bool, error) {
	var count int
	err := s.q().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM product_image WHERE product_id = ?", productID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count images for product %d: %w", productID, err)
	}
	return count > 0, nil
}

// AttachImage stores raw image bytes against a product at a sequence index.
func (s *Store) AttachImage(ctx context.Context, productID int64, sequence int, data []byte) error {
	_, err := s.q().ExecContext(ctx,
		"INSERT INTO product_image (product_id, sequence, image) VALUES (?, ?, ?)",
		productID, sequence, data)
	if err != nil {
		return &WriteError{Op: "attach image", Err: err}
	}
	return nil
}

// ImageData returns the raw bytes of one image attachment. Returns nil when
// no attachment exists.
func (s *Store) ImageData(ctx context.Context, id int64) ([]byte, error) {
	var data []byte
	err := s.q().QueryRowContext(ctx,
		"SELECT image FROM product_image WHERE id = ?", id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query image %d: %w", id, err)
	}
	return data, nil
}

// ProductImages lists a product's image attachments ordered by sequence,
// without the image bytes.
func (s *Store) ProductImages(ctx context.Context, productID int64) ([]models.ProductImage, error) {
	rows, err := s.q().QueryContext(ctx,
		"SELECT id, product_id, sequence FROM product_image WHERE product_id = ? ORDER BY sequence, id",
		productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query images for product %d: %w", productID, err)
	}
	defer rows.Close()

	var images []models.ProductImage
	for rows.Next() {
		var img models.ProductImage
		if err := rows.Scan(&img.ID, &img.ProductID, &img.Sequence); err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}
