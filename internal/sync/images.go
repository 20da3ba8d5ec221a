package sync

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const imageMaxRetries = 5

// ImageFetcher downloads product images with retry. Image failures never
// abort a pass; the caller logs and moves on.
type ImageFetcher struct {
	http     *http.Client
	logger   *logrus.Entry
	minDelay time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewImageFetcher creates an image fetcher.
func NewImageFetcher(minDelay time.Duration, logger *logrus.Logger) *ImageFetcher {
	return &ImageFetcher{
		http:     &http.Client{Timeout: 10 * time.Second},
		logger:   logger.WithField("component", "image-fetcher"),
		minDelay: minDelay,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
	}
}

// Fetch downloads one image, retrying transient failures with exponential
// backoff.
func (f *ImageFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= imageMaxRetries; attempt++ {
		data, err := f.fetchOnce(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err

		f.logger.WithFields(logrus.Fields{
			"url":     url,
			"attempt": attempt,
			"max":     imageMaxRetries,
		}).WithError(err).Warn("Failed to fetch image")

		if attempt == imageMaxRetries {
			break
		}
		delay := time.Duration(float64(f.minDelay) * math.Pow(2, float64(attempt)))
		if err := f.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("failed to fetch image after %d attempts: %w", imageMaxRetries, lastErr)
}

func (f *ImageFetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
