// Package workers hosts background loops that run beside the scrape
// schedule. The image worker archives listing photos so leads keep their
// gallery even after the source ad disappears.
package workers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"immojagd/storage"
)

// Uploader is the storage side of the worker; *storage.S3Uploader in
// production, a no-op in tests.
type Uploader interface {
	Upload(ctx context.Context, key string, data io.Reader, contentType string) error
}

// ImageWorker drains the pending photo queue: download, hash, upload.
type ImageWorker struct {
	store      *storage.PostgresStore
	uploader   Uploader
	httpClient *http.Client
	triggerCh  chan struct{}
}

func NewImageWorker(store *storage.PostgresStore, uploader Uploader, client *http.Client) *ImageWorker {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &ImageWorker{
		store:      store,
		uploader:   uploader,
		httpClient: client,
		triggerCh:  make(chan struct{}, 1),
	}
}

// Trigger requests an immediate batch outside the regular interval.
func (w *ImageWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// Run processes batches of batchSize every interval until ctx is done.
func (w *ImageWorker) Run(ctx context.Context, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Image worker stopping")
			return
		case <-w.triggerCh:
			w.processBatch(ctx, batchSize)
		case <-ticker.C:
			w.processBatch(ctx, batchSize)
		}
	}
}

func (w *ImageWorker) processBatch(ctx context.Context, batchSize int) {
	photos, err := w.store.GetPendingPhotos(ctx, batchSize)
	if err != nil {
		log.Printf("Image worker: query error: %v", err)
		return
	}
	if len(photos) == 0 {
		return
	}

	var uploaded, failed int
	for i := range photos {
		photo := &photos[i]

		key, err := w.archive(ctx, photo.URL)
		if err != nil {
			log.Printf("Image worker: failed %s: %v", photo.URL, err)
			w.store.MarkPhotoFailed(ctx, photo.ID)
			failed++
			continue
		}

		if err := w.store.MarkPhotoUploaded(ctx, photo.ID, key); err != nil {
			log.Printf("Image worker: mark uploaded %d: %v", photo.ID, err)
			failed++
			continue
		}
		uploaded++

		// Gentle pacing between image hosts.
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			return
		}
	}

	log.Printf("Image worker: uploaded %d, failed %d", uploaded, failed)
}

// archive downloads one photo, content-addresses it and uploads it.
func (w *ImageWorker) archive(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "image/*,*/*")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 20*1024*1024))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	hash := sha256.Sum256(data)
	digest := hex.EncodeToString(hash[:])
	contentType := resp.Header.Get("Content-Type")
	key := fmt.Sprintf("photos/%s/%s%s", digest[:2], digest, guessExtension(url, contentType))

	if w.uploader != nil {
		if contentType == "" {
			contentType = "image/jpeg"
		}
		if err := w.uploader.Upload(ctx, key, bytes.NewReader(data), contentType); err != nil {
			return "", fmt.Errorf("upload: %w", err)
		}
	}
	return key, nil
}

func guessExtension(url, contentType string) string {
	if ext := strings.ToLower(path.Ext(url)); isImageExt(ext) {
		return ext
	}
	switch contentType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

func isImageExt(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	}
	return false
}

// NoOpUploader drains its input and stores nothing; used when S3 is not
// configured.
type NoOpUploader struct{}

func (NoOpUploader) Upload(_ context.Context, _ string, data io.Reader, _ string) error {
	_, err := io.Copy(io.Discard, data)
	return err
}
