package blob

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	gcs "cloud.google.com/go/storage"
	fbstorage "firebase.google.com/go/v4/storage"
	"github.com/google/uuid"
)

const (
	downloadTokensKey   = "firebaseStorageDownloadTokens"
	firebaseDownloadURL = "https://firebasestorage.googleapis.com"
)

// FirebaseStore keeps images in a Firebase Storage bucket and hands out
// token-bearing download URLs, the same shape mobile SDKs return.
type FirebaseStore struct {
	bucket  *gcs.BucketHandle
	name    string
	baseURL string
}

// NewFirebaseStore opens bucketName through the Firebase storage client.
// FIREBASE_STORAGE_EMULATOR_HOST redirects download URLs to the emulator.
func NewFirebaseStore(client *fbstorage.Client, bucketName string) (*FirebaseStore, error) {
	if bucketName == "" {
		return nil, errors.New("blob: bucket name is required")
	}
	bucket, err := client.Bucket(bucketName)
	if err != nil {
		return nil, fmt.Errorf("blob: open bucket: %w", err)
	}
	base := firebaseDownloadURL
	if host := os.Getenv("FIREBASE_STORAGE_EMULATOR_HOST"); host != "" {
		base = "http://" + host
	}
	return &FirebaseStore{bucket: bucket, name: bucketName, baseURL: base}, nil
}

func (s *FirebaseStore) Upload(ctx context.Context, id string, data []byte, contentType string) (err error) {
	defer func() { auditUpload(ctx, id, err) }()

	w := s.bucket.Object(id).NewWriter(ctx)
	w.ContentType = contentTypeOf(data, contentType)
	w.Metadata = map[string]string{downloadTokensKey: uuid.NewString()}
	if _, err = w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// DownloadURL returns the object's public download URL, minting a token when
// the object was written without one.
func (s *FirebaseStore) DownloadURL(ctx context.Context, id string) (string, error) {
	obj := s.bucket.Object(id)
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return "", ErrNotFound
		}
		return "", err
	}

	token := firstToken(attrs.Metadata[downloadTokensKey])
	if token == "" {
		token = uuid.NewString()
		meta := attrs.Metadata
		if meta == nil {
			meta = map[string]string{}
		}
		meta[downloadTokensKey] = token
		if _, err := obj.Update(ctx, gcs.ObjectAttrsToUpdate{Metadata: meta}); err != nil {
			return "", fmt.Errorf("blob: set download token: %w", err)
		}
	}
	return downloadURL(s.baseURL, s.name, id, token), nil
}

func downloadURL(base, bucket, id, token string) string {
	return fmt.Sprintf("%s/v0/b/%s/o/%s?alt=media&token=%s",
		base, bucket, url.PathEscape(id), url.QueryEscape(token))
}

func firstToken(v string) string {
	tok, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(tok)
}

var _ Store = (*FirebaseStore)(nil)
