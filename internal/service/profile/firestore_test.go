package profile

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/janisto/chatmate/internal/testutil"
)

func setupFirestoreTest(t *testing.T) (*FirestoreStore, *firestore.Client) {
	t.Helper()

	testutil.SkipIfFirestoreUnavailable(t)
	testutil.ClearFirestore(t)

	client, err := firestore.NewClient(context.Background(), testutil.ProjectID)
	if err != nil {
		t.Fatalf("failed to create Firestore client: %v", err)
	}
	t.Cleanup(func() {
		testutil.ClearFirestore(t)
		_ = client.Close()
	})
	return NewFirestoreStore(client), client
}

func TestFirestorePutUsesMobileFieldNames(t *testing.T) {
	store, client := setupFirestoreTest(t)
	ctx := context.Background()

	p := New("u1", "alice", "alice@example.com", strPtr("https://img"), nil, "")
	if err := store.Put(ctx, "u1", p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap, err := client.Collection(UsersCollection).Doc("u1").Get(ctx)
	if err != nil {
		t.Fatalf("failed to read raw document: %v", err)
	}
	data := snap.Data()
	for _, field := range []string{"userId", "username", "userEmail", "userProfileImage", "userBio", "userBioLink", "addedAt"} {
		if _, ok := data[field]; !ok {
			t.Errorf("expected field %q in document", field)
		}
	}
	if data["userBio"] != DefaultBio {
		t.Errorf("expected default bio, got %v", data["userBio"])
	}
}

func TestFirestoreGet(t *testing.T) {
	store, _ := setupFirestoreTest(t)
	ctx := context.Background()

	in := New("u2", "bob", "bob@example.com", nil, strPtr("https://bob.example"), "hello")
	if err := store.Put(ctx, "u2", in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := store.Get(ctx, "u2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "u2" || got.Username != "bob" || got.Bio != "hello" || got.AddedAt != in.AddedAt {
		t.Fatalf("unexpected profile: %+v", got)
	}
	if got.ImageURL != nil {
		t.Fatalf("expected nil image, got %v", *got.ImageURL)
	}
}

func TestFirestoreGetNotFound(t *testing.T) {
	store, _ := setupFirestoreTest(t)
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFirestoreScanAllAndUsernameTaken(t *testing.T) {
	store, _ := setupFirestoreTest(t)
	ctx := context.Background()
	_ = store.Put(ctx, "u1", New("u1", "alice", "a@example.com", nil, nil, ""))
	_ = store.Put(ctx, "u2", New("u2", "bob", "b@example.com", nil, nil, ""))

	all, err := store.ScanAll(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(all))
	}

	taken, err := store.UsernameTaken(ctx, "bob")
	if err != nil || !taken {
		t.Fatalf("expected bob taken, got %v (err %v)", taken, err)
	}
	taken, err = store.UsernameTaken(ctx, "carol")
	if err != nil || taken {
		t.Fatalf("expected carol free, got %v (err %v)", taken, err)
	}
}

func TestFirestoreGetCancelledContext(t *testing.T) {
	store, _ := setupFirestoreTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Get(ctx, "u1")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected a non-NotFound error, got %v", err)
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrNotFound, "not_found"},
		{context.Canceled, "canceled"},
		{status.Error(codes.DeadlineExceeded, "slow"), "deadline_exceeded"},
		{status.Error(codes.Unavailable, "down"), "unavailable"},
		{errors.New("boom"), "internal_error"},
	}
	for _, tt := range tests {
		if got := categorizeError(tt.err); got != tt.want {
			t.Errorf("categorizeError(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
