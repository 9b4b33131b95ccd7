package mongostore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/credential"
	"github.com/MrEthical07/authcore/credential/storetest"
	"github.com/MrEthical07/authcore/internal/activity"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// newTestDatabase connects to AUTHCORE_TEST_MONGO_URI and returns a
// throwaway database, skipping the test when no server is configured.
func newTestDatabase(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("AUTHCORE_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("AUTHCORE_TEST_MONGO_URI not set")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	db := client.Database("authcore_test_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return db
}

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) credential.Store {
		s := New(newTestDatabase(t))
		if err := s.EnsureIndexes(context.Background()); err != nil {
			t.Fatalf("EnsureIndexes: %v", err)
		}
		return s
	})
}

func TestActivitySinkRoundTrip(t *testing.T) {
	db := newTestDatabase(t)
	sink := NewActivitySink(db, nil)
	ctx := context.Background()
	if err := sink.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes: %v", err)
	}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sink.Emit(ctx, activity.Event{Timestamp: base, Action: activity.ActionRegister, UserID: "u1"})
	sink.Emit(ctx, activity.Event{Timestamp: base.Add(time.Minute), Action: activity.ActionLogin, UserID: "u1", IP: "10.0.0.1"})

	events, err := sink.Recent(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 2 || events[0].Action != activity.ActionLogin || events[0].IP != "10.0.0.1" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestDocumentMapping(t *testing.T) {
	until := time.Date(2026, 3, 1, 12, 15, 0, 0, time.UTC)
	rec := &credential.Record{
		Email:            "alice@example.com",
		Username:         "alice",
		PasswordHash:     "hash",
		Provider:         credential.ProviderLocal,
		ExternalIDs:      map[credential.Provider]string{credential.ProviderGitHub: "gh-1"},
		Role:             credential.RoleModerator,
		FailedLoginCount: 5,
		LockedUntil:      &until,
	}
	doc, err := toDoc(rec)
	if err != nil {
		t.Fatalf("toDoc: %v", err)
	}
	if doc.GitHubID == nil || *doc.GitHubID != "gh-1" || doc.GoogleID != nil {
		t.Fatalf("external ids not mapped: %+v", doc)
	}
	if doc.Permissions == nil || doc.ActiveSessions == nil {
		t.Fatal("nil slices must be stored as empty arrays")
	}
	back := doc.record()
	if back.FailedLoginCount != 5 || back.LockedUntil == nil || !back.LockedUntil.Equal(until) || back.Role != credential.RoleModerator {
		t.Fatalf("round trip lost fields: %+v", back)
	}
	if back.ExternalIDs[credential.ProviderGitHub] != "gh-1" {
		t.Fatalf("external ids lost: %v", back.ExternalIDs)
	}

	if _, err := toDoc(&credential.Record{ID: "not-hex"}); err == nil {
		t.Fatal("expected invalid id error")
	}
	if _, err := toDoc(&credential.Record{ExternalIDs: map[credential.Provider]string{"saml": "x"}}); err == nil {
		t.Fatal("expected unsupported provider error")
	}
}

func TestLegacyDocumentDefaults(t *testing.T) {
	rec := (&credentialDoc{Email: "old@example.com"}).record()
	if rec.Provider != credential.ProviderLocal || rec.Role != credential.RoleUser {
		t.Fatalf("legacy defaults not applied: %+v", rec)
	}
}
