package threads

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func mustHash(t *testing.T, value string) Hash {
	t.Helper()
	hash, err := NewHash(value)
	if err != nil {
		t.Fatalf("unexpected hash error: %v", err)
	}
	return hash
}

func hashOf(n int) string {
	return fmt.Sprintf("0x%040x", n)
}

func msPtr(value int64) *int64 {
	v := value
	return &v
}

func strPtr(value string) *string {
	v := value
	return &v
}

func scorePtr(value float64) *float64 {
	v := value
	return &v
}

func rootPost(hash string, fid int64, tsMS int64, body string) Post {
	return Post{
		Hash:        hash,
		AuthorFID:   fid,
		RootHash:    hash,
		TimestampMS: msPtr(tsMS),
		BodyText:    body,
	}
}

func replyPost(hash, parent, root string, fid int64, tsMS int64, body string) Post {
	return Post{
		Hash:        hash,
		AuthorFID:   fid,
		ParentHash:  strPtr(parent),
		RootHash:    root,
		TimestampMS: msPtr(tsMS),
		BodyText:    body,
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:skein_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Post{}, &AuthorState{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, opts Options) (*Service, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	store, err := NewSQLStore(db)
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	clock := func() time.Time { return time.UnixMilli(1700000000000).UTC() }
	service, err := NewService(ServiceConfig{Store: store, Options: opts, Clock: clock})
	if err != nil {
		t.Fatalf("failed to construct threads service: %v", err)
	}
	return service, db
}

func seedPosts(t *testing.T, db *gorm.DB, posts ...Post) {
	t.Helper()
	for i := range posts {
		if err := db.Create(&posts[i]).Error; err != nil {
			t.Fatalf("failed to seed post %s: %v", posts[i].Hash, err)
		}
	}
}
