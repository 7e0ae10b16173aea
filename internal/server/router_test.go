package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/skeinsocial/skein/backend/internal/ingest"
	"github.com/skeinsocial/skein/backend/internal/moderation"
	"github.com/skeinsocial/skein/backend/internal/threads"
	"gorm.io/gorm"
)

func hashOf(n int) string {
	return fmt.Sprintf("0x%040x", n)
}

func newTestHandler(t *testing.T) (http.Handler, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:skein_server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&threads.Post{}, &threads.AuthorState{}, &moderation.ActionRecord{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	store, err := threads.NewSQLStore(db)
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	engine, err := threads.NewService(threads.ServiceConfig{Store: store, Options: threads.Options{PageSize: 2}})
	if err != nil {
		t.Fatalf("failed to construct thread engine: %v", err)
	}
	moderationService, err := moderation.NewService(moderation.ServiceConfig{
		Database:   db,
		Store:      store,
		Engine:     engine,
		IDProvider: moderation.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to construct moderation service: %v", err)
	}
	ingestService, err := ingest.NewService(ingest.ServiceConfig{Store: store, Engine: engine})
	if err != nil {
		t.Fatalf("failed to construct ingest service: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Threads:    engine,
		Moderation: moderationService,
		Ingest:     ingestService,
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}
	return handler, db
}

func performRequest(handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		encoded, _ := json.Marshal(body)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func seedThread(t *testing.T, db *gorm.DB, rootHash string, replyCount int) {
	t.Helper()
	ts := int64(0)
	root := threads.Post{Hash: rootHash, AuthorFID: 100, RootHash: rootHash, TimestampMS: &ts, BodyText: "root"}
	if err := db.Create(&root).Error; err != nil {
		t.Fatalf("failed to seed root: %v", err)
	}
	for i := 0; i < replyCount; i++ {
		replyTS := int64(1000 * (i + 1))
		parent := rootHash
		reply := threads.Post{
			Hash:        hashOf(100 + i),
			AuthorFID:   int64(200 + i),
			ParentHash:  &parent,
			RootHash:    rootHash,
			TimestampMS: &replyTS,
			BodyText:    fmt.Sprintf("reply %d", i),
		}
		if err := db.Create(&reply).Error; err != nil {
			t.Fatalf("failed to seed reply: %v", err)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	handler, _ := newTestHandler(t)
	recorder := performRequest(handler, http.MethodGet, "/healthz", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", recorder.Code)
	}
}

func TestThreadPageEndpoint(t *testing.T) {
	handler, db := newTestHandler(t)
	seedThread(t, db, hashOf(1), 5)

	recorder := performRequest(handler, http.MethodGet, "/v1/threads/"+hashOf(1)+"?page=2", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}

	var payload pagePayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.ReplyCount != 5 || payload.Page != 2 || payload.TotalPages != 3 {
		t.Fatalf("unexpected page shape: %+v", payload)
	}
	if len(payload.Replies) != 2 {
		t.Fatalf("page 2 with size 2 holds 2 replies, got %d", len(payload.Replies))
	}
	if payload.Root.Number != 1 {
		t.Fatalf("root must be numbered 1, got %d", payload.Root.Number)
	}
	if payload.Replies[0].Number != 4 {
		t.Fatalf("page 2 starts at post 4, got %d", payload.Replies[0].Number)
	}
}

func TestThreadPageEndpointErrors(t *testing.T) {
	handler, db := newTestHandler(t)
	seedThread(t, db, hashOf(1), 1)

	cases := []struct {
		name string
		path string
		want int
	}{
		{name: "invalid-hash", path: "/v1/threads/not-a-hash", want: http.StatusBadRequest},
		{name: "missing-thread", path: "/v1/threads/" + hashOf(77), want: http.StatusNotFound},
		{name: "invalid-page", path: "/v1/threads/" + hashOf(1) + "?page=abc", want: http.StatusBadRequest},
		{name: "negative-page", path: "/v1/threads/" + hashOf(1) + "?page=-2", want: http.StatusBadRequest},
		{name: "malformed-focus-degrades", path: "/v1/threads/" + hashOf(1) + "?focus=zzz", want: http.StatusOK},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			recorder := performRequest(handler, http.MethodGet, tt.path, nil)
			if recorder.Code != tt.want {
				t.Fatalf("want %d got %d: %s", tt.want, recorder.Code, recorder.Body.String())
			}
		})
	}
}

func TestIngestEndpoint(t *testing.T) {
	handler, _ := newTestHandler(t)

	body := map[string]interface{}{
		"casts": []map[string]interface{}{
			{
				"hash":         hashOf(1),
				"author_fid":   100,
				"root_hash":    hashOf(1),
				"timestamp_ms": 0,
				"body_text":    "root",
			},
			{
				"hash":         hashOf(2),
				"author_fid":   200,
				"parent_hash":  hashOf(1),
				"root_hash":    hashOf(1),
				"timestamp_ms": 1000,
				"body_text":    "reply",
			},
		},
	}
	recorder := performRequest(handler, http.MethodPost, "/v1/casts", body)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = performRequest(handler, http.MethodGet, "/v1/threads/"+hashOf(1), nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("ingested thread should be readable, got %d", recorder.Code)
	}
	var payload pagePayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.ReplyCount != 1 {
		t.Fatalf("expected 1 reply after ingest, got %d", payload.ReplyCount)
	}
}

func TestIngestEndpointRejectsBadInput(t *testing.T) {
	handler, _ := newTestHandler(t)

	recorder := performRequest(handler, http.MethodPost, "/v1/casts", map[string]interface{}{"casts": []map[string]interface{}{}})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("empty batch should be rejected, got %d", recorder.Code)
	}

	recorder = performRequest(handler, http.MethodPost, "/v1/casts", map[string]interface{}{
		"casts": []map[string]interface{}{{"hash": "nope", "root_hash": hashOf(1)}},
	})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("invalid hash should be rejected, got %d", recorder.Code)
	}
}

func TestDeleteCastEndpoint(t *testing.T) {
	handler, db := newTestHandler(t)
	seedThread(t, db, hashOf(1), 2)

	body := map[string]interface{}{"root_hash": hashOf(1), "actor_fid": 900}
	recorder := performRequest(handler, http.MethodDelete, "/v1/casts/"+hashOf(100), body)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}

	var response struct {
		Deleted []string `json:"deleted"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response.Deleted) != 1 || response.Deleted[0] != hashOf(100) {
		t.Fatalf("unexpected deleted set: %v", response.Deleted)
	}

	// The target is gone from subsequent page reads.
	recorder = performRequest(handler, http.MethodGet, "/v1/threads/"+hashOf(1), nil)
	var payload pagePayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.ReplyCount != 1 {
		t.Fatalf("expected 1 reply after delete, got %d", payload.ReplyCount)
	}
}

func TestDeleteCastEndpointUnknownTarget(t *testing.T) {
	handler, db := newTestHandler(t)
	seedThread(t, db, hashOf(1), 1)

	body := map[string]interface{}{"root_hash": hashOf(1), "actor_fid": 900}
	recorder := performRequest(handler, http.MethodDelete, "/v1/casts/"+hashOf(55), body)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("unknown targets should 404, got %d", recorder.Code)
	}
}

func TestHideAndUnhideEndpoints(t *testing.T) {
	handler, db := newTestHandler(t)
	seedThread(t, db, hashOf(1), 1)

	body := map[string]interface{}{"root_hash": hashOf(1), "actor_fid": 900, "reason": "spam"}
	recorder := performRequest(handler, http.MethodPost, "/v1/moderation/casts/"+hashOf(100)+"/hide", body)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected hide status %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = performRequest(handler, http.MethodGet, "/v1/threads/"+hashOf(1), nil)
	var payload pagePayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.ReplyCount != 0 {
		t.Fatalf("hidden reply should vanish, got count %d", payload.ReplyCount)
	}

	recorder = performRequest(handler, http.MethodPost, "/v1/moderation/casts/"+hashOf(100)+"/unhide", body)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected unhide status %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestHideAuthorEndpoint(t *testing.T) {
	handler, db := newTestHandler(t)
	seedThread(t, db, hashOf(1), 1)

	body := map[string]interface{}{"actor_fid": 900, "reason": "abuse"}
	recorder := performRequest(handler, http.MethodPost, "/v1/moderation/authors/200/hide", body)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = performRequest(handler, http.MethodPost, "/v1/moderation/authors/zero/hide", body)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("non-numeric fid should be rejected, got %d", recorder.Code)
	}
}

func TestRecomputeStatsEndpoint(t *testing.T) {
	handler, db := newTestHandler(t)
	seedThread(t, db, hashOf(1), 3)

	body := map[string]interface{}{"root_hashes": []string{hashOf(1)}}
	recorder := performRequest(handler, http.MethodPost, "/v1/internal/stats/recompute", body)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}

	var stored threads.Post
	if err := db.Where("hash = ?", hashOf(1)).Take(&stored).Error; err != nil {
		t.Fatalf("failed to load root: %v", err)
	}
	if stored.ReplyCount != 3 {
		t.Fatalf("recompute should persist the count, got %d", stored.ReplyCount)
	}

	recorder = performRequest(handler, http.MethodPost, "/v1/internal/stats/recompute", map[string]interface{}{"root_hashes": []string{}})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("empty recompute should be rejected, got %d", recorder.Code)
	}
}
