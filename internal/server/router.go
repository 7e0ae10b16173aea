package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/skeinsocial/skein/backend/internal/ingest"
	"github.com/skeinsocial/skein/backend/internal/moderation"
	"github.com/skeinsocial/skein/backend/internal/threads"
	"go.uber.org/zap"
)

var (
	errMissingThreadEngine      = errors.New("thread engine dependency required")
	errMissingModerationService = errors.New("moderation service dependency required")
	errMissingIngestService     = errors.New("ingest service dependency required")
)

// Dependencies wires the services behind the HTTP surface. Caller
// identity and authorization are resolved by the product gateway in
// front of this API.
type Dependencies struct {
	Threads    *threads.Service
	Moderation *moderation.Service
	Ingest     *ingest.Service
	Logger     *zap.Logger
}

// NewHTTPHandler builds the gin router for thread reads, ingestion and
// moderation.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Threads == nil {
		return nil, errMissingThreadEngine
	}
	if deps.Moderation == nil {
		return nil, errMissingModerationService
	}
	if deps.Ingest == nil {
		return nil, errMissingIngestService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		threads:    deps.Threads,
		moderation: deps.Moderation,
		ingest:     deps.Ingest,
		logger:     logger,
	}

	router.GET("/healthz", handler.handleHealth)

	v1 := router.Group("/v1")
	v1.GET("/threads/:hash", handler.handleThreadPage)
	v1.POST("/casts", handler.handleIngest)
	v1.DELETE("/casts/:hash", handler.handleDeleteCast)
	v1.POST("/moderation/casts/:hash/hide", handler.handleHideCast)
	v1.POST("/moderation/casts/:hash/unhide", handler.handleUnhideCast)
	v1.POST("/moderation/authors/:fid/hide", handler.handleHideAuthor)
	v1.POST("/internal/stats/recompute", handler.handleRecomputeStats)

	return router, nil
}

type httpHandler struct {
	threads    *threads.Service
	moderation *moderation.Service
	ingest     *ingest.Service
	logger     *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleThreadPage(c *gin.Context) {
	rootHash, err := threads.NewHash(c.Param("hash"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_hash"})
		return
	}

	page := 1
	if raw := c.Query("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_page"})
			return
		}
		page = parsed
	}

	// A malformed focus hash degrades to no focus instead of failing
	// the whole page request.
	var focus *threads.Hash
	if raw := c.Query("focus"); raw != "" {
		if parsed, err := threads.NewHash(raw); err == nil {
			focus = &parsed
		}
	}

	result, err := h.threads.BuildPage(c.Request.Context(), rootHash, page, focus)
	if err != nil {
		if errors.Is(err, threads.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "thread_not_found"})
			return
		}
		h.logger.Error("thread page build failed", zap.Error(err), zap.String("root", rootHash.String()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "page_build_failed"})
		return
	}

	c.JSON(http.StatusOK, pagePayloadFrom(result))
}

type ingestRequestPayload struct {
	Casts []ingestCastPayload `json:"casts"`
}

type ingestCastPayload struct {
	Hash          string  `json:"hash"`
	AuthorFID     int64   `json:"author_fid"`
	ParentHash    *string `json:"parent_hash"`
	RootHash      string  `json:"root_hash"`
	TimestampMS   *int64  `json:"timestamp_ms"`
	HasAttachment bool    `json:"has_attachment"`
	BodyText      string  `json:"body_text"`
}

func (h *httpHandler) handleIngest(c *gin.Context) {
	var request ingestRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.Casts) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	casts := make([]ingest.IncomingCast, 0, len(request.Casts))
	for _, payload := range request.Casts {
		hash, err := threads.NewHash(payload.Hash)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_hash"})
			return
		}
		rootHash, err := threads.NewHash(payload.RootHash)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_hash"})
			return
		}
		var parent *threads.Hash
		if payload.ParentHash != nil {
			parsed, err := threads.NewHash(*payload.ParentHash)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_hash"})
				return
			}
			parent = &parsed
		}
		casts = append(casts, ingest.IncomingCast{
			Hash:          hash,
			AuthorFID:     payload.AuthorFID,
			ParentHash:    parent,
			RootHash:      rootHash,
			TimestampMS:   payload.TimestampMS,
			HasAttachment: payload.HasAttachment,
			BodyText:      payload.BodyText,
		})
	}

	roots, err := h.ingest.UpsertCasts(c.Request.Context(), casts)
	if err != nil {
		h.logger.Error("cast ingestion failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ingest_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"accepted": len(casts), "roots": hashValues(roots)})
}

type deleteRequestPayload struct {
	RootHash string `json:"root_hash"`
	ActorFID int64  `json:"actor_fid"`
}

func (h *httpHandler) handleDeleteCast(c *gin.Context) {
	target, err := threads.NewHash(c.Param("hash"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_hash"})
		return
	}
	var request deleteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	root, err := threads.NewHash(request.RootHash)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_hash"})
		return
	}

	group, err := h.moderation.DeleteCast(c.Request.Context(), root, target, request.ActorFID)
	if err != nil {
		if errors.Is(err, threads.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "cast_not_found"})
			return
		}
		h.logger.Error("cast delete failed", zap.Error(err), zap.String("target", target.String()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": hashValues(group)})
}

type hideRequestPayload struct {
	RootHash string `json:"root_hash"`
	ActorFID int64  `json:"actor_fid"`
	Reason   string `json:"reason"`
}

func (h *httpHandler) handleHideCast(c *gin.Context) {
	target, root, payload, ok := h.bindHideRequest(c)
	if !ok {
		return
	}
	if err := h.moderation.HideCast(c.Request.Context(), root, target, payload.ActorFID, payload.Reason); err != nil {
		h.logger.Error("cast hide failed", zap.Error(err), zap.String("target", target.String()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hide_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"hidden": target.String()})
}

func (h *httpHandler) handleUnhideCast(c *gin.Context) {
	target, root, payload, ok := h.bindHideRequest(c)
	if !ok {
		return
	}
	if err := h.moderation.UnhideCast(c.Request.Context(), root, target, payload.ActorFID); err != nil {
		h.logger.Error("cast unhide failed", zap.Error(err), zap.String("target", target.String()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unhide_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unhidden": target.String()})
}

func (h *httpHandler) bindHideRequest(c *gin.Context) (threads.Hash, threads.Hash, hideRequestPayload, bool) {
	target, err := threads.NewHash(c.Param("hash"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_hash"})
		return "", "", hideRequestPayload{}, false
	}
	var request hideRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return "", "", hideRequestPayload{}, false
	}
	root, err := threads.NewHash(request.RootHash)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_hash"})
		return "", "", hideRequestPayload{}, false
	}
	return target, root, request, true
}

type hideAuthorRequestPayload struct {
	ActorFID int64  `json:"actor_fid"`
	Reason   string `json:"reason"`
}

func (h *httpHandler) handleHideAuthor(c *gin.Context) {
	fid, err := strconv.ParseInt(c.Param("fid"), 10, 64)
	if err != nil || fid <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_fid"})
		return
	}
	var request hideAuthorRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.moderation.HideAuthor(c.Request.Context(), fid, request.ActorFID, request.Reason); err != nil {
		h.logger.Error("author hide failed", zap.Error(err), zap.Int64("fid", fid))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hide_author_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"hidden_fid": fid})
}

type recomputeRequestPayload struct {
	RootHashes []string `json:"root_hashes"`
}

func (h *httpHandler) handleRecomputeStats(c *gin.Context) {
	var request recomputeRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.RootHashes) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	roots := make([]threads.Hash, 0, len(request.RootHashes))
	for _, raw := range request.RootHashes {
		root, err := threads.NewHash(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_hash"})
			return
		}
		roots = append(roots, root)
	}
	if err := h.threads.UpdateStats(c.Request.Context(), roots); err != nil {
		h.logger.Error("stats recompute failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "recompute_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"recomputed": len(roots)})
}

func hashValues(hashes []threads.Hash) []string {
	values := make([]string, 0, len(hashes))
	for _, hash := range hashes {
		values = append(values, hash.String())
	}
	return values
}
