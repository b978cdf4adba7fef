package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/flags"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/models"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/price"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/storage"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/stream"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/swapengine"
)

// TokenDirectory is satisfied by *ref.TokenRegistry
type TokenDirectory interface {
	Resolve(ctx context.Context, tokenID string) (models.Token, error)
	FindBySymbol(symbol string) (models.Token, bool)
	All() []models.Token
}

// PriceSource is satisfied by *price.Service
type PriceSource interface {
	Prices(ctx context.Context, pool *models.SimplePool, tokens map[string]models.Token) *price.Snapshot
}

// SwapHistory is satisfied by *cache.ClickHouseStore
type SwapHistory interface {
	SwapsByAccount(ctx context.Context, accountID string, limit int) ([]*models.SwapRecord, error)
}

// Handlers contains all dependencies for API endpoint handlers
type Handlers struct {
	Engine        *swapengine.Engine    // Quotes, plans and settlement
	Tokens        TokenDirectory        // Token metadata
	Snapshots     *stream.SnapshotStore // Refreshed pools and prices (optional)
	Prices        PriceSource           // Live price lookup when no snapshot exists (optional)
	Cache         storage.SwapCache     // Redis-backed recent swaps (optional)
	History       SwapHistory           // ClickHouse-backed swap history (optional)
	Flags         flags.Manager         // Operator switches
	Metrics       prometheus.Gatherer   // Served on /metrics when set
	DefaultPoolID string
	DevMode       bool           // Enable detailed error responses in development
	Logger        *logrus.Logger // Structured logger
}

// err returns a standardized JSON error response
// In dev mode, includes additional error details for debugging
func (h *Handlers) err(c echo.Context, code int, msg string, details any) error {
	resp := ErrorResponse{Error: msg, Code: code}
	if h.DevMode && details != nil {
		resp.Details = details
	}
	return c.JSON(code, resp)
}

// fail maps a domain error onto its status code. Server faults are logged.
func (h *Handlers) fail(c echo.Context, msg string, err error) error {
	code := statusFor(err)
	if code >= http.StatusInternalServerError && h.Logger != nil {
		h.Logger.WithError(err).WithField("path", c.Path()).Error(msg)
	}
	return h.err(c, code, msg, map[string]any{"err": err.Error()})
}

// withTimeout creates a context with timeout, defaulting to 10 seconds if duration <= 0
func (h *Handlers) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

// parseLimit reads the limit query parameter (default: 100, range: 1-200)
func parseLimit(c echo.Context) (int, error) {
	limit := 100
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, errors.New("must be an integer")
		}
		limit = n
	}
	if limit < 1 || limit > 200 {
		return 0, errors.New("min 1 max 200")
	}
	return limit, nil
}

// Health returns a simple health check endpoint
func (h *Handlers) Health(c echo.Context) error {
	resp := HealthResponse{OK: true}
	if h.Engine != nil {
		resp.Sessions = h.Engine.Sessions()
	}
	return c.JSON(http.StatusOK, resp)
}

// Echo returns the received JSON payload as-is (useful for testing)
func (h *Handlers) Echo(c echo.Context) error {
	var v any
	dec := json.NewDecoder(c.Request().Body)
	if err := dec.Decode(&v); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	return c.JSON(http.StatusOK, v)
}

// RecentSwaps returns the most recently settled swaps
// Accepts limit query parameter (default: 100, range: 1-200)
func (h *Handlers) RecentSwaps(c echo.Context) error {
	if h.Cache == nil {
		return h.err(c, http.StatusServiceUnavailable, "swap cache is not configured", nil)
	}
	limit, err := parseLimit(c)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": err.Error()})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Cache.GetRecentSwaps(ctx, int64(limit))
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to get swaps", nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// SwapHistory returns settled swaps of one account, newest first
func (h *Handlers) SwapHistory(c echo.Context) error {
	if h.History == nil {
		return h.err(c, http.StatusServiceUnavailable, "swap history is not configured", nil)
	}
	account := strings.TrimSpace(c.Param("account"))
	if account == "" {
		return h.err(c, http.StatusBadRequest, "invalid account", nil)
	}
	limit, err := parseLimit(c)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": err.Error()})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.History.SwapsByAccount(ctx, account, limit)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to get swap history", nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// TokensList lists every known token, sorted by id
func (h *Handlers) TokensList(c echo.Context) error {
	items := h.Tokens.All()
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// TokenGet resolves a token by account id or symbol
func (h *Handlers) TokenGet(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return h.err(c, http.StatusBadRequest, "invalid token", nil)
	}
	if tok, ok := h.Tokens.FindBySymbol(id); ok {
		return c.JSON(http.StatusOK, tok)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	tok, err := h.Tokens.Resolve(ctx, id)
	if err != nil {
		return h.fail(c, "token not found", err)
	}
	return c.JSON(http.StatusOK, tok)
}

// PoolGet returns a pool snapshot. With cached=true the last refreshed
// snapshot is served instead of a fresh read.
func (h *Handlers) PoolGet(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return h.err(c, http.StatusBadRequest, "invalid pool id", nil)
	}

	if c.QueryParam("cached") == "true" && h.Snapshots != nil {
		if p, ok := h.Snapshots.Pool(id); ok {
			return c.JSON(http.StatusOK, p)
		}
		return h.err(c, http.StatusNotFound, "pool not refreshed", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	p, err := h.Engine.Pool(ctx, id)
	if err != nil {
		return h.fail(c, "failed to get pool", err)
	}
	return c.JSON(http.StatusOK, p)
}

// PoolsStatus reports the last refresh outcome of every watched pool
func (h *Handlers) PoolsStatus(c echo.Context) error {
	if h.Snapshots == nil {
		return c.JSON(http.StatusOK, map[string]any{"items": []stream.PoolStatus{}})
	}
	return c.JSON(http.StatusOK, map[string]any{"items": h.Snapshots.Status()})
}

// priceSnapshot prefers the refreshed snapshot and falls back to a live read
// against the default pool.
func (h *Handlers) priceSnapshot(ctx context.Context) *price.Snapshot {
	if h.Snapshots != nil {
		if snap := h.Snapshots.Prices(); snap != nil {
			return snap
		}
	}
	if h.Prices == nil {
		return nil
	}

	var pool *models.SimplePool
	if h.Engine != nil && h.DefaultPoolID != "" {
		if p, err := h.Engine.Pool(ctx, h.DefaultPoolID); err == nil {
			pool, _ = p.(*models.SimplePool)
		}
	}
	tokens := make(map[string]models.Token)
	for _, t := range h.Tokens.All() {
		tokens[t.ID] = t
	}
	return h.Prices.Prices(ctx, pool, tokens)
}

// PricesList returns the latest USD price of every known token
func (h *Handlers) PricesList(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	snap := h.priceSnapshot(ctx)
	if snap == nil {
		return h.err(c, http.StatusServiceUnavailable, "prices are not available", nil)
	}
	return c.JSON(http.StatusOK, snap)
}

// Price returns the current USD price of one token, zero when unknown
func (h *Handlers) Price(c echo.Context) error {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		return h.err(c, http.StatusBadRequest, "invalid token", nil)
	}
	if tok, ok := h.Tokens.FindBySymbol(token); ok {
		token = tok.ID
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	snap := h.priceSnapshot(ctx)
	if snap == nil {
		return h.err(c, http.StatusServiceUnavailable, "prices are not available", nil)
	}
	return c.JSON(http.StatusOK, PriceResponse{
		Token:     token,
		Price:     snap.Get(token).String(),
		Source:    string(snap.Source),
		FetchedAt: snap.FetchedAt,
	})
}

// parseSlippage reads a percent string, empty meaning the default
func parseSlippage(s string, def decimal.Decimal) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	return decimal.NewFromString(s)
}

// FlagsUpsert creates or updates a feature flag with the given key and value
// Validates key format and returns the created/updated flag
func (h *Handlers) FlagsUpsert(c echo.Context) error {
	var req FlagUpsertRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	if err := flags.ValidateKey(req.Key); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid key", map[string]any{"key": "invalid format"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	out, err := h.Flags.Upsert(ctx, req.Key, req.Value)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to upsert flag", nil)
	}
	return c.JSON(http.StatusOK, out)
}

// FlagsUpdate updates an existing feature flag with the given key
func (h *Handlers) FlagsUpdate(c echo.Context) error {
	key := c.Param("key")
	if err := flags.ValidateKey(key); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid key", map[string]any{"key": "invalid format"})
	}
	var req FlagUpdateRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	out, err := h.Flags.Upsert(ctx, key, req.Value)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to update flag", nil)
	}
	return c.JSON(http.StatusOK, out)
}

// FlagsGet retrieves a feature flag by its key
// Returns 404 if flag doesn't exist
func (h *Handlers) FlagsGet(c echo.Context) error {
	key := c.Param("key")
	if err := flags.ValidateKey(key); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid key", map[string]any{"key": "invalid format"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	out, err := h.Flags.Get(ctx, key)
	if err != nil {
		if errors.Is(err, flags.ErrNotFound) {
			return h.err(c, http.StatusNotFound, "flag not found", nil)
		}
		return h.err(c, http.StatusInternalServerError, "failed to get flag", nil)
	}
	return c.JSON(http.StatusOK, out)
}

// FlagsList returns all feature flags in the system
func (h *Handlers) FlagsList(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Flags.List(ctx)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to list flags", nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// FlagsDelete removes a feature flag by its key
// Returns 204 No Content on successful deletion
func (h *Handlers) FlagsDelete(c echo.Context) error {
	key := c.Param("key")
	if err := flags.ValidateKey(key); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid key", map[string]any{"key": "invalid format"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := h.Flags.Delete(ctx, key); err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to delete flag", nil)
	}
	return c.NoContent(http.StatusNoContent)
}
