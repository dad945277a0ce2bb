package main

import (
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/ZanzyTHEbar/research-token/internal/catalog"
	"github.com/ZanzyTHEbar/research-token/internal/errors"
	"github.com/ZanzyTHEbar/research-token/internal/leaderboard"
	"github.com/ZanzyTHEbar/research-token/internal/payments"
	"github.com/ZanzyTHEbar/research-token/internal/resilience"
	"github.com/ZanzyTHEbar/research-token/internal/scoring"
	"github.com/ZanzyTHEbar/research-token/internal/session"
	"github.com/ZanzyTHEbar/research-token/internal/types"
)

const (
	ctxSessionStore  = "session_store"
	ctxSessionWallet = "session_wallet"
)

// bindJSON decodes the body into req and records a validation error when
// it is malformed or fails its binding rules.
func bindJSON(c *gin.Context, req interface{}) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}

	var fieldErrs validator.ValidationErrors
	if stderrors.As(err, &fieldErrs) {
		fields := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields[fe.Field()] = fmt.Sprintf("failed on the '%s' rule", fe.Tag())
		}
		_ = c.Error(errors.NewValidationErrorWithMap(fields))
		return false
	}

	_ = c.Error(errors.NewValidationError("Invalid request body", err.Error()))
	return false
}

func (a *app) handleHealth(c *gin.Context) {
	breaker := a.tokens.Breaker()
	status, code := "ok", http.StatusOK
	if breaker.State() == resilience.StateOpen {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":        status,
		"timestamp":     time.Now().Format(time.RFC3339),
		"version":       version,
		"cluster":       a.cluster.Name(),
		"breaker":       breaker.Stats(),
		"redis_enabled": a.redis.IsEnabled(),
		"payments":      a.payments.Enabled(),
		"sessions":      a.sessions.Len(),
		"metrics":       a.metrics.GetStats(),
	})
}

func (a *app) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, a.metrics.GetStats())
}

func (a *app) handleCacheStats(c *gin.Context) {
	stats := gin.H{
		"http":        a.cache.Stats(),
		"leaderboard": a.board.GetCacheStats(),
		"ratelimit":   a.limiter.GetStats(),
		"compression": a.compress.Stats(),
		"redis":       a.redis.GetPoolStats(),
	}
	if a.db != nil {
		stats["database"] = a.db.GetPoolStats()
	}
	c.JSON(http.StatusOK, stats)
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.NewValidationError(fmt.Sprintf("Invalid %s parameter", name), raw)
	}
	return v, nil
}

func (a *app) handleSearch(c *gin.Context) {
	ints := map[string]int{}
	for _, name := range []string{"year", "year_from", "year_to", "page", "page_size"} {
		v, err := queryInt(c, name)
		if err != nil {
			_ = c.Error(err)
			return
		}
		ints[name] = v
	}

	filters := types.SearchFilters{
		Year:    ints["year"],
		Journal: strings.TrimSpace(c.Query("journal")),
		Author:  strings.TrimSpace(c.Query("author")),
		Topic:   strings.TrimSpace(c.Query("topic")),
	}
	if ints["year_from"] != 0 || ints["year_to"] != 0 {
		if ints["year_to"] != 0 && ints["year_from"] > ints["year_to"] {
			_ = c.Error(errors.NewValidationError("year_from must not be after year_to"))
			return
		}
		filters.Years = &types.YearRange{From: ints["year_from"], To: ints["year_to"]}
	}

	query := a.security.SanitizeInput(c.Query("q"))
	resp, err := a.catalog.Search(c.Request.Context(), query, filters, catalog.Page{
		Number: ints["page"],
		Size:   ints["page_size"],
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a *app) handlePublication(c *gin.Context) {
	pub, err := a.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	start := time.Now()
	impact := pub.Score()
	a.metrics.RecordScore(impact.Score, impact.Eligible)
	a.logger.ScoreLogger(pub.ID, impact.Score, impact.Eligible, time.Since(start))

	c.JSON(http.StatusOK, catalog.ScoredPublication{Publication: pub, Impact: impact})
}

func (a *app) handleAnalysis(c *gin.Context) {
	analysis, err := a.catalog.Analyze(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

func (a *app) handleFundings(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		_ = c.Error(err)
		return
	}
	if limit == 0 {
		limit = 50
	}

	id := c.Param("id")
	fundings, err := a.tokens.Fundings(c.Request.Context(), id, limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"publication_id": id,
		"fundings":       fundings,
		"count":          len(fundings),
	})
}

func (a *app) handleScore(c *gin.Context) {
	var req types.ScoreRequest
	if !bindJSON(c, &req) {
		return
	}

	start := time.Now()
	impact := scoring.ComputeImpactScore(req.PublicationMetrics)
	a.metrics.RecordScore(impact.Score, impact.Eligible)
	a.logger.ScoreLogger("", impact.Score, impact.Eligible, time.Since(start))

	c.JSON(http.StatusOK, impact)
}

func (a *app) handleEstimate(c *gin.Context) {
	var req types.EstimateRequest
	if !bindJSON(c, &req) {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"score":          req.Score,
		"funding_amount": req.FundingAmount,
		"eligible":       scoring.IsEligible(req.Score),
		"token_amount":   scoring.ComputeTokenAmount(req.Score, req.FundingAmount),
	})
}

func (a *app) handleCreateSession(c *gin.Context) {
	token, id, err := a.issuer.Issue()
	if err != nil {
		_ = c.Error(errors.NewInternalError("Failed to issue session", err))
		return
	}
	store, _ := a.sessions.Get(id)

	c.JSON(http.StatusCreated, gin.H{
		"token":      token,
		"session_id": id,
		"expires_in": int(a.cfg.Session.TokenTTL.Seconds()),
		"state":      store.Snapshot(),
	})
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// lookupSession resolves the bearer token. ok is false without a token; a
// bad token is an error.
func (a *app) lookupSession(c *gin.Context) (store *session.Store, wallet session.WalletAdapter, ok bool, err error) {
	token := bearerToken(c)
	if token == "" {
		return nil, nil, false, nil
	}
	id, err := a.issuer.Validate(token)
	if err != nil {
		return nil, nil, false, errors.NewUnauthorizedError("Invalid session token", err)
	}
	store, wallet = a.sessions.Get(id)
	return store, wallet, true, nil
}

func (a *app) requireSession(c *gin.Context) {
	store, wallet, ok, err := a.lookupSession(c)
	if err == nil && !ok {
		err = errors.NewUnauthorizedError("Session token required", nil)
	}
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.Set(ctxSessionStore, store)
	c.Set(ctxSessionWallet, wallet)
	c.Next()
}

func (a *app) optionalSession(c *gin.Context) {
	store, wallet, ok, err := a.lookupSession(c)
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	if ok {
		c.Set(ctxSessionStore, store)
		c.Set(ctxSessionWallet, wallet)
	}
	c.Next()
}

func sessionFrom(c *gin.Context) (*session.Store, session.WalletAdapter) {
	store, _ := c.Get(ctxSessionStore)
	wallet, _ := c.Get(ctxSessionWallet)
	s, _ := store.(*session.Store)
	w, _ := wallet.(session.WalletAdapter)
	return s, w
}

func (a *app) handleWallet(c *gin.Context) {
	store, _ := sessionFrom(c)
	c.JSON(http.StatusOK, store.Expire())
}

func (a *app) handleConnect(c *gin.Context) {
	store, wallet := sessionFrom(c)
	state, err := store.ConnectWallet(c.Request.Context(), wallet)
	switch {
	case stderrors.Is(err, session.ErrConnectInProgress):
		_ = c.Error(errors.NewConflictError("Wallet connection already in progress", err))
		return
	case err != nil:
		_ = c.Error(errors.NewExternalAPIError("wallet", err))
		return
	}
	c.JSON(http.StatusOK, state)
}

func (a *app) handleDisconnect(c *gin.Context) {
	store, wallet := sessionFrom(c)
	state, err := store.DisconnectWallet(c.Request.Context(), wallet)
	if err != nil {
		_ = c.Error(errors.NewExternalAPIError("wallet", err))
		return
	}
	c.JSON(http.StatusOK, state)
}

func (a *app) handleDismissToast(c *gin.Context) {
	store, _ := sessionFrom(c)
	c.JSON(http.StatusOK, store.Dismiss(c.Param("id")))
}

func (a *app) handleFund(c *gin.Context) {
	var req types.FundRequest
	if !bindJSON(c, &req) {
		return
	}
	// PaymentRef is only set by the webhook
	req.PaymentRef = ""

	store, _ := sessionFrom(c)
	if store != nil && req.WalletPublicKey == "" {
		req.WalletPublicKey = store.Snapshot().Wallet.PublicKey
	}

	result, err := a.tokens.Tokenize(c.Request.Context(), req)
	if err != nil {
		appErr := errors.ToAppError(err)
		if store != nil {
			store.Notify(session.ToastError, "Funding Failed", appErr.ErrBuilder.Msg)
		}
		_ = c.Error(appErr)
		return
	}

	if store != nil {
		if result.Success {
			store.Notify(session.ToastSuccess, "Funding Successful",
				fmt.Sprintf("You've successfully funded this research and earned %.2f RES tokens!", result.TokenAmount))
		} else {
			store.Notify(session.ToastWarning, "Not Eligible", result.Message)
		}
	}
	if result.Success {
		a.invalidateFundingViews()
	}

	c.JSON(http.StatusOK, result)
}

func (a *app) handleAccount(c *gin.Context) {
	account, err := a.tokens.Account(c.Request.Context(), c.Param("address"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, account)
}

type statusRequest struct {
	Signer string `json:"signer"`
	Active *bool  `json:"active" binding:"required"`
}

func (a *app) handleAccountStatus(c *gin.Context) {
	var req statusRequest
	if !bindJSON(c, &req) {
		return
	}

	receipt, err := a.tokens.UpdateStatus(c.Request.Context(), c.Param("address"), req.Signer, *req.Active)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account":      receipt.Account,
		"tx_signature": receipt.Signature,
		"explorer_url": a.tokens.ExplorerURL(receipt.Signature),
	})
}

func (a *app) handleLeaderboard(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		_ = c.Error(err)
		return
	}
	if limit == 0 {
		limit = a.cfg.Leaderboard.Limit
	}

	resp, err := a.board.GetLeaderboard(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a *app) handleLeaderboardRank(c *gin.Context) {
	id := c.Param("id")
	entry, err := a.board.GetRank(c.Request.Context(), id)
	if stderrors.Is(err, leaderboard.ErrNotRanked) {
		_ = c.Error(errors.NewNotFoundError("publication", id))
		return
	}
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (a *app) handleCheckout(c *gin.Context) {
	var req payments.CheckoutRequest
	if !bindJSON(c, &req) {
		return
	}

	store, _ := sessionFrom(c)
	if store != nil && req.WalletPublicKey == "" {
		req.WalletPublicKey = store.Snapshot().Wallet.PublicKey
	}

	if _, err := a.catalog.Get(c.Request.Context(), req.PublicationID); err != nil {
		_ = c.Error(err)
		return
	}

	checkout, err := a.payments.CreateCheckout(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, checkout)
}

func (a *app) handleWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, payments.MaxWebhookBytes))
	if err != nil {
		_ = c.Error(errors.NewValidationError("Failed to read request body", err.Error()))
		return
	}

	result, err := a.payments.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	if result != nil && result.Success {
		a.invalidateFundingViews()
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
