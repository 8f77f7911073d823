package api

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"panel-wallet/internal/model"
	"panel-wallet/internal/notify"
	"panel-wallet/internal/repository"
	"panel-wallet/internal/service"
)

// Charger debits accounts for provisioning actions.
type Charger interface {
	Charge(ctx context.Context, req service.ChargeRequest) (*service.ChargeResult, error)
	Finalize(ctx context.Context, txID int64, f service.Finalization) (*service.ChargeResult, error)
	Fail(ctx context.Context, txID int64, f service.Failure) (*service.ChargeResult, error)
	Refund(ctx context.Context, txID int64, actor model.Actor, reason string) (*service.ChargeResult, error)
}

// Quoter resolves unit prices without locking.
type Quoter interface {
	Quote(ctx context.Context, accountID int64, planKey string) (*int64, error)
}

// Receipts drives the top-up receipt workflow.
type Receipts interface {
	Upload(ctx context.Context, req service.UploadRequest) (*model.Receipt, error)
	Submit(ctx context.Context, receiptID, accountID, amount int64, actor model.Actor) (*service.ReceiptResult, error)
	Approve(ctx context.Context, receiptID int64, actor model.Actor, amount int64) (*service.ReceiptResult, error)
	Reject(ctx context.Context, receiptID int64, actor model.Actor, reason string) (*service.ReceiptResult, error)
	PendingNotice(ctx context.Context, accountID int64) (*model.Receipt, error)
	AckNotice(ctx context.Context, accountID, receiptID int64) (bool, error)
	AckCommissionNotice(ctx context.Context, referrerID, receiptID int64) (bool, error)
	PendingCount(ctx context.Context) (int64, error)
}

// Adjuster applies manual credit corrections.
type Adjuster interface {
	Increase(ctx context.Context, accountID, amount int64, actor model.Actor) (*service.ReceiptResult, error)
	Decrease(ctx context.Context, accountID, amount int64, actor model.Actor) (*service.ReceiptResult, error)
}

// Ledger reads balances and history.
type Ledger interface {
	GetAccount(ctx context.Context, id int64) (*model.Account, error)
	ListTransactions(ctx context.Context, accountID int64, limit int) ([]*model.Transaction, error)
}

// Plans edits the price catalog.
type Plans interface {
	List(ctx context.Context) ([]*model.Plan, error)
	SetDefaultPrice(ctx context.Context, key model.PlanKey, price string) error
}

// Handler serves the wallet API.
type Handler struct {
	charges    Charger
	quotes     Quoter
	receipts   Receipts
	adjust     Adjuster
	ledger     Ledger
	plans      Plans
	dispatcher notify.Dispatcher
}

// Deps groups the Handler collaborators.
type Deps struct {
	Charges    Charger
	Quotes     Quoter
	Receipts   Receipts
	Adjust     Adjuster
	Ledger     Ledger
	Plans      Plans
	Dispatcher notify.Dispatcher
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		charges:    d.Charges,
		quotes:     d.Quotes,
		receipts:   d.Receipts,
		adjust:     d.Adjust,
		ledger:     d.Ledger,
		plans:      d.Plans,
		dispatcher: d.Dispatcher,
	}
}

// deliver sends notifications once the ledger call has committed. It must not
// be tied to the request lifetime.
func (h *Handler) deliver(c *gin.Context, ns []notify.Notification) {
	notify.Deliver(context.WithoutCancel(c.Request.Context()), h.dispatcher, ns)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		ParamError(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

// ============================================================
// Accounts
// ============================================================

// GetBalance returns the credit of an account.
// GET /api/v1/accounts/:id/balance
func (h *Handler) GetBalance(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	acc, err := h.ledger.GetAccount(c.Request.Context(), id)
	if errors.Is(err, repository.ErrAccountNotFound) {
		Outcome(c, model.CodeAccountNotFound, nil)
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("account_id", id).Msg("Balance lookup failed")
		ServerError(c)
		return
	}

	Success(c, gin.H{"account_id": acc.ID, "credit": acc.Credit})
}

// ListTransactions returns the newest ledger rows of an account.
// GET /api/v1/accounts/:id/transactions?limit=50
func (h *Handler) ListTransactions(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		ParamError(c, "limit must be between 1 and 500")
		return
	}

	txs, err := h.ledger.ListTransactions(c.Request.Context(), id, limit)
	if err != nil {
		log.Error().Err(err).Int64("account_id", id).Msg("Transaction history failed")
		ServerError(c)
		return
	}

	Success(c, txs)
}

// Quote returns the unit price an account would pay for a plan.
// GET /api/v1/accounts/:id/quote?plan_key=1m
func (h *Handler) Quote(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	planKey := c.Query("plan_key")
	if planKey == "" {
		ParamError(c, "plan_key is required")
		return
	}

	price, err := h.quotes.Quote(c.Request.Context(), id, planKey)
	if errors.Is(err, repository.ErrAccountNotFound) {
		Outcome(c, model.CodeAccountNotFound, nil)
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("account_id", id).Msg("Quote failed")
		ServerError(c)
		return
	}
	if price == nil {
		Outcome(c, model.CodePriceNotConfigured, gin.H{"plan_key": model.NormalizePlanKey(planKey)})
		return
	}

	Success(c, gin.H{"plan_key": model.NormalizePlanKey(planKey), "unit_price": *price})
}

// ChargeRequest is the body of a charge call.
type ChargeRequest struct {
	PlanKey        string     `json:"plan_key" binding:"required"`
	Quantity       int        `json:"quantity"`
	Type           string     `json:"type"`
	IdempotencyKey string     `json:"idempotency_key"`
	Meta           model.Meta `json:"meta"`
}

// Charge debits an account for a plan.
// POST /api/v1/accounts/:id/charge
func (h *Handler) Charge(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req ChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ParamError(c, "invalid request: "+err.Error())
		return
	}

	txType := model.TxAccountPurchase
	if req.Type != "" {
		parsed, err := model.ParseTxType(req.Type)
		if err != nil || !parsed.IsCharge() {
			ParamError(c, "type must be a charge type")
			return
		}
		txType = parsed
	}

	res, err := h.charges.Charge(c.Request.Context(), service.ChargeRequest{
		AccountID:      id,
		PlanKey:        req.PlanKey,
		Quantity:       req.Quantity,
		Type:           txType,
		Actor:          actorFrom(c),
		IdempotencyKey: req.IdempotencyKey,
		Meta:           req.Meta,
	})
	if err != nil {
		ServerError(c)
		return
	}

	h.deliver(c, res.Notifications)
	Outcome(c, res.Code, res)
}

// FinalizeRequest is the body of a finalize call. All fields are optional.
type FinalizeRequest struct {
	ReferenceType string     `json:"reference_type"`
	ReferenceID   int64      `json:"reference_id" binding:"gte=0"`
	UserIDs       []int64    `json:"user_ids"`
	Meta          model.Meta `json:"meta"`
}

// FinalizeCharge marks a pending charge successful once provisioning is done.
// POST /api/v1/admin/transactions/:id/finalize
func (h *Handler) FinalizeCharge(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req FinalizeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			ParamError(c, "invalid request: "+err.Error())
			return
		}
	}

	actor := actorFrom(c)
	res, err := h.charges.Finalize(c.Request.Context(), id, service.Finalization{
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		UserIDs:       req.UserIDs,
		ExtraMeta:     req.Meta,
		Actor:         &actor,
	})
	if err != nil {
		ServerError(c)
		return
	}

	Outcome(c, res.Code, res)
}

// FailRequest is the body of a fail call.
type FailRequest struct {
	Reason string     `json:"reason"`
	Meta   model.Meta `json:"meta"`
}

// FailCharge marks a pending charge failed. The debit stays until refunded.
// POST /api/v1/admin/transactions/:id/fail
func (h *Handler) FailCharge(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req FailRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			ParamError(c, "invalid request: "+err.Error())
			return
		}
	}

	actor := actorFrom(c)
	res, err := h.charges.Fail(c.Request.Context(), id, service.Failure{
		Reason:    req.Reason,
		ExtraMeta: req.Meta,
		Actor:     &actor,
	})
	if err != nil {
		ServerError(c)
		return
	}

	Outcome(c, res.Code, res)
}

// RefundRequest is the body of a refund call.
type RefundRequest struct {
	Reason string `json:"reason"`
}

// Refund returns the amount of a failed charge.
// POST /api/v1/admin/transactions/:id/refund
func (h *Handler) Refund(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req RefundRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			ParamError(c, "invalid request: "+err.Error())
			return
		}
	}

	res, err := h.charges.Refund(c.Request.Context(), id, actorFrom(c), req.Reason)
	if err != nil {
		ServerError(c)
		return
	}

	h.deliver(c, res.Notifications)
	Outcome(c, res.Code, res)
}

// ============================================================
// Receipts
// ============================================================

// UploadRequest is the body of a receipt upload. The image itself is stored
// by the caller; only its location is recorded.
type UploadRequest struct {
	Disk         string     `json:"disk"`
	Path         string     `json:"path" binding:"required"`
	OriginalName string     `json:"original_name"`
	Mime         string     `json:"mime"`
	Size         int64      `json:"size"`
	Meta         model.Meta `json:"meta"`
}

// UploadReceipt records a receipt image for an account.
// POST /api/v1/accounts/:id/receipts
func (h *Handler) UploadReceipt(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ParamError(c, "invalid request: "+err.Error())
		return
	}

	rc, err := h.receipts.Upload(c.Request.Context(), service.UploadRequest{
		AccountID:    id,
		Method:       model.MethodCard,
		Disk:         req.Disk,
		Path:         req.Path,
		OriginalName: req.OriginalName,
		Mime:         req.Mime,
		Size:         req.Size,
		Meta:         req.Meta,
	})
	if err != nil {
		log.Error().Err(err).Int64("account_id", id).Msg("Receipt upload failed")
		ServerError(c)
		return
	}

	Success(c, rc)
}

// AmountRequest carries an amount in the smallest currency unit.
type AmountRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

// SubmitReceipt attaches the claimed amount to an uploaded receipt.
// POST /api/v1/accounts/:id/receipts/:receipt_id/submit
func (h *Handler) SubmitReceipt(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	receiptID, ok := pathID(c, "receipt_id")
	if !ok {
		return
	}
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ParamError(c, "invalid request: "+err.Error())
		return
	}

	res, err := h.receipts.Submit(c.Request.Context(), receiptID, id, req.Amount, actorFrom(c))
	if err != nil {
		ServerError(c)
		return
	}

	h.deliver(c, res.Notifications)
	Outcome(c, res.Code, res)
}

// PendingNotice returns the newest approval the account has not seen.
// GET /api/v1/accounts/:id/notices
func (h *Handler) PendingNotice(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	rc, err := h.receipts.PendingNotice(c.Request.Context(), id)
	if err != nil {
		log.Error().Err(err).Int64("account_id", id).Msg("Notice lookup failed")
		ServerError(c)
		return
	}
	Success(c, rc)
}

// AckNotice marks an approval as seen by its owner.
// POST /api/v1/accounts/:id/notices/:receipt_id/ack
func (h *Handler) AckNotice(c *gin.Context) {
	h.ack(c, h.receipts.AckNotice)
}

// AckCommissionNotice marks a commission as seen by the referrer.
// POST /api/v1/accounts/:id/commission-notices/:receipt_id/ack
func (h *Handler) AckCommissionNotice(c *gin.Context) {
	h.ack(c, h.receipts.AckCommissionNotice)
}

func (h *Handler) ack(c *gin.Context, fn func(ctx context.Context, accountID, receiptID int64) (bool, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	receiptID, ok := pathID(c, "receipt_id")
	if !ok {
		return
	}

	acked, err := fn(c.Request.Context(), id, receiptID)
	if err != nil {
		log.Error().Err(err).Int64("receipt_id", receiptID).Msg("Notice ack failed")
		ServerError(c)
		return
	}
	if !acked {
		Outcome(c, model.CodeNotFound, nil)
		return
	}
	Success(c, gin.H{"receipt_id": receiptID})
}

// ============================================================
// Admin
// ============================================================

// VerifyReceipt approves a receipt for the given amount.
// POST /api/v1/admin/receipts/:receipt_id/verify
func (h *Handler) VerifyReceipt(c *gin.Context) {
	receiptID, ok := pathID(c, "receipt_id")
	if !ok {
		return
	}
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ParamError(c, "invalid request: "+err.Error())
		return
	}

	res, err := h.receipts.Approve(c.Request.Context(), receiptID, actorFrom(c), req.Amount)
	if err != nil {
		ServerError(c)
		return
	}

	h.deliver(c, res.Notifications)
	Outcome(c, res.Code, res)
}

// RejectRequest is the body of a reject call.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// RejectReceipt closes a receipt without crediting.
// POST /api/v1/admin/receipts/:receipt_id/reject
func (h *Handler) RejectReceipt(c *gin.Context) {
	receiptID, ok := pathID(c, "receipt_id")
	if !ok {
		return
	}
	var req RejectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			ParamError(c, "invalid request: "+err.Error())
			return
		}
	}

	res, err := h.receipts.Reject(c.Request.Context(), receiptID, actorFrom(c), req.Reason)
	if err != nil {
		ServerError(c)
		return
	}

	h.deliver(c, res.Notifications)
	Outcome(c, res.Code, res)
}

// PendingReceipts returns how many receipts wait for review.
// GET /api/v1/admin/receipts/pending
func (h *Handler) PendingReceipts(c *gin.Context) {
	n, err := h.receipts.PendingCount(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Pending receipt count failed")
		ServerError(c)
		return
	}
	Success(c, gin.H{"pending": n})
}

// AdjustRequest is the body of a manual adjustment.
type AdjustRequest struct {
	Amount    int64  `json:"amount" binding:"required"`
	Direction string `json:"direction" binding:"required,oneof=credit debit"`
}

// AdjustWallet credits or debits an account by hand.
// POST /api/v1/admin/accounts/:id/adjust
func (h *Handler) AdjustWallet(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ParamError(c, "invalid request: "+err.Error())
		return
	}

	var (
		res *service.ReceiptResult
		err error
	)
	if model.Direction(req.Direction) == model.DirectionDebit {
		res, err = h.adjust.Decrease(c.Request.Context(), id, req.Amount, actorFrom(c))
	} else {
		res, err = h.adjust.Increase(c.Request.Context(), id, req.Amount, actorFrom(c))
	}
	if err != nil {
		ServerError(c)
		return
	}

	h.deliver(c, res.Notifications)
	Outcome(c, res.Code, res)
}

// ListPlans returns the price catalog.
// GET /api/v1/plans
func (h *Handler) ListPlans(c *gin.Context) {
	plans, err := h.plans.List(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Plan listing failed")
		ServerError(c)
		return
	}
	Success(c, plans)
}

// PriceRequest is the body of a catalog price update. An empty price unsets
// the plan.
type PriceRequest struct {
	Price string `json:"price"`
}

// SetPlanPrice updates the default price of a plan.
// PUT /api/v1/admin/plans/:plan_key/price
func (h *Handler) SetPlanPrice(c *gin.Context) {
	key := model.NormalizePlanKey(c.Param("plan_key"))
	var req PriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ParamError(c, "invalid request: "+err.Error())
		return
	}
	if req.Price != "" && model.ParsePrice(req.Price) == nil {
		ParamError(c, "price must be a non-negative number")
		return
	}

	err := h.plans.SetDefaultPrice(c.Request.Context(), key, req.Price)
	if errors.Is(err, repository.ErrPlanNotFound) {
		Outcome(c, model.CodeNotFound, nil)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("plan_key", string(key)).Msg("Plan price update failed")
		ServerError(c)
		return
	}

	log.Info().Str("plan_key", string(key)).Str("price", req.Price).Interface("actor", actorFrom(c).ID).Msg("Plan price updated")
	Success(c, gin.H{"plan_key": key, "price": req.Price})
}
