// Package ledgerdelivery manages the HTTP delivery layer of the ledger.
package ledgerdelivery

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/flexipay/flexipay/internal/domain"
	"github.com/flexipay/flexipay/internal/gateway"
	"github.com/flexipay/flexipay/internal/ledgerservice"
	"github.com/flexipay/flexipay/internal/middleware"
	"github.com/flexipay/flexipay/pkg/errorspkg"
	"github.com/flexipay/flexipay/pkg/web"
)

// Service provides the service layer interface needed by the ledger
// delivery layer.
//
//go:generate mockgen -source http.go -destination http_mock.go -package ledgerdelivery
type Service interface {
	RequestDeposit(ctx context.Context, accountID, displayName, amount string) (ledgerservice.DepositReceipt, error)
	RequestWithdrawal(ctx context.Context, accountID, displayName, pixKey, amount string) (ledgerservice.WithdrawalReceipt, error)
	Reconcile(ctx context.Context, externalRef string) (ledgerservice.ReconcileResult, error)
	ApproveWithdrawal(ctx context.Context, id int64, adminID string) (domain.Transaction, error)
	RejectWithdrawal(ctx context.Context, id int64, adminID string) (domain.Transaction, error)
	Wallet(ctx context.Context, accountID, displayName string) (ledgerservice.Wallet, error)
	PendingWithdrawals(ctx context.Context) ([]domain.Transaction, error)
	Profits(ctx context.Context) (string, error)
	SetBalance(ctx context.Context, accountID, newBalance, adminID string) (domain.Transaction, error)
}

// Handler facilitates ledger delivery layer logic.
type Handler struct {
	service Service
}

// NewHandler returns a ledger handler.
func NewHandler(s Service) Handler {
	return Handler{service: s}
}

func bindingError(gctx *gin.Context, err error) {
	l := zerolog.Ctx(gctx)

	var (
		ve     validator.ValidationErrors
		errMsg string
	)

	if errors.As(err, &ve) {
		field := ve[0]
		errMsg = field.Field() + web.GetErrorMsg(field)
	}

	l.Info().Err(err).Send()
	gctx.JSON(http.StatusBadRequest, web.Response{Error: errMsg})
}

// serviceError maps domain errors onto HTTP statuses. Anything unmapped
// is an internal error and never leaks details to the caller.
func serviceError(gctx *gin.Context, err error) {
	switch err {
	case domain.ErrInvalidAmount,
		domain.ErrAmountOutOfRange,
		domain.ErrAmountBelowFee,
		domain.ErrNegativeBalance,
		domain.ErrInsufficientBalance:
		gctx.JSON(http.StatusBadRequest, web.Error(err))
		return
	case domain.ErrTransactionNotFound, domain.ErrAccountNotFound:
		gctx.JSON(http.StatusNotFound, web.Error(err))
		return
	case domain.ErrAlreadyProcessed:
		gctx.JSON(http.StatusConflict, web.Error(err))
		return
	case domain.ErrRefundFailed:
		gctx.JSON(http.StatusInternalServerError, web.Error(err))
		return
	}

	if gateway.IsFailure(err) {
		gctx.JSON(http.StatusBadGateway, web.Error(err))
		return
	}

	gctx.JSON(http.StatusInternalServerError, web.Error(errorspkg.ErrInternal))
}

type depositData struct {
	Deposit ledgerservice.DepositReceipt `json:"deposit"`
}
type depositResponse struct {
	Data depositData `json:"data,omitempty"`
}

type createDepositRequest struct {
	AccountID   string `json:"account_id" binding:"required"`
	DisplayName string `json:"display_name"`
	Amount      string `json:"amount" binding:"required"`
}

// CreateDeposit handles http request to open a deposit charge.
func (h *Handler) CreateDeposit(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var req createDepositRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		bindingError(gctx, err)
		return
	}

	receipt, err := h.service.RequestDeposit(ctx, req.AccountID, req.DisplayName, req.Amount)
	if err != nil {
		serviceError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, depositResponse{Data: depositData{receipt}})
}

type withdrawalData struct {
	Withdrawal ledgerservice.WithdrawalReceipt `json:"withdrawal"`
}
type withdrawalResponse struct {
	Data withdrawalData `json:"data,omitempty"`
}

type createWithdrawalRequest struct {
	AccountID   string `json:"account_id" binding:"required"`
	DisplayName string `json:"display_name"`
	PixKey      string `json:"pix_key" binding:"required,pixkey"`
	Amount      string `json:"amount" binding:"required"`
}

// CreateWithdrawal handles http request to queue a withdrawal for review.
func (h *Handler) CreateWithdrawal(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var req createWithdrawalRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		bindingError(gctx, err)
		return
	}

	receipt, err := h.service.RequestWithdrawal(ctx, req.AccountID, req.DisplayName, req.PixKey, req.Amount)
	if err != nil {
		serviceError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, withdrawalResponse{Data: withdrawalData{receipt}})
}

type walletData struct {
	Wallet ledgerservice.Wallet `json:"wallet"`
}
type walletResponse struct {
	Data walletData `json:"data,omitempty"`
}

type walletRequest struct {
	AccountID string `uri:"id" binding:"required"`
}

// Wallet handles http request to show an account overview.
func (h *Handler) Wallet(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var req walletRequest
	if err := gctx.ShouldBindUri(&req); err != nil {
		bindingError(gctx, err)
		return
	}

	wallet, err := h.service.Wallet(ctx, req.AccountID, gctx.Query("display_name"))
	if err != nil {
		serviceError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, walletResponse{Data: walletData{wallet}})
}

type webhookRequest struct {
	ExternalRef string `json:"external_ref" binding:"required"`
}

type reconcileData struct {
	Reconciliation ledgerservice.ReconcileResult `json:"reconciliation"`
}
type reconcileResponse struct {
	Data reconcileData `json:"data,omitempty"`
}

// Webhook handles gateway payment notifications. Reconciliation is keyed
// by the charge reference only; the delivery payload carries no trusted
// amount or status.
func (h *Handler) Webhook(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var req webhookRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		bindingError(gctx, err)
		return
	}

	result, err := h.service.Reconcile(ctx, req.ExternalRef)
	if err != nil {
		serviceError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, reconcileResponse{Data: reconcileData{result}})
}

type transactionData struct {
	Transaction domain.Transaction `json:"transaction"`
}
type transactionResponse struct {
	Data transactionData `json:"data,omitempty"`
}

type withdrawalIDRequest struct {
	ID int64 `uri:"id" binding:"required,min=1"`
}

// ApproveWithdrawal handles http request to approve a pending withdrawal.
func (h *Handler) ApproveWithdrawal(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var req withdrawalIDRequest
	if err := gctx.ShouldBindUri(&req); err != nil {
		bindingError(gctx, err)
		return
	}

	adminID := middleware.AdminPayload(gctx).AdminID

	completed, err := h.service.ApproveWithdrawal(ctx, req.ID, adminID)
	if err != nil {
		serviceError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, transactionResponse{Data: transactionData{completed}})
}

// RejectWithdrawal handles http request to reject a pending withdrawal.
func (h *Handler) RejectWithdrawal(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var req withdrawalIDRequest
	if err := gctx.ShouldBindUri(&req); err != nil {
		bindingError(gctx, err)
		return
	}

	adminID := middleware.AdminPayload(gctx).AdminID

	rejected, err := h.service.RejectWithdrawal(ctx, req.ID, adminID)
	if err != nil {
		serviceError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, transactionResponse{Data: transactionData{rejected}})
}

type pendingData struct {
	Withdrawals []domain.Transaction `json:"withdrawals"`
}
type pendingResponse struct {
	Data pendingData `json:"data,omitempty"`
}

// PendingWithdrawals handles http request to list withdrawals under review.
func (h *Handler) PendingWithdrawals(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	withdrawals, err := h.service.PendingWithdrawals(ctx)
	if err != nil {
		serviceError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, pendingResponse{Data: pendingData{withdrawals}})
}

type profitsData struct {
	Profits string `json:"profits"`
}
type profitsResponse struct {
	Data profitsData `json:"data,omitempty"`
}

// Profits handles http request to report the total of settled fees.
func (h *Handler) Profits(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	total, err := h.service.Profits(ctx)
	if err != nil {
		serviceError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, profitsResponse{Data: profitsData{total}})
}

type setBalanceURI struct {
	AccountID string `uri:"id" binding:"required"`
}

type setBalanceRequest struct {
	Balance string `json:"balance" binding:"required"`
}

// SetBalance handles http request to overwrite an account balance.
func (h *Handler) SetBalance(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var uri setBalanceURI
	if err := gctx.ShouldBindUri(&uri); err != nil {
		bindingError(gctx, err)
		return
	}

	var req setBalanceRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		bindingError(gctx, err)
		return
	}

	adminID := middleware.AdminPayload(gctx).AdminID

	adjustment, err := h.service.SetBalance(ctx, uri.AccountID, req.Balance, adminID)
	if err != nil {
		serviceError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, transactionResponse{Data: transactionData{adjustment}})
}
