package handlers

import (
	"net/http"
	"strconv"

	"vidluxe/internal/domain"
	"vidluxe/internal/enhance"
)

const maxTransactionsPage = 200

func (a *App) Credits(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	avail, err := a.Service.Credits(r.Context(), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, avail)
}

// Transactions lists the caller's ledger, newest first.
func (a *App) Transactions(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			a.error(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = min(n, maxTransactionsPage)
	}
	items, err := a.Service.Transactions(r.Context(), userID, limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if items == nil {
		items = []domain.Transaction{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

type redeemInviteRequest struct {
	ReferrerID string `json:"referrer_id"`
}

// RedeemInvite credits the caller and the user who invited them.
func (a *App) RedeemInvite(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req redeemInviteRequest
	if !a.decode(w, r, &req) {
		return
	}
	res, err := a.Service.RedeemInvite(r.Context(), userID, req.ReferrerID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !res.Success {
		a.fail(w, r, &enhance.Rejection{Reason: res.Error, Err: res.Err()})
		return
	}
	a.json(w, http.StatusOK, res)
}

type confirmPaymentRequest struct {
	UserID     string `json:"user_id"`
	Amount     int    `json:"amount"`
	PaymentRef string `json:"payment_ref"`
}

// ConfirmPayment is the payment provider's settlement callback.
func (a *App) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req confirmPaymentRequest
	if !a.decode(w, r, &req) {
		return
	}
	res, err := a.Service.ConfirmPayment(r.Context(), req.UserID, req.Amount, req.PaymentRef)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !res.Success {
		a.fail(w, r, &enhance.Rejection{Reason: res.Error, Err: res.Err()})
		return
	}
	a.json(w, http.StatusOK, res)
}
