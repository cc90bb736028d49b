package api

import (
	"net/http"
	"time"

	"github.com/platinummonkey/ledgerlock/pkg/accounts"
	"github.com/platinummonkey/ledgerlock/pkg/httputil"
	"github.com/platinummonkey/ledgerlock/pkg/middleware"
)

type transactionRequest struct {
	EncryptedData     string    `json:"encrypted_data"`
	Date              time.Time `json:"date"`
	EncryptionVersion int       `json:"encryption_version"`
}

// createTransaction handles POST /api/v1/accounts/{id}/transactions. The
// date stays plaintext so the server can order and range-filter entries it
// cannot read.
func (s *Server) createTransaction(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)
	accountID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	var req transactionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	txn, err := s.accounts.CreateTransaction(r.Context(), user, accountID, accounts.TransactionParams{
		EncryptedData:     req.EncryptedData,
		Date:              req.Date,
		EncryptionVersion: req.EncryptionVersion,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, txn)
}

// listTransactions handles GET /api/v1/accounts/{id}/transactions with
// optional from/to bounds and limit/offset paging.
func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)
	accountID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	from, err := httputil.ParseQueryTime(r, "from")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	to, err := httputil.ParseQueryTime(r, "to")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	limit, err := httputil.ParseQueryInt(r, "limit", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	list, err := s.accounts.ListTransactions(r.Context(), user, accountID, from, to, limit, offset)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"transactions": list})
}

// getTransaction handles GET /api/v1/transactions/{id}
func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)
	txnID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	txn, err := s.accounts.GetTransaction(r.Context(), user, txnID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, txn)
}

// updateTransaction handles PUT /api/v1/transactions/{id}
func (s *Server) updateTransaction(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)
	txnID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	var req transactionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	txn, err := s.accounts.UpdateTransaction(r.Context(), user, txnID, accounts.TransactionParams{
		EncryptedData:     req.EncryptedData,
		Date:              req.Date,
		EncryptionVersion: req.EncryptionVersion,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, txn)
}

// deleteTransaction handles DELETE /api/v1/transactions/{id}
func (s *Server) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)
	txnID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.accounts.DeleteTransaction(r.Context(), user, txnID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
