package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/securebidz/apiv1/middlewares"
)

type DepositRequest struct {
	Amount float64 `json:"amount" validate:"gt=0"`
}

type DepositResponse struct {
	NewBalance float64 `json:"newBalance"`
}

func (api *API) WalletRouter(s *mux.Router) {
	s.HandleFunc("", api.authorized(api.GetWallet)).Methods("GET")
	s.HandleFunc("/", api.authorized(api.GetWallet)).Methods("GET")
	s.HandleFunc("/deposit", api.authorized(api.Deposit)).Methods("POST")
}

func (api *API) GetWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := api.Store.GetWallet(r.Context(), currentUserID(r))
	if err != nil {
		middlewares.WriteError(w, r, err)
		return
	}
	middlewares.WriteJSON(w, http.StatusOK, wallet)
}

func (api *API) Deposit(w http.ResponseWriter, r *http.Request) {
	request, err := DecodeValidBody[DepositRequest](r)
	if err != nil {
		middlewares.WriteError(w, r, err)
		return
	}
	balance, err := api.Store.Deposit(r.Context(), currentUserID(r), request.Amount)
	if err != nil {
		middlewares.WriteError(w, r, err)
		return
	}
	middlewares.WriteJSON(w, http.StatusOK, DepositResponse{NewBalance: balance})
}
