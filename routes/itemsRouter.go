package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/securebidz/apiv1/dbhelper"
	"github.com/securebidz/apiv1/middlewares"
	"github.com/securebidz/apiv1/models"
)

type NewItemRequest struct {
	Title       string  `json:"title" validate:"required,max=200"`
	Description string  `json:"description" validate:"required,max=5000"`
	Category    string  `json:"category" validate:"omitempty,max=64"`
	StartPrice  float64 `json:"start_price" validate:"gte=0"`
}

type BidRequest struct {
	Amount float64 `json:"amount" validate:"gt=0"`
}

func (api *API) ItemsRouter(s *mux.Router) {
	s.HandleFunc("", api.ListItems).Methods("GET")
	s.HandleFunc("/", api.ListItems).Methods("GET")
	s.HandleFunc("", api.authorized(api.CreateItem)).Methods("POST")
	s.HandleFunc("/", api.authorized(api.CreateItem)).Methods("POST")
	s.HandleFunc("/{id}", api.GetItem).Methods("GET")
	s.HandleFunc("/{id}/bid", api.authorized(api.BidLimit.HandlerFunc(api.PlaceBid))).Methods("POST")
}

func (api *API) ListItems(w http.ResponseWriter, r *http.Request) {
	status := models.ItemStatus(r.URL.Query().Get("status"))
	items, err := api.Store.ListItems(r.Context(), status)
	if err != nil {
		middlewares.WriteError(w, r, err)
		return
	}
	middlewares.WriteJSON(w, http.StatusOK, items)
}

func (api *API) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := api.Store.GetItem(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		middlewares.WriteError(w, r, err)
		return
	}
	middlewares.WriteJSON(w, http.StatusOK, item)
}

func (api *API) CreateItem(w http.ResponseWriter, r *http.Request) {
	request, err := DecodeValidBody[NewItemRequest](r)
	if err != nil {
		middlewares.WriteError(w, r, err)
		return
	}
	item, err := api.Store.CreateItem(r.Context(), currentUserID(r), dbhelper.NewItem{
		Title:       request.Title,
		Description: request.Description,
		Category:    request.Category,
		StartPrice:  request.StartPrice,
	}, middlewares.RequestMeta(r))
	if err != nil {
		middlewares.WriteError(w, r, err)
		return
	}
	middlewares.WriteJSON(w, http.StatusCreated, item)
}

func (api *API) PlaceBid(w http.ResponseWriter, r *http.Request) {
	request, err := DecodeValidBody[BidRequest](r)
	if err != nil {
		middlewares.WriteError(w, r, err)
		return
	}
	item, err := api.Store.PlaceBid(r.Context(), mux.Vars(r)["id"], currentUserID(r), request.Amount, middlewares.RequestMeta(r))
	if err != nil {
		middlewares.WriteError(w, r, err)
		return
	}
	middlewares.WriteJSON(w, http.StatusOK, item)
}
