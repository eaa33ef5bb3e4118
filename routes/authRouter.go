package routes

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/securebidz/apiv1/dbhelper"
	"github.com/securebidz/apiv1/middlewares"
	"github.com/securebidz/apiv1/models"
	"github.com/securebidz/apiv1/utils"
)

type UserResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type ProfileResponse struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name"`
	Email              string         `json:"email"`
	Wallet             float64        `json:"wallet"`
	MFAEnabled         bool           `json:"mfaEnabled"`
	MFAType            models.MFAType `json:"mfaType,omitempty"`
	LastLogin          *time.Time     `json:"lastLogin,omitempty"`
	LastPasswordChange *time.Time     `json:"lastPasswordChange,omitempty"`
}

type TokenResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type MFAChallengeResponse struct {
	RequiresMFA       bool             `json:"requiresMFA"`
	UserID            string           `json:"userId"`
	MFAType           models.MFAType   `json:"mfaType"`
	AvailableMFATypes []models.MFAType `json:"availableMfaTypes"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type EnableMFAResponse struct {
	Message string `json:"message"`
	dbhelper.MFAEnrollment
}

type ConfirmMFAResponse struct {
	Message     string   `json:"message"`
	BackupCodes []string `json:"backupCodes"`
}

type SignupAttempt struct {
	Name     string `json:"name" validate:"required,max=64"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required"`
}

type LoginAttempt struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type VerifyMFAAttempt struct {
	UserID string         `json:"userId" validate:"required"`
	Code   string         `json:"code" validate:"required"`
	Type   models.MFAType `json:"type" validate:"omitempty,oneof=totp email backup"`
}

type SendMFACodeRequest struct {
	UserID string         `json:"userId" validate:"required"`
	Type   models.MFAType `json:"type" validate:"omitempty,oneof=email"`
}

type EnableMFARequest struct {
	Type models.MFAType `json:"type" validate:"required,oneof=totp email"`
}

type ConfirmMFARequest struct {
	Code string `json:"code" validate:"required"`
}

type DisableMFARequest struct {
	Password string `json:"password" validate:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
}

type ProfileUpdate struct {
	Name string `json:"name" validate:"required,max=64"`
}

func userResponse(u *models.User) UserResponse {
	return UserResponse{ID: u.ID, Name: u.Name, Email: u.Email}
}

func profileResponse(u *models.User) ProfileResponse {
	return ProfileResponse{
		ID:                 u.ID,
		Name:               u.Name,
		Email:              u.Email,
		Wallet:             u.Wallet,
		MFAEnabled:         u.MFAEnabled,
		MFAType:            u.MFAType,
		LastLogin:          u.LastLogin,
		LastPasswordChange: u.LastPasswordChange,
	}
}

func (api *API) AuthRouter(s *mux.Router) {
	limited := api.AuthLimit.HandlerFunc
	s.HandleFunc("/signup", limited(api.Signup)).Methods("POST")
	s.HandleFunc("/login", limited(api.Login)).Methods("POST")
	s.HandleFunc("/verify-mfa", limited(api.VerifyMFA)).Methods("POST")
	s.HandleFunc("/send-login-mfa-code", limited(api.SendLoginMFACode)).Methods("POST")
	s.HandleFunc("/enable-mfa", api.authorized(api.EnableMFA)).Methods("POST")
	s.HandleFunc("/confirm-mfa", api.authorized(api.ConfirmMFA)).Methods("POST")
	s.HandleFunc("/disable-mfa", api.authorized(api.DisableMFA)).Methods("POST")
	s.HandleFunc("/change-password", api.authorized(api.ChangePassword)).Methods("POST")
	s.HandleFunc("/logout", api.authorized(api.Logout)).Methods("POST")
	s.HandleFunc("/profile", api.authorized(api.GetProfile)).Methods("GET")
	s.HandleFunc("/profile", api.authorized(api.UpdateProfile)).Methods("PUT")
}

func (api *API) Signup(w http.ResponseWriter, r *http.Request) {
	signupAttempt, err := DecodeValidBody[SignupAttempt](r)
	if err != nil {
		middlewares.WriteError(w, r, err)
		return
	}
	user, token, err := api.Store.CreateUser(
		r.Context(),
		signupAttempt.Name,
		signupAttempt.Email,
		signupAttempt.Password,
		middlewares.RequestMeta(r),
	)
	if err != nil {
		middlewares.WriteError(w, r, err)
		return
	}
	middlewares.WriteJSON(w, http.StatusCreated, TokenResponse{Token: token, User: userResponse(user)})
}

func (api *API) Login(w http.ResponseWriter, r *http.Request) {
	loginAttempt, err := DecodeValidBody[LoginAttempt](r)
	if err != nil {
		middlewares.WriteError(w, r, utils.ErrInvalidCredentials)
		return
	}
	result, err := api.Store.LoginUserWithPassword(
		r.Context(),
		loginAttempt.Email,
		loginAttempt.Password,
		middlewares.RequestMeta(r),
	)
	if err != nil {
		middlewares.WriteError(w, r, err)
		return
	}
	if result.RequiresMFA {
		middlewares.WriteJSON(w, http.StatusOK, MFAChallengeResponse{
			RequiresMFA:       true,
			UserID:            result.User.ID,
			MFAType:           result.MFAType,
			AvailableMFATypes: result.AvailableMFATypes,
		})
		return
	}
	middlewares.WriteJSON(w, http.StatusOK, TokenResponse{Token: result.Token, User: userResponse(result.User)})
}

func (api *API) VerifyMFA(w http.ResponseWriter, r *http.Request) {
	attempt, err := DecodeValidBody[VerifyMFAAttempt](r)
	if err != nil {
		middlewares.WriteError(w, r, err)
		return
	}
	result, err := api.Store.VerifyMFA(r.Context(), attempt.UserID, attempt.Code, attempt.Type, middlewares.RequestMeta(r))
	if err != nil {
		middlewares.WriteError(w, r, err)
		return
	}
	middlewares.WriteJSON(w, http.StatusOK, TokenResponse{Token: result.Token, User: userResponse(result.User)})
}

func (api *API) SendLoginMFACode(w http.ResponseWriter, r *http.Request) {
	request, err := DecodeValidBody[SendMFACodeRequest](r)
	if err != nil {
		middlewares.WriteError(w, r, err)
		return
	}
	if err := api.Store.SendLoginMFACode(r.Context(), request.UserID, middlewares.RequestMeta(r)); err != nil {
		middlewares.WriteError(w, r, err)
		return
	}
	middlewares.WriteJSON(w, http.StatusOK, StatusResponse{Status: "MFA code sent to your email"})
}

func (api *API) EnableMFA(w http.ResponseWriter, r *http.Request) {
	request, err := DecodeValidBody[EnableMFARequest](r)
	if err != nil {
		middlewares.WriteError(w, r, err)
		return
	}
	enrollment, err := api.Store.EnableMFA(r.Context(), currentUserID(r), request.Type, middlewares.RequestMeta(r))
	if err != nil {
		middlewares.WriteError(w, r, err)
		return
	}
	message := "Scan the code with your authenticator app, then confirm with a code"
	if enrollment.Type == models.MFA_TYPE_EMAIL {
		message = "A code was sent to your email, confirm it to finish"
	}
	middlewares.WriteJSON(w, http.StatusOK, EnableMFAResponse{Message: message, MFAEnrollment: *enrollment})
}

func (api *API) ConfirmMFA(w http.ResponseWriter, r *http.Request) {
	request, err := DecodeValidBody[ConfirmMFARequest](r)
	if err != nil {
		middlewares.WriteError(w, r, err)
		return
	}
	backupCodes, err := api.Store.ConfirmMFA(r.Context(), currentUserID(r), request.Code, middlewares.RequestMeta(r))
	if err != nil {
		middlewares.WriteError(w, r, err)
		return
	}
	middlewares.WriteJSON(w, http.StatusOK, ConfirmMFAResponse{Message: "MFA enabled", BackupCodes: backupCodes})
}

func (api *API) DisableMFA(w http.ResponseWriter, r *http.Request) {
	request, err := DecodeValidBody[DisableMFARequest](r)
	if err != nil {
		middlewares.WriteError(w, r, err)
		return
	}
	if err := api.Store.DisableMFA(r.Context(), currentUserID(r), request.Password, middlewares.RequestMeta(r)); err != nil {
		middlewares.WriteError(w, r, err)
		return
	}
	middlewares.WriteJSON(w, http.StatusOK, StatusResponse{Status: "MFA disabled"})
}

func (api *API) ChangePassword(w http.ResponseWriter, r *http.Request) {
	request, err := DecodeValidBody[ChangePasswordRequest](r)
	if err != nil {
		middlewares.WriteError(w, r, err)
		return
	}
	err = api.Store.ChangePassword(r.Context(), currentUserID(r), request.CurrentPassword, request.NewPassword, middlewares.RequestMeta(r))
	if err != nil {
		middlewares.WriteError(w, r, err)
		return
	}
	middlewares.WriteJSON(w, http.StatusOK, StatusResponse{Status: "Password changed"})
}

func (api *API) Logout(w http.ResponseWriter, r *http.Request) {
	api.Store.Logout(r.Context(), currentUserID(r), middlewares.RequestMeta(r))
	middlewares.WriteJSON(w, http.StatusOK, StatusResponse{Status: "Logged out"})
}

func (api *API) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := api.Store.GetProfile(r.Context(), currentUserID(r))
	if err != nil {
		middlewares.WriteError(w, r, err)
		return
	}
	middlewares.WriteJSON(w, http.StatusOK, profileResponse(user))
}

func (api *API) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	request, err := DecodeValidBody[ProfileUpdate](r)
	if err != nil {
		middlewares.WriteError(w, r, err)
		return
	}
	user, err := api.Store.UpdateProfile(r.Context(), currentUserID(r), request.Name)
	if err != nil {
		middlewares.WriteError(w, r, err)
		return
	}
	middlewares.WriteJSON(w, http.StatusOK, profileResponse(user))
}
