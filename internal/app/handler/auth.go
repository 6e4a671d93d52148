package handler

import (
	"crypto/subtle"
	"net/http"

	"pixrecon/internal/app/apperr"
	"pixrecon/internal/app/logger"
	"pixrecon/internal/app/model"
	"pixrecon/internal/app/session"
)

type AuthHandler struct {
	session     session.Creator
	operatorKey string
}

func NewAuthHandler(sm session.Creator, operatorKey string) *AuthHandler {
	return &AuthHandler{
		session:     sm,
		operatorKey: operatorKey,
	}
}

// Token exchanges the shared operator key for a bearer token
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	l := logger.Get(r.Context(), "Handler.Auth.Token")

	in := struct {
		Key      string `json:"key" validate:"required"`
		Operator string `json:"operator" validate:"omitempty,max=64"`
	}{}

	if err := readBody(r, &in); err != nil {
		WriteError(w, err, http.StatusBadRequest)
		return
	}

	if !validateData(w, in) {
		return
	}

	if h.operatorKey == "" || subtle.ConstantTimeCompare([]byte(in.Key), []byte(h.operatorKey)) != 1 {
		l.Debug().Msg("Wrong operator key")
		WriteError(w, apperr.ErrUnauthorized, http.StatusUnauthorized)
		return
	}

	if in.Operator == "" {
		in.Operator = "operator"
	}

	token, err := h.session.Create(r.Context(), &model.Operator{Name: in.Operator})
	if err != nil {
		l.Error().Err(err).Send()
		WriteError(w, err, http.StatusInternalServerError)
		return
	}

	out := struct {
		Token string `json:"token"`
	}{token}

	w.Header().Add("Authorization", "Bearer "+token)

	WriteResponse(w, out, http.StatusOK)
}
