package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"pixrecon/internal/app/logger"
	"pixrecon/internal/app/model"
	"pixrecon/internal/app/service/pix"
)

type PixHandler struct {
	pix *pix.Service
}

func NewPixHandler(svc *pix.Service) *PixHandler {
	return &PixHandler{pix: svc}
}

func (h *PixHandler) CreateQRCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(r.Context(), "Handler.Pix.CreateQRCode")

	in := struct {
		Value       decimal.Decimal `json:"value"`
		Description string          `json:"description" validate:"max=500"`
	}{}

	if err := readBody(r, &in); err != nil {
		l.Debug().Err(err).Msg("Body read failed")
		WriteError(w, err, http.StatusBadRequest)
		return
	}

	if !validateData(w, in) {
		return
	}

	t, err := h.pix.CreateDeposit(ctx, pix.DepositRequest{
		Value:       in.Value,
		Description: in.Description,
	})
	if err != nil {
		l.Debug().Err(err).Msg("Deposit failed")
		WriteError(w, err, statusOf(err))
		return
	}

	WriteResponse(w, t, http.StatusCreated)
}

func (h *PixHandler) CreateCashout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(r.Context(), "Handler.Pix.CreateCashout")

	in := struct {
		Value       decimal.Decimal `json:"value"`
		PixKey      string          `json:"pixKey" validate:"required,max=140"`
		PixKeyType  string          `json:"pixKeyType" validate:"required,oneof=CPF CNPJ EMAIL PHONE EVP"`
		Description string          `json:"description" validate:"max=500"`
	}{}

	if err := readBody(r, &in); err != nil {
		l.Debug().Err(err).Msg("Body read failed")
		WriteError(w, err, http.StatusBadRequest)
		return
	}

	if !validateData(w, in) {
		return
	}

	t, err := h.pix.CreateWithdrawal(ctx, pix.WithdrawalRequest{
		Value:       in.Value,
		PixKey:      in.PixKey,
		PixKeyType:  model.PixKeyType(in.PixKeyType),
		Description: in.Description,
	})
	if err != nil {
		l.Debug().Err(err).Msg("Withdrawal failed")
		WriteError(w, err, statusOf(err))
		return
	}

	WriteResponse(w, t, http.StatusCreated)
}

func (h *PixHandler) ListQRCodes(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, model.KindDeposit)
}

func (h *PixHandler) ListCashouts(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, model.KindWithdrawal)
}

func (h *PixHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "")
}

func (h *PixHandler) list(w http.ResponseWriter, r *http.Request, kind model.Kind) {
	l := logger.Get(r.Context(), "Handler.Pix.List")

	tt, sum, err := h.pix.List(r.Context(), kind)
	if err != nil {
		l.Error().Err(err).Send()
		WriteError(w, err, http.StatusInternalServerError)
		return
	}

	out := struct {
		Transactions []*model.Transaction `json:"transactions"`
		Summary      model.Summary        `json:"summary"`
	}{tt, sum}

	WriteResponse(w, out, http.StatusOK)
}
