package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pixrecon/internal/app/handler"
	mw "pixrecon/internal/app/middleware"
)

func (a *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(mw.Log(a.logger))

	r.Get("/health", handler.Health)

	// gateway notifications, relayed to the queues verbatim
	token := a.config.Gateway.WebhookToken
	r.Route("/webhook", func(r chi.Router) {
		r.Method(http.MethodPost, "/cashin", handler.NewWebhookHandler("deposit", a.deposits, token))
		r.Method(http.MethodPost, "/cashout", handler.NewWebhookHandler("withdrawal", a.withdrawals, token))
	})

	ah := handler.NewAuthHandler(a.session, a.config.Auth.OperatorKey)
	ph := handler.NewPixHandler(a.pix)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/token", ah.Token)

		r.Group(func(r chi.Router) {
			r.Use(mw.Auth(a.session))

			r.Post("/pix/qrcode", ph.CreateQRCode)
			r.Post("/pix/cashout", ph.CreateCashout)
			r.Get("/pix/qrcodes", ph.ListQRCodes)
			r.Get("/pix/cashouts", ph.ListCashouts)
			r.Get("/transactions", ph.ListTransactions)
		})
	})

	return r
}
