// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/haventek/ledger/app/services/ledger/handlers/v1/public"
	"github.com/haventek/ledger/foundation/events"
	"github.com/haventek/ledger/foundation/ledger/state"
	"github.com/haventek/ledger/foundation/nameservice"
	"github.com/haventek/ledger/foundation/web"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	Evts  *events.Events
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		NS:    cfg.NS,
		Evts:  cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/genesis/list", pbl.Genesis)
	app.Handle(http.MethodGet, version, "/supply", pbl.Supply)
	app.Handle(http.MethodGet, version, "/buffer/free-slots", pbl.FreeSlots)
	app.Handle(http.MethodGet, version, "/balances/list/:account", pbl.Balance)
	app.Handle(http.MethodGet, version, "/tx/list/:account", pbl.Transactions)
	app.Handle(http.MethodPost, version, "/tx/transfer", pbl.SubmitTransfer)
	app.Handle(http.MethodPost, version, "/tx/mint", pbl.SubmitMint)
	app.Handle(http.MethodPost, version, "/tx/burn", pbl.SubmitBurn)
}
