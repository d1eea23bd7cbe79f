// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/haventek/ledger/business/sys/validate"
	"github.com/haventek/ledger/business/web/errs"
	"github.com/haventek/ledger/foundation/events"
	"github.com/haventek/ledger/foundation/ledger/account"
	"github.com/haventek/ledger/foundation/ledger/state"
	"github.com/haventek/ledger/foundation/nameservice"
	"github.com/haventek/ledger/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of ledger endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitTransfer commits a signed transfer operation to the ledger.
func (h Handlers) SubmitTransfer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return h.submit(ctx, w, r, state.KindTransfer, h.State.Transfer)
}

// SubmitMint commits a signed mint operation to the ledger.
func (h Handlers) SubmitMint(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return h.submit(ctx, w, r, state.KindMint, h.State.Mint)
}

// SubmitBurn commits a signed burn operation to the ledger.
func (h Handlers) SubmitBurn(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return h.submit(ctx, w, r, state.KindBurn, h.State.Burn)
}

// submit decodes the signed operation and runs it through the specified
// state call. The response carries only the transaction serial.
func (h Handlers) submit(ctx context.Context, w http.ResponseWriter, r *http.Request, kind string, op func(state.SignedTx) (state.Receipt, error)) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var signedTx state.SignedTx
	if err := web.Decode(r, &signedTx); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}
	if err := validate.Check(signedTx.OpTx); err != nil {
		return err
	}

	h.Log.Infow("submit operation", "traceid", v.TraceID, "kind", kind, "to", signedTx.ToID, "amount", signedTx.Amount, "sig", signedTx.SignatureString()[:16])

	receipt, err := op(signedTx)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	resp := result{
		Status: "operation committed",
		TxID:   receipt.TxID,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.Genesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// Supply returns the total token supply across all accounts.
func (h Handlers) Supply(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	total, err := h.State.TotalSupply()
	if err != nil {
		return err
	}

	resp := supply{
		Total: total,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// FreeSlots returns the settlement buffer's free-space counter.
func (h Handlers) FreeSlots(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	free, err := h.State.FreeSlots()
	if err != nil {
		return err
	}

	resp := freeSlots{
		FreeSlots: free,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Balance returns the spendable balance for the specified account, which
// includes any amount still pending in the settlement buffer.
func (h Handlers) Balance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	addr, err := account.FromHex(web.Param(r, "account"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	bal, err := h.State.Balance(addr)
	if err != nil {
		return err
	}

	resp := balance{
		Account: addr.Hex(),
		Balance: bal,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Transactions returns one page of the specified account's history, most
// recent first.
func (h Handlers) Transactions(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	addr, err := account.FromHex(web.Param(r, "account"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	page, err := queryUint32(r, "page", 0)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}
	pageSize, err := queryUint32(r, "page_size", 10)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	trans, total, err := h.State.Transactions(addr, page, pageSize)
	if err != nil {
		return err
	}

	txs := make([]tx, len(trans))
	for i, tran := range trans {
		txs[i] = tx{
			ID:        tran.ID,
			Action:    tran.Action,
			From:      tran.From.Hex(),
			FromName:  h.NS.Lookup(tran.From),
			Sender:    tran.Sender.Hex(),
			To:        tran.To.Hex(),
			ToName:    h.NS.Lookup(tran.To),
			Amount:    tran.Amount,
			Memo:      tran.Memo,
			Timestamp: tran.Timestamp,
		}
	}

	resp := history{
		Account:  addr.Hex(),
		Page:     page,
		PageSize: pageSize,
		Total:    total,
		Txs:      txs,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// queryUint32 reads an optional unsigned query parameter, falling back to
// the specified default when absent.
func queryUint32(r *http.Request, name string, def uint32) (uint32, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}

	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter %q", name, raw)
	}

	return uint32(v), nil
}
