package public

import "time"

type result struct {
	Status string `json:"status"`
	TxID   uint64 `json:"tx_id"`
}

type supply struct {
	Total uint64 `json:"total"`
}

type freeSlots struct {
	FreeSlots uint16 `json:"free_slots"`
}

type balance struct {
	Account string `json:"account"`
	Balance uint64 `json:"balance"`
}

type tx struct {
	ID        uint64    `json:"id"`
	Action    string    `json:"action"`
	From      string    `json:"from"`
	FromName  string    `json:"from_name"`
	Sender    string    `json:"sender"`
	To        string    `json:"to"`
	ToName    string    `json:"to_name"`
	Amount    uint64    `json:"amount"`
	Memo      string    `json:"memo,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type history struct {
	Account  string `json:"account"`
	Page     uint32 `json:"page"`
	PageSize uint32 `json:"page_size"`
	Total    uint32 `json:"total"`
	Txs      []tx   `json:"txs"`
}
