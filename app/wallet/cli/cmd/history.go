package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/haventek/ledger/foundation/ledger/account"
	"github.com/spf13/cobra"
)

var (
	page     uint32
	pageSize uint32
)

type historyTx struct {
	ID        uint64    `json:"id"`
	Action    string    `json:"action"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Amount    uint64    `json:"amount"`
	Memo      string    `json:"memo"`
	Timestamp time.Time `json:"timestamp"`
}

type historyPage struct {
	Page     uint32      `json:"page"`
	PageSize uint32      `json:"page_size"`
	Total    uint32      `json:"total"`
	Txs      []historyTx `json:"txs"`
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print a page of your transaction history.",
	Run:   historyRun,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the ledger service.")
	historyCmd.Flags().Uint32Var(&page, "page", 0, "Page of history to retrieve, most recent first.")
	historyCmd.Flags().Uint32Var(&pageSize, "page-size", 10, "Number of transactions per page.")
}

func historyRun(cmd *cobra.Command, args []string) {
	privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}

	addr := account.FromPublicKey(privateKey.PublicKey)

	resp, err := http.Get(fmt.Sprintf("%s/v1/tx/list/%s?page=%d&page_size=%d", url, addr.Hex(), page, pageSize))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	decoder := json.NewDecoder(resp.Body)
	var hist historyPage
	if err := decoder.Decode(&hist); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Account: %s total[%d] page[%d]\n", addr.Hex(), hist.Total, hist.Page)
	for _, tx := range hist.Txs {
		fmt.Printf("%6d %-8s from[%s] to[%s] amount[%d] %s\n", tx.ID, tx.Action, tx.From, tx.To, tx.Amount, tx.Memo)
	}
}
