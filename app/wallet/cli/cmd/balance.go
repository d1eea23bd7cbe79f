package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/haventek/ledger/foundation/ledger/account"
	"github.com/spf13/cobra"
)

type balance struct {
	Account string `json:"account"`
	Balance uint64 `json:"balance"`
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print your balance.",
	Run:   balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the ledger service.")
}

func balanceRun(cmd *cobra.Command, args []string) {
	privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}

	addr := account.FromPublicKey(privateKey.PublicKey)
	fmt.Println("For Account:", addr.Hex())

	resp, err := http.Get(fmt.Sprintf("%s/v1/balances/list/%s", url, addr.Hex()))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	decoder := json.NewDecoder(resp.Body)
	var bal balance
	if err := decoder.Decode(&bal); err != nil {
		log.Fatal(err)
	}

	fmt.Println(bal.Balance)
}
