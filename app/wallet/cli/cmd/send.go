package cmd

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/haventek/ledger/foundation/ledger/signature"
	"github.com/haventek/ledger/foundation/ledger/state"
	"github.com/spf13/cobra"
)

var (
	url     string
	chainID uint16
	kind    string
	to      string
	amount  uint64
	memo    string
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Sign and submit an operation",
	Run: func(cmd *cobra.Command, args []string) {
		privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
		if err != nil {
			log.Fatal(err)
		}

		sendWithDetails(privateKey)
	},
}

func sendWithDetails(privateKey *ecdsa.PrivateKey) {
	opTx, err := state.NewOpTx(chainID, kind, to, amount, memo)
	if err != nil {
		log.Fatal(err)
	}

	signedTx, err := opTx.Sign(privateKey)
	if err != nil {
		log.Fatal(err)
	}

	hash, err := signature.Hash(signedTx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("tx: 0x%x\n", hash)

	data, err := json.Marshal(signedTx)
	if err != nil {
		log.Fatal(err)
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/tx/%s", url, kind), "application/json", bytes.NewBuffer(data))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(string(body))
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the ledger service.")
	sendCmd.Flags().Uint16VarP(&chainID, "chain", "c", 1, "Chain id of the ledger instance.")
	sendCmd.Flags().StringVarP(&kind, "kind", "k", "transfer", "Operation kind: transfer, mint or burn.")
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Account receiving the funds.")
	sendCmd.Flags().Uint64VarP(&amount, "amount", "v", 0, "Amount to move.")
	sendCmd.Flags().StringVarP(&memo, "memo", "m", "", "Free-form note recorded with the transaction.")
}
