package main

import "github.com/haventek/ledger/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
