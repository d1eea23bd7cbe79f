package state

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/haventek/ledger/foundation/ledger/account"
	"github.com/haventek/ledger/foundation/ledger/signature"
)

// Set of operation kinds a signed submission can carry.
const (
	KindTransfer = "transfer"
	KindMint     = "mint"
	KindBurn     = "burn"
)

// OpTx is the operation information signed by the submitting account.
type OpTx struct {
	ChainID uint16 `json:"chain_id" validate:"required"`                      // Unique id of the ledger instance the operation targets.
	Kind    string `json:"kind" validate:"required,oneof=transfer mint burn"` // transfer, mint or burn.
	ToID    string `json:"to" validate:"omitempty,len=42"`                    // Account receiving the benefit of the operation. Empty for burns.
	Amount  uint64 `json:"amount" validate:"required"`                        // Monetary value moved by this operation.
	Memo    string `json:"memo"`                                              // Free-form note recorded with the transaction.
}

// NewOpTx constructs a new operation for signing.
func NewOpTx(chainID uint16, kind string, toID string, amount uint64, memo string) (OpTx, error) {
	switch kind {
	case KindTransfer, KindMint:
		if _, err := account.FromHex(toID); err != nil {
			return OpTx{}, fmt.Errorf("to account is not properly formatted: %w", err)
		}
	case KindBurn:
		if toID != "" {
			return OpTx{}, errors.New("burn does not take a to account")
		}
	default:
		return OpTx{}, fmt.Errorf("unknown operation kind %q", kind)
	}

	tx := OpTx{
		ChainID: chainID,
		Kind:    kind,
		ToID:    toID,
		Amount:  amount,
		Memo:    memo,
	}

	return tx, nil
}

// Sign uses the specified private key to sign the operation.
func (tx OpTx) Sign(privateKey *ecdsa.PrivateKey) (SignedTx, error) {
	v, r, s, err := signature.Sign(tx, privateKey)
	if err != nil {
		return SignedTx{}, err
	}

	signedTx := SignedTx{
		OpTx: tx,
		V:    v,
		R:    r,
		S:    s,
	}

	return signedTx, nil
}

// =============================================================================

// SignedTx is a signed version of the operation. This is how clients like
// a wallet submit operations to the ledger.
type SignedTx struct {
	OpTx
	V *big.Int `json:"v"` // Recovery identifier, either 31 or 32 with ledgerID.
	R *big.Int `json:"r"` // First coordinate of the ECDSA signature.
	S *big.Int `json:"s"` // Second coordinate of the ECDSA signature.
}

// Validate verifies the operation has a proper signature that conforms to
// our standards, is associated with the data claimed to be signed, and
// targets the specified chain.
func (tx SignedTx) Validate(chainID uint16) error {
	if tx.ChainID != chainID {
		return fmt.Errorf("operation invalid, wrong chain id, got %d, exp %d", tx.ChainID, chainID)
	}

	switch tx.Kind {
	case KindTransfer, KindMint:
		if _, err := account.FromHex(tx.ToID); err != nil {
			return errors.New("invalid account for to account")
		}
	case KindBurn:
	default:
		return fmt.Errorf("unknown operation kind %q", tx.Kind)
	}

	if tx.Amount == 0 {
		return errors.New("operation invalid, zero amount")
	}

	return signature.VerifySignature(tx.V, tx.R, tx.S)
}

// FromAccount extracts the address for the account that signed the
// operation.
func (tx SignedTx) FromAccount() (account.Address, error) {
	return signature.FromAddress(tx.OpTx, tx.V, tx.R, tx.S)
}

// SignatureString returns the signature as a string.
func (tx SignedTx) SignatureString() string {
	return signature.SignatureString(tx.V, tx.R, tx.S)
}

// String implements the fmt.Stringer interface for logging.
func (tx SignedTx) String() string {
	from, err := tx.FromAccount()
	if err != nil {
		return fmt.Sprintf("unknown:%s", tx.Kind)
	}

	return fmt.Sprintf("%s:%s", from, tx.Kind)
}
