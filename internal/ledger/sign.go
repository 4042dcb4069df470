package ledger

import (
	"github.com/gagliardetto/solana-go"

	xerrors "WalletFleet/internal/errors"
	"WalletFleet/internal/fleet"
)

// Sign signs tx in place with every key that matches one of its required
// signers. Transactions built elsewhere (swap services) arrive with
// placeholder signatures, so each signature is written at its signer's
// position rather than appended.
func Sign(tx *solana.Transaction, keys ...solana.PrivateKey) error {
	if tx == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "transaction is nil")
	}
	content, err := tx.Message.MarshalBinary()
	if err != nil {
		return xerrors.Wrap(fleet.CodeSubmissionFailed, err, "encode transaction message")
	}

	required := int(tx.Message.Header.NumRequiredSignatures)
	if required == 0 || len(tx.Message.AccountKeys) < required {
		return xerrors.Newf(fleet.CodeSubmissionFailed, "transaction declares %d signers for %d accounts",
			required, len(tx.Message.AccountKeys))
	}
	for len(tx.Signatures) < required {
		tx.Signatures = append(tx.Signatures, solana.Signature{})
	}

	for i := 0; i < required; i++ {
		signer := tx.Message.AccountKeys[i]
		for _, key := range keys {
			if !key.PublicKey().Equals(signer) {
				continue
			}
			sig, err := key.Sign(content)
			if err != nil {
				return xerrors.Wrap(fleet.CodeSubmissionFailed, err, "sign transaction")
			}
			tx.Signatures[i] = sig
			break
		}
	}

	for i := 0; i < required; i++ {
		if tx.Signatures[i] == (solana.Signature{}) {
			return xerrors.Newf(fleet.CodeSubmissionFailed, "missing signature for %s", tx.Message.AccountKeys[i])
		}
	}
	return nil
}

// Reference returns the transaction's identifying signature.
func Reference(tx *solana.Transaction) string {
	if tx == nil || len(tx.Signatures) == 0 {
		return ""
	}
	return tx.Signatures[0].String()
}
