package keystore

import (
	"encoding/base64"

	"github.com/gagliardetto/solana-go"

	xerrors "WalletFleet/internal/errors"
)

// MaxGenerate caps how many keypairs one call may create.
const MaxGenerate = 1000

// Generate creates count fresh keypairs encoded as base64 entries.
func Generate(count int) ([]Entry, error) {
	if count < 1 || count > MaxGenerate {
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "wallet count must be between 1 and %d", MaxGenerate)
	}
	entries := make([]Entry, 0, count)
	for i := 0; i < count; i++ {
		key, err := solana.NewRandomPrivateKey()
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeUnknown, err, "generate keypair")
		}
		entries = append(entries, Entry{
			PublicKey: key.PublicKey().String(),
			SecretKey: base64.StdEncoding.EncodeToString(key),
			Encoding:  EncodingBase64,
		})
	}
	return entries, nil
}
