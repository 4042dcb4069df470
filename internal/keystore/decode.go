package keystore

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	xerrors "WalletFleet/internal/errors"
	"WalletFleet/internal/fleet"
)

// Supported secret encodings.
const (
	EncodingBase58 = "base58"
	EncodingBase64 = "base64"
	EncodingJSON   = "json"
)

type decoder struct {
	name   string
	decode func(string) ([]byte, error)
}

var errNotByteArray = stdErrors.New("not a byte array")

var decoders = []decoder{
	{name: EncodingBase58, decode: base58.Decode},
	{name: EncodingBase64, decode: decodeBase64},
	{name: EncodingJSON, decode: decodeByteArray},
}

func decodeBase64(s string) ([]byte, error) {
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil {
		return raw, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}

// decodeByteArray reads the solana-keygen file format: a JSON array of bytes.
func decodeByteArray(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "[") {
		return nil, errNotByteArray
	}
	var ints []int
	if err := json.Unmarshal([]byte(s), &ints); err != nil {
		return nil, err
	}
	raw := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("byte %d out of range: %d", i, v)
		}
		raw[i] = byte(v)
	}
	return raw, nil
}

// DecodeSecret turns an entry's secret into a 64-byte signing key.
//
// A tagged entry is decoded with its encoding only. Untagged entries try each
// supported encoding in turn. A candidate is accepted when it is a 32-byte
// seed, or a 64-byte key whose trailing half is the public key of its seed,
// and the derived public key equals the entry's address (when the entry has
// one).
func DecodeSecret(entry Entry) (solana.PrivateKey, error) {
	secret := strings.TrimSpace(entry.SecretKey)
	if secret == "" {
		return nil, xerrors.New(fleet.CodeInvalidKeyEncoding, "secret key is empty")
	}

	var want *solana.PublicKey
	if address := strings.TrimSpace(entry.PublicKey); address != "" {
		pk, err := fleet.ParseAddress(address)
		if err != nil {
			return nil, err
		}
		want = &pk
	}

	candidates := decoders
	if tag := strings.ToLower(strings.TrimSpace(entry.Encoding)); tag != "" {
		candidates = nil
		for _, d := range decoders {
			if d.name == tag {
				candidates = []decoder{d}
				break
			}
		}
		if candidates == nil {
			return nil, xerrors.Newf(fleet.CodeInvalidKeyEncoding, "unsupported key encoding %q", entry.Encoding)
		}
	}

	for _, d := range candidates {
		raw, err := d.decode(secret)
		if err != nil {
			continue
		}
		key, ok := keyFromBytes(raw)
		if !ok {
			continue
		}
		if want != nil && !key.PublicKey().Equals(*want) {
			continue
		}
		return key, nil
	}
	return nil, xerrors.Newf(fleet.CodeInvalidKeyEncoding, "secret for %s matches no supported encoding", entry.PublicKey)
}

// ParseSecret decodes a standalone secret, such as the funder key from
// configuration, without an address to check against.
func ParseSecret(secret string) (solana.PrivateKey, error) {
	return DecodeSecret(Entry{SecretKey: secret})
}

func keyFromBytes(raw []byte) (solana.PrivateKey, bool) {
	switch len(raw) {
	case ed25519.SeedSize:
		return solana.PrivateKey(ed25519.NewKeyFromSeed(raw)), true
	case ed25519.PrivateKeySize:
		derived := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
		if !bytes.Equal(derived, raw) {
			return nil, false
		}
		return solana.PrivateKey(derived), true
	default:
		return nil, false
	}
}

// Load decodes every stored entry into a fleet account. Entries that fail to
// decode are kept with LoadErr set so they surface as per-account failures.
func Load(ctx context.Context, store Store) ([]fleet.Account, error) {
	entries, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	accounts := make([]fleet.Account, 0, len(entries))
	for _, entry := range entries {
		accounts = append(accounts, Account(entry))
	}
	return accounts, nil
}

// Account converts a single entry.
func Account(entry Entry) fleet.Account {
	account := fleet.Account{Address: strings.TrimSpace(entry.PublicKey)}
	key, err := DecodeSecret(entry)
	if err != nil {
		account.LoadErr = err
		if pk, parseErr := solana.PublicKeyFromBase58(account.Address); parseErr == nil {
			account.PublicKey = pk
		}
		return account
	}
	account.Key = key
	account.PublicKey = key.PublicKey()
	if account.Address == "" {
		account.Address = account.PublicKey.String()
	}
	return account
}
