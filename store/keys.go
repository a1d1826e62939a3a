// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"
	"os"
	"strings"

	"github.com/purser-foundation/purser/lib/sealed"
)

// LoadOrCreateKeypair loads the sealing keypair from path, generating
// and persisting a fresh one (mode 0600) on first start. The file
// holds the private key in AGE-SECRET-KEY-1... form; the public key is
// derived from it.
func LoadOrCreateKeypair(path string) (*sealed.Keypair, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		privateKey := strings.TrimSpace(string(data))
		if err := sealed.ParsePrivateKey(privateKey); err != nil {
			return nil, fmt.Errorf("store: key file %s: %w", path, err)
		}
		publicKey, err := sealed.PublicKeyFor(privateKey)
		if err != nil {
			return nil, fmt.Errorf("store: key file %s: %w", path, err)
		}
		return &sealed.Keypair{PrivateKey: privateKey, PublicKey: publicKey}, nil

	case os.IsNotExist(err):
		keypair, err := sealed.GenerateKeypair()
		if err != nil {
			return nil, fmt.Errorf("store: generating sealing keypair: %w", err)
		}
		if err := os.WriteFile(path, []byte(keypair.PrivateKey+"\n"), 0600); err != nil {
			return nil, fmt.Errorf("store: writing key file %s: %w", path, err)
		}
		return keypair, nil

	default:
		return nil, fmt.Errorf("store: reading key file %s: %w", path, err)
	}
}
