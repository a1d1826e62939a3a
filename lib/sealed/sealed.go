// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed provides age encryption and decryption for Purser
// account records. It wraps filippo.io/age to provide a simple
// interface for the specific operations Purser needs: generate
// keypairs, encrypt plaintext to one or more recipients, decrypt
// ciphertext with a private key.
//
// Ciphertext is base64-encoded for storage in the account store's
// text columns. The base64 encoding is handled internally: callers
// pass plaintext []byte in and get base64 strings out (and vice versa
// for decryption).
//
// This package is used by the store to seal API credentials and
// exported session strings at rest, so that a copied database file
// alone does not yield usable Telegram authorization material.
package sealed

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"filippo.io/age"
)

// Keypair holds an age x25519 keypair. The private key must never be
// logged or included in CLI arguments; the public key is safe to
// publish.
type Keypair struct {
	// PrivateKey is the secret key in AGE-SECRET-KEY-1... format.
	PrivateKey string

	// PublicKey is the corresponding public key in age1... format.
	PublicKey string
}

// GenerateKeypair generates a new age x25519 keypair.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age keypair: %w", err)
	}
	return &Keypair{
		PrivateKey: identity.String(),
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// Encrypt encrypts plaintext to one or more recipients specified by
// their age public key strings (age1... format). Returns the
// ciphertext as a standard base64-encoded string.
//
// At least one recipient is required.
func Encrypt(plaintext []byte, recipientKeys []string) (string, error) {
	if len(recipientKeys) == 0 {
		return "", fmt.Errorf("at least one recipient is required")
	}

	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return "", fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var ciphertextBuffer bytes.Buffer
	writer, err := age.Encrypt(&ciphertextBuffer, recipients...)
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return "", fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalizing age encryption: %w", err)
	}

	return base64.StdEncoding.EncodeToString(ciphertextBuffer.Bytes()), nil
}

// Decrypt decrypts a base64-encoded ciphertext string using the given
// private key (AGE-SECRET-KEY-1... format).
func Decrypt(ciphertext string, privateKey string) ([]byte, error) {
	identity, err := age.ParseX25519Identity(privateKey)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	rawCiphertext, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 ciphertext: %w", err)
	}

	reader, err := age.Decrypt(bytes.NewReader(rawCiphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}

	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted plaintext: %w", err)
	}
	return plaintext, nil
}

// ParsePublicKey validates an age public key string. Returns an error
// if the key is not a valid age x25519 public key. Useful for
// validating configured escrow keys before first use.
func ParsePublicKey(publicKey string) error {
	_, err := age.ParseX25519Recipient(publicKey)
	if err != nil {
		return fmt.Errorf("invalid age public key: %w", err)
	}
	return nil
}

// ParsePrivateKey validates an age private key string. Returns an
// error if the key is not a valid age x25519 private key.
func ParsePrivateKey(privateKey string) error {
	_, err := age.ParseX25519Identity(privateKey)
	if err != nil {
		return fmt.Errorf("invalid age private key: %w", err)
	}
	return nil
}

// PublicKeyFor derives the age public key for a private key. Used when
// only the private key was persisted.
func PublicKeyFor(privateKey string) (string, error) {
	identity, err := age.ParseX25519Identity(privateKey)
	if err != nil {
		return "", fmt.Errorf("invalid age private key: %w", err)
	}
	return identity.Recipient().String(), nil
}
