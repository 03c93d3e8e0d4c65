// Copyright 2021 Casper Association
// SPDX-License-Identifier: LGPL-3.0-only

/*
Package crypto is used to provide functionality to several keypair types.
The only currently supported signing scheme is ed25519.

# Keypairs

The keypair interface is used to bridge different crypto formats. Every
Keypair has both an Encode and Decode function that allows writing and
reading from keystore files. The Address and PublicKey functions allow
access to public facing fields.
*/
package crypto

type KeyType = string

const Ed25519Type KeyType = "ed25519"

type Keypair interface {
	// Encode is used to write the key to a file
	Encode() []byte
	// Decode is used to retrieve a key from a file
	Decode([]byte) error
	// Address provides the account address for the keypair
	Address() string
	// PublicKey returns the keypair's public key hex encoded
	PublicKey() string
}
