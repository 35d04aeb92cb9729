// Package sshkey inspects OpenSSH public key material supplied by
// offerings.
package sshkey

import (
	"fmt"

	"golang.org/x/crypto/ssh"
)

// Fingerprint returns the SHA256 fingerprint of an authorized-keys formatted
// public key.
func Fingerprint(publicKey string) (string, error) {
	key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(publicKey))
	if err != nil {
		return "", fmt.Errorf("failed to parse public key: %w", err)
	}
	return ssh.FingerprintSHA256(key), nil
}
