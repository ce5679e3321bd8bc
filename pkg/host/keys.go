package host

import (
	"os"

	"golang.org/x/crypto/ssh"
)

func parseSigner(material []byte, passphrase string) (ssh.Signer, error) {
	if passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(material, []byte(passphrase))
	}
	return ssh.ParsePrivateKey(material)
}

func parseSignerFile(path, passphrase string) (ssh.Signer, error) {
	material, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseSigner(material, passphrase)
}
