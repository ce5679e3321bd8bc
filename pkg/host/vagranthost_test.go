package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseVagrantSSHConfig(t *testing.T) {
	output := []byte(`Host default
  HostName 127.0.0.1
  User vagrant
  Port 2222
  UserKnownHostsFile /dev/null
  StrictHostKeyChecking no
  PasswordAuthentication no
  IdentityFile /home/me/.vagrant.d/insecure_private_key
  IdentitiesOnly yes
  LogLevel FATAL
`)

	cfg := parseVagrantSSHConfig(output)
	assert.Equal(t, "127.0.0.1", cfg.hostName)
	assert.Equal(t, "vagrant", cfg.user)
	assert.Equal(t, 2222, cfg.port)
	assert.Equal(t, "/home/me/.vagrant.d/insecure_private_key", cfg.identityFile)
}

func TestParseVagrantSSHConfigIgnoresMalformedLines(t *testing.T) {
	cfg := parseVagrantSSHConfig([]byte("Host default\nnonsense-with-no-value\n"))
	assert.Equal(t, vagrantSSHConfig{}, cfg)
}
