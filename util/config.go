package util

import (
	"os"

	"github.com/go-yaml/yaml"
	"github.com/pkg/errors"

	"github.com/totegamma/concurrent-client/core"
)

// Config is the client configuration
type Config struct {
	Session Session `yaml:"session"`
}

// Session identifies the acting user and their home host
type Session struct {
	Host       string `yaml:"host"`
	Scheme     string `yaml:"scheme"`
	CCAddr     string `yaml:"ccaddr"`
	PrivateKey string `yaml:"privatekey"`
}

// Load loads client config from given path.
// CCAddr is derived from the private key when not set explicitly.
func (c *Config) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "failed to open configuration file")
	}
	defer f.Close()

	err = yaml.NewDecoder(f).Decode(&c)
	if err != nil {
		return errors.Wrap(err, "failed to load configuration file")
	}

	if c.Session.Scheme == "" {
		c.Session.Scheme = "https"
	}

	if c.Session.CCAddr == "" && c.Session.PrivateKey != "" {
		ccaddr, err := core.PrivKeyToAddr(c.Session.PrivateKey, "con")
		if err != nil {
			return errors.Wrap(err, "failed to derive address from private key")
		}
		c.Session.CCAddr = ccaddr
	}

	return nil
}
