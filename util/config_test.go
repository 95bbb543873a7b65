package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `session:
  host: example.com
  privatekey: 1236fa65392e99067750aaed5fd4d9ff93f51fd088e94963e51669396cdd597c
`
	err := os.WriteFile(path, []byte(content), 0600)
	assert.NoError(t, err)

	var conf Config
	err = conf.Load(path)
	assert.NoError(t, err)

	assert.Equal(t, "example.com", conf.Session.Host)
	assert.Equal(t, "https", conf.Session.Scheme)
	assert.Equal(t, "con1fk8zlkrfmens3sgj7dzcu3gsw8v9kkysrf8dt5", conf.Session.CCAddr)
}

func TestConfigLoadMissingFile(t *testing.T) {
	var conf Config
	err := conf.Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}
