package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irgordon/trafficx/installer/internal/prompt"
)

func TestAskInstall_Defaults(t *testing.T) {
	p := prompt.New(strings.NewReader("\nexample.com\n\n\n"), &bytes.Buffer{})

	req, err := askInstall(p)
	require.NoError(t, err)
	assert.Equal(t, "example.com", req.Domain)
	assert.Equal(t, 5000, req.Port)
	assert.Equal(t, "latest", req.Version)
}

func TestAskInstall_Explicit(t *testing.T) {
	p := prompt.New(strings.NewReader("panel.example.org\n8443\nv2.1.0\n"), &bytes.Buffer{})

	req, err := askInstall(p)
	require.NoError(t, err)
	assert.Equal(t, "panel.example.org", req.Domain)
	assert.Equal(t, 8443, req.Port)
	assert.Equal(t, "v2.1.0", req.Version)
}

func TestAskInstall_EndOfInput(t *testing.T) {
	_, err := askInstall(prompt.New(strings.NewReader(""), &bytes.Buffer{}))
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, version+"\n", out.String())
}

func TestInstallCommand_RequiresDomain(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"install", "--port", "5000"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil); rootCmd.SetErr(nil) })

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"domain" not set`)
}
