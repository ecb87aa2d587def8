package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-go/ptzctl/internal/config"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	t.Setenv("PTZCTL_MQTT_HOST", "")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute(), out.String())
	return out.String()
}

func TestSettingsSaveAndShow(t *testing.T) {
	dir := t.TempDir()
	common := []string{"--config", filepath.Join(dir, "ptzctl.yaml"), "--env", filepath.Join(dir, ".env")}

	out := run(t, append(common, "--host", "10.0.0.9", "--port", "8080", "-u", "ops", "-p", "secret",
		"settings", "save", "--zoom-speed", "0.25")...)
	assert.Contains(t, out, "saved ")

	out = run(t, append(common, "--json", "settings", "show")...)
	var s config.Settings
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, "10.0.0.9", s.Host)
	assert.Equal(t, 8080, s.Port)
	assert.Equal(t, "ops", s.Username)
	assert.Empty(t, s.Password, "password is never printed as JSON")
	assert.Equal(t, 0.5, s.PanTiltSpeed)
	assert.Equal(t, 0.25, s.ZoomSpeed)

	out = run(t, append(common, "settings", "show")...)
	assert.Contains(t, out, "********")
	assert.NotContains(t, out, "secret")
}

func TestSettingsSaveRejectsMissingHost(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PTZCTL_MQTT_HOST", "")

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", filepath.Join(dir, "ptzctl.yaml"), "--env", filepath.Join(dir, ".env"), "settings", "save"})
	assert.Error(t, root.Execute())
}

func TestTargetFlagsOverrideSettings(t *testing.T) {
	a := &app{
		settings: config.Settings{Host: "10.0.0.1", Port: 80, Username: "admin", Password: "a"},
		cfg:      config.Config{AltUser: "onvif"},
	}

	tgt := a.target()
	assert.Equal(t, "10.0.0.1", tgt.Host)
	assert.Equal(t, 80, tgt.Port)
	assert.Equal(t, "onvif", tgt.AltUser)

	a.host, a.port, a.user, a.password, a.altUser = "10.0.0.2", 8000, "ops", "b", "svc"
	tgt = a.target()
	assert.Equal(t, "10.0.0.2", tgt.Host)
	assert.Equal(t, 8000, tgt.Port)
	assert.Equal(t, "ops", tgt.Username)
	assert.Equal(t, "b", tgt.Password)
	assert.Equal(t, "svc", tgt.AltUser)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "", mask(""))
	assert.Equal(t, "********", mask("pw"))
}
