// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package amqplink

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConnectionInfo_Defaults(t *testing.T) {
	info := NewConnectionInfo("rabbit.local")

	assert.Equal(t, "rabbit.local", info.Host)
	assert.Equal(t, DefaultPort, info.Port)
	assert.Equal(t, AuthUserPassword, info.AuthMode)
	assert.False(t, info.TLSEnabled)
	assert.False(t, info.UseProvidedServerCert)
	assert.Equal(t, "/", info.vhost())
	assert.Equal(t, "amqp", info.scheme())
}

func TestConnectionInfo_Builder(t *testing.T) {
	info := NewConnectionInfo("rabbit.local").
		WithPort(5671).
		WithVirtualHost("orders").
		WithTLS().
		WithServerCert("/etc/ca.pem").
		WithClientCert("/etc/client.p12", "secret")

	assert.Equal(t, 5671, info.Port)
	assert.Equal(t, "orders", info.vhost())
	assert.Equal(t, "amqps", info.scheme())
	assert.True(t, info.UseProvidedServerCert)
	assert.Equal(t, "/etc/ca.pem", info.ServerCertPath)
	assert.Equal(t, AuthClientCertificate, info.AuthMode)
	assert.Equal(t, "/etc/client.p12", info.ClientCertPath)
	assert.Equal(t, "secret", info.ClientCertPassword)
	assert.False(t, info.hasUserPassword())
}

func TestConnectionInfo_Validate(t *testing.T) {
	tests := []struct {
		name     string
		info     *ConnectionInfo
		expected error
		message  string
	}{
		{
			name: "valid",
			info: NewConnectionInfo("localhost"),
		},
		{
			name:     "empty host",
			info:     NewConnectionInfo(""),
			expected: ErrInvalidHost,
			message:  "host",
		},
		{
			name:     "blank host",
			info:     NewConnectionInfo("   "),
			expected: ErrInvalidHost,
			message:  "host",
		},
		{
			name:     "zero port",
			info:     NewConnectionInfo("localhost").WithPort(0),
			expected: ErrInvalidPort,
			message:  "got 0",
		},
		{
			name:     "negative port",
			info:     NewConnectionInfo("localhost").WithPort(-1),
			expected: ErrInvalidPort,
			message:  "got -1",
		},
		{
			name:     "port out of range",
			info:     NewConnectionInfo("localhost").WithPort(70000),
			expected: ErrInvalidPort,
			message:  "got 70000",
		},
		{
			name: "highest port",
			info: NewConnectionInfo("localhost").WithPort(65535),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.info.Validate()
			if tt.expected == nil {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.expected))
			assert.True(t, strings.Contains(err.Error(), tt.message), "error %q should mention %q", err.Error(), tt.message)
		})
	}
}

func TestConnectionInfo_Address(t *testing.T) {
	tests := []struct {
		host     string
		port     int
		expected string
	}{
		{host: "localhost", port: 5672, expected: "localhost:5672"},
		{host: "::1", port: 5671, expected: "[::1]:5671"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, NewConnectionInfo(tt.host).WithPort(tt.port).Address())
		})
	}
}

func TestConnectionInfo_HasUserPassword(t *testing.T) {
	tests := []struct {
		name     string
		info     *ConnectionInfo
		expected bool
	}{
		{name: "no credentials", info: NewConnectionInfo("h"), expected: false},
		{name: "user and password", info: NewConnectionInfo("h").WithUserPassword("g", "g"), expected: true},
		{name: "user without password", info: NewConnectionInfo("h").WithUserPassword("g", ""), expected: true},
		{name: "certificate mode", info: NewConnectionInfo("h").WithUserPassword("g", "g").WithClientCert("c.p12", ""), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.info.hasUserPassword())
		})
	}
}

func TestParseAuthMode(t *testing.T) {
	tests := []struct {
		in       string
		expected AuthMode
	}{
		{in: "certificate", expected: AuthClientCertificate},
		{in: " CERTIFICATE ", expected: AuthClientCertificate},
		{in: "userpass", expected: AuthUserPassword},
		{in: "", expected: AuthUserPassword},
		{in: "kerberos", expected: AuthUserPassword},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseAuthMode(tt.in))
		})
	}
}
