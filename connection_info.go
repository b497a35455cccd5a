// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package amqplink

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// AuthMode selects how the client authenticates against the broker.
type AuthMode string

const (
	// AuthUserPassword authenticates with a username and password (SASL PLAIN).
	AuthUserPassword AuthMode = "userpass"

	// AuthClientCertificate authenticates with a PKCS#12 client certificate (SASL EXTERNAL).
	AuthClientCertificate AuthMode = "certificate"
)

const (
	DefaultHost        = "localhost"
	DefaultPort        = 5672
	DefaultVirtualHost = "/"
)

// ParseAuthMode converts a configuration value into an AuthMode, ignoring case.
// Unknown or empty values fall back to AuthUserPassword.
func ParseAuthMode(s string) AuthMode {
	switch AuthMode(strings.ToLower(strings.TrimSpace(s))) {
	case AuthClientCertificate:
		return AuthClientCertificate
	default:
		return AuthUserPassword
	}
}

// ConnectionInfo describes how to reach one broker.
// It is validated once by NewConnectionBroker, which keeps its own copy;
// changing the caller's value afterwards has no effect on the broker.
type ConnectionInfo struct {
	Host        string
	Port        int
	VirtualHost string
	TLSEnabled  bool
	AuthMode    AuthMode

	// Username and Password are used when AuthMode is AuthUserPassword.
	Username string
	Password string

	// ClientCertPath points to a PKCS#12 bundle holding the client key and certificate,
	// ClientCertPassword decrypts it. Used when AuthMode is AuthClientCertificate.
	ClientCertPath     string
	ClientCertPassword string

	// UseProvidedServerCert pins the broker to the single CA certificate found at ServerCertPath.
	UseProvidedServerCert bool
	ServerCertPath        string
}

// NewConnectionInfo creates a ConnectionInfo with the default port,
// user/password authentication and TLS disabled.
// You can chain methods to configure additional properties.
//
// Example usage:
//
//	info := amqplink.NewConnectionInfo("rabbit.local").
//		WithPort(5671).
//		WithTLS().
//		WithServerCert("/etc/amqplink/ca.pem").
//		WithClientCert("/etc/amqplink/client.p12", "secret")
func NewConnectionInfo(host string) *ConnectionInfo {
	return &ConnectionInfo{
		Host:     host,
		Port:     DefaultPort,
		AuthMode: AuthUserPassword,
	}
}

// WithPort sets the broker port.
func (c *ConnectionInfo) WithPort(port int) *ConnectionInfo {
	c.Port = port
	return c
}

// WithVirtualHost sets the virtual host. An empty value means "/".
func (c *ConnectionInfo) WithVirtualHost(vhost string) *ConnectionInfo {
	c.VirtualHost = vhost
	return c
}

// WithTLS enables TLS on the connection.
func (c *ConnectionInfo) WithTLS() *ConnectionInfo {
	c.TLSEnabled = true
	return c
}

// WithUserPassword selects user/password authentication.
func (c *ConnectionInfo) WithUserPassword(username, password string) *ConnectionInfo {
	c.AuthMode = AuthUserPassword
	c.Username = username
	c.Password = password
	return c
}

// WithClientCert selects client certificate authentication with a PKCS#12 bundle.
func (c *ConnectionInfo) WithClientCert(path, password string) *ConnectionInfo {
	c.AuthMode = AuthClientCertificate
	c.ClientCertPath = path
	c.ClientCertPassword = password
	return c
}

// WithServerCert pins the broker to the CA certificate stored at path.
func (c *ConnectionInfo) WithServerCert(path string) *ConnectionInfo {
	c.UseProvidedServerCert = true
	c.ServerCertPath = path
	return c
}

// Validate checks the static part of the configuration.
// It is the only place where a malformed host or port is rejected,
// everything else is reported later through connection attempts.
func (c *ConnectionInfo) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return ErrInvalidHost
	}

	if c.Port <= 0 || c.Port > 65535 {
		return ErrInvalidPort.wrap(fmt.Sprintf("%s, got %d", ErrInvalidPort.Message, c.Port), nil)
	}

	return nil
}

// Address returns the host:port pair of the broker.
func (c *ConnectionInfo) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// vhost returns the virtual host, defaulting to "/".
func (c *ConnectionInfo) vhost() string {
	if strings.TrimSpace(c.VirtualHost) == "" {
		return DefaultVirtualHost
	}

	return c.VirtualHost
}

// hasUserPassword reports whether credentials must be sent with SASL PLAIN.
func (c *ConnectionInfo) hasUserPassword() bool {
	return c.AuthMode != AuthClientCertificate && c.Username != ""
}

// scheme returns the AMQP URI scheme matching the TLS flag.
func (c *ConnectionInfo) scheme() string {
	if c.TLSEnabled {
		return "amqps"
	}

	return "amqp"
}
