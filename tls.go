// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package amqplink

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"software.sslmate.com/src/go-pkcs12"
)

// TLSMaterial is the outcome of BuildTLSMaterial.
// RootCAs is nil unless a server certificate was provided, Certificates is empty
// unless a client certificate was provided. Config is always ready to be used for dialing.
type TLSMaterial struct {
	RootCAs      *x509.CertPool
	Certificates []tls.Certificate

	// External reports that the client identity travels in the TLS handshake,
	// so the broker must authenticate with SASL EXTERNAL.
	External bool

	Config *tls.Config
}

// Custom reports whether trust or key material was loaded from disk.
func (m *TLSMaterial) Custom() bool {
	return m.RootCAs != nil || len(m.Certificates) > 0
}

// BuildTLSMaterial loads the trust and key material described by info.
//
// When a server certificate is provided it becomes the only trusted root (single CA pinning).
// When client certificate authentication is selected the PKCS#12 bundle is decoded and used
// as the client identity. As soon as any custom material is present the returned config is
// pinned to TLS 1.2; otherwise it is a plain config relying on the system roots and the
// default protocol negotiation.
//
// Any failure is returned as an ErrCredential kind error. It only aborts the current
// connection attempt.
func BuildTLSMaterial(info *ConnectionInfo) (*TLSMaterial, error) {
	material := &TLSMaterial{}

	if info.UseProvidedServerCert {
		pool, err := loadServerCertPool(info.ServerCertPath)
		if err != nil {
			return nil, err
		}
		material.RootCAs = pool
	}

	if info.AuthMode == AuthClientCertificate {
		cert, err := loadClientCertificate(info.ClientCertPath, info.ClientCertPassword)
		if err != nil {
			return nil, err
		}
		material.Certificates = []tls.Certificate{cert}
		material.External = true
	}

	if !material.Custom() {
		logrus.Debug("amqplink no custom tls material, using default tls negotiation")
		material.Config = &tls.Config{ServerName: info.Host}
		return material, nil
	}

	logrus.Debug("amqplink initializing tls 1.2 context with custom material")
	material.Config = &tls.Config{
		ServerName:   info.Host,
		RootCAs:      material.RootCAs,
		Certificates: material.Certificates,
		MinVersion:   tls.VersionTLS12,
		MaxVersion:   tls.VersionTLS12,
	}

	return material, nil
}

// loadServerCertPool reads a single X.509 certificate, PEM or DER encoded,
// and installs it as the sole entry of a fresh pool.
func loadServerCertPool(path string) (*x509.CertPool, error) {
	logrus.WithField("path", path).Info("amqplink reading server certificate")

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, ErrCredential.wrap(fmt.Sprintf("failure to read server certificate %q", path), err)
	}

	der := raw
	if block, _ := pem.Decode(raw); block != nil {
		if block.Type != "CERTIFICATE" {
			return nil, ErrCredential.wrap(fmt.Sprintf("unexpected pem block %q in server certificate %q", block.Type, path), nil)
		}
		der = block.Bytes
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, ErrCredential.wrap(fmt.Sprintf("failure to parse server certificate %q", path), err)
	}

	logrus.WithField("subject", cert.Subject.String()).Info("amqplink server certificate loaded")

	pool := x509.NewCertPool()
	pool.AddCert(cert)

	return pool, nil
}

// loadClientCertificate decodes a PKCS#12 bundle into a client identity,
// keeping any CA certificates of the bundle as the presented chain.
func loadClientCertificate(path, password string) (tls.Certificate, error) {
	logrus.WithField("path", path).Info("amqplink reading client certificate")

	raw, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, ErrCredential.wrap(fmt.Sprintf("failure to read client certificate %q", path), err)
	}

	key, leaf, chain, err := pkcs12.DecodeChain(raw, password)
	if err != nil {
		return tls.Certificate{}, ErrCredential.wrap(fmt.Sprintf("failure to decode client certificate %q", path), err)
	}

	cert := tls.Certificate{
		Certificate: [][]byte{leaf.Raw},
		PrivateKey:  key,
		Leaf:        leaf,
	}
	for _, ca := range chain {
		cert.Certificate = append(cert.Certificate, ca.Raw)
	}

	logrus.WithField("subject", leaf.Subject.String()).Info("amqplink client certificate loaded")

	return cert, nil
}
