// Package security provides the Application Master's in-memory mutual-TLS
// certificate authority. It generates a fresh root CA per run and never
// writes it to disk: the AM does not persist state across its own
// crashes, and neither does its CA.
package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"sync"
	"time"
)

// Authority issues and verifies certificates for the AM, the Daemon
// client, and the services' own containers.
type Authority struct {
	mu       sync.RWMutex
	rootCert *x509.Certificate
	rootKey  *rsa.PrivateKey
}

const (
	rootCAValidity   = 10 * 365 * 24 * time.Hour
	leafCertValidity = 90 * 24 * time.Hour
	rootKeySize      = 4096
	leafKeySize      = 2048
)

// NewAuthority generates a fresh self-signed root CA.
func NewAuthority() (*Authority, error) {
	rootKey, err := rsa.GenerateKey(rand.Reader, rootKeySize)
	if err != nil {
		return nil, fmt.Errorf("security: generate root key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("security: generate serial: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Skein Application Master"},
			CommonName:   "Skein Root CA",
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(rootCAValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		IsCA:                  true,
		BasicConstraintsValid: true,
		MaxPathLenZero:        false,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &rootKey.PublicKey, rootKey)
	if err != nil {
		return nil, fmt.Errorf("security: create root certificate: %w", err)
	}
	rootCert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("security: parse root certificate: %w", err)
	}

	return &Authority{rootCert: rootCert, rootKey: rootKey}, nil
}

// IssueCertificate issues a leaf certificate usable for both server and
// client auth (mTLS between the AM, the Daemon, and containers, §6).
func (a *Authority) IssueCertificate(commonName string, dnsNames []string, ips []net.IP) (*tls.Certificate, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	leafKey, err := rsa.GenerateKey(rand.Reader, leafKeySize)
	if err != nil {
		return nil, fmt.Errorf("security: generate leaf key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("security: generate serial: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Skein Application Master"},
			CommonName:   commonName,
		},
		NotBefore:   time.Now(),
		NotAfter:    time.Now().Add(leafCertValidity),
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		DNSNames:    dnsNames,
		IPAddresses: ips,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, a.rootCert, &leafKey.PublicKey, a.rootKey)
	if err != nil {
		return nil, fmt.Errorf("security: create leaf certificate: %w", err)
	}
	leafCert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("security: parse leaf certificate: %w", err)
	}

	return &tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  leafKey,
		Leaf:        leafCert,
	}, nil
}

// CertPool returns an x509.CertPool trusting only this authority's root.
func (a *Authority) CertPool() *x509.CertPool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	pool := x509.NewCertPool()
	pool.AddCert(a.rootCert)
	return pool
}

// ServerTLSConfig builds a server-side tls.Config requiring and verifying
// client certificates against this authority.
func (a *Authority) ServerTLSConfig(cert *tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    a.CertPool(),
		MinVersion:   tls.VersionTLS12,
	}
}

// ClientTLSConfig builds a client-side tls.Config presenting cert and
// trusting only this authority's root.
func (a *Authority) ClientTLSConfig(cert *tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		RootCAs:      a.CertPool(),
		MinVersion:   tls.VersionTLS12,
	}
}
