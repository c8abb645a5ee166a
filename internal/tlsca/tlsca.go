// Package tlsca mints per-host TLS leaf certificates for interception mode.
// Spec.md §9 treats the original's external CSR-and-sign subprocess as a
// replaceable collaborator ("an in-process X.509 library is a valid
// substitute"); no library in the retrieval pack wraps certificate
// generation, so this package is built directly on crypto/x509 and
// crypto/tls, justified in DESIGN.md.
package tlsca

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Material is the CA triple a Minter needs: the CA certificate, the key
// that signed it, and the signing key used for freshly minted leaves
// (spec.md's "ca-signing-key" is kept distinct from "ca-key" exactly as
// the original separates them).
type Material struct {
	CACert      *x509.Certificate
	CAKey       interface{} // crypto.Signer; typically *rsa.PrivateKey
	SigningKey  *rsa.PrivateKey
	CertDirPath string
}

// LoadMaterial reads CA cert/key/signing-key PEM files from disk.
func LoadMaterial(caCertFile, caKeyFile, signingKeyFile, certDir string) (*Material, error) {
	cert, err := loadCertPEM(caCertFile)
	if err != nil {
		return nil, errors.Wrap(err, "tlsca: loading CA cert")
	}
	key, err := loadRSAKeyPEM(caKeyFile)
	if err != nil {
		return nil, errors.Wrap(err, "tlsca: loading CA key")
	}
	signingKey, err := loadRSAKeyPEM(signingKeyFile)
	if err != nil {
		return nil, errors.Wrap(err, "tlsca: loading signing key")
	}
	return &Material{CACert: cert, CAKey: key, SigningKey: signingKey, CertDirPath: certDir}, nil
}

// Minter generates and caches per-host leaf certificates, guarded by a
// single mutex shared across every proxy core plugin instance in the
// process (spec.md §4.5 "Per-host certificate generation", §5 shared
// state (a)).
type Minter struct {
	mu       sync.Mutex
	material *Material
	cache    map[string]*tls.Certificate
}

// NewMinter returns a Minter backed by the given CA material.
func NewMinter(material *Material) *Minter {
	return &Minter{material: material, cache: make(map[string]*tls.Certificate)}
}

// LeafPath is the on-disk location a host's leaf certificate is read from
// or written to: <ca-cert-dir>/<host>.pem.
func (m *Minter) LeafPath(host string) string {
	return filepath.Join(m.material.CertDirPath, host+".pem")
}

// Leaf returns a TLS certificate for host, reusing an on-disk leaf at
// LeafPath(host) if present, otherwise minting and persisting a fresh one.
// The whole read-or-generate sequence runs under the shared mutex so two
// connections racing to intercept the same host never mint twice.
func (m *Minter) Leaf(host string) (*tls.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cert, ok := m.cache[host]; ok {
		return cert, nil
	}

	path := m.LeafPath(host)
	if cert, err := tls.LoadX509KeyPair(path, path); err == nil {
		m.cache[host] = &cert
		return &cert, nil
	}

	cert, err := m.generate(host, path)
	if err != nil {
		return nil, err
	}
	m.cache[host] = cert
	return cert, nil
}

// generate implements the generate_leaf(host, ca_cert, ca_key,
// signing_key, out_path) contract from spec.md §9: CN=host, serial = the
// current Unix time, validity = 365 days, written as a combined cert+key
// PEM at out_path.
func (m *Minter) generate(host, outPath string) (*tls.Certificate, error) {
	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: big.NewInt(now.Unix()),
		Subject:      pkix.Name{CommonName: host},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.AddDate(1, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{host},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, m.material.CACert, &m.material.SigningKey.PublicKey, m.material.CAKey)
	if err != nil {
		return nil, errors.Wrapf(err, "tlsca: signing leaf for %s", host)
	}

	certPEM := encodeCertPEM(der)
	keyPEM := encodeRSAKeyPEM(m.material.SigningKey)

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "tlsca: creating cert dir")
	}
	combined := append(append([]byte{}, certPEM...), keyPEM...)
	if err := os.WriteFile(outPath, combined, 0o600); err != nil {
		return nil, errors.Wrapf(err, "tlsca: writing leaf to %s", outPath)
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, errors.Wrap(err, "tlsca: loading generated leaf")
	}
	return &cert, nil
}

// UpstreamTLSConfig builds the client-side TLS configuration used to dial
// upstream when interception is active: SNI set to the requested host,
// default trust store, and modern-only protocol versions per spec.md §6.
func UpstreamTLSConfig(host string) *tls.Config {
	return &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	}
}

// ClientFacingTLSConfig builds the server-side TLS configuration the
// proxy presents to the browser client, either for interception (leaf
// minted per host) or for a statically configured server certificate.
func ClientFacingTLSConfig(cert *tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		MinVersion:   tls.VersionTLS12,
	}
}
