package appstore

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// JWSVerifier verifies App Store signed payloads: ES256 tokens whose x5c
// header carries a certificate chain anchored at a trusted Apple root.
type JWSVerifier struct {
	roots  *x509.CertPool
	now    func() time.Time
	parser *gojwt.Parser
}

// NewJWSVerifier trusts the PEM or DER encoded root certificates in rootCert.
func NewJWSVerifier(rootCert []byte, now func() time.Time) (*JWSVerifier, error) {
	if len(rootCert) == 0 {
		return nil, ErrMissingRootCertificate
	}
	if now == nil {
		now = time.Now
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(rootCert) {
		cert, err := x509.ParseCertificate(rootCert)
		if err != nil {
			return nil, errors.Join(ErrInvalidCertificate, err)
		}
		pool.AddCert(cert)
	}

	return &JWSVerifier{
		roots: pool,
		now:   now,
		// Apple payloads carry no registered time claims.
		parser: gojwt.NewParser(
			gojwt.WithValidMethods([]string{gojwt.SigningMethodES256.Alg()}),
			gojwt.WithoutClaimsValidation(),
		),
	}, nil
}

// LoadJWSVerifier reads the root certificate from path.
func LoadJWSVerifier(path string) (*JWSVerifier, error) {
	if path == "" {
		return nil, ErrMissingRootCertificate
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrMissingRootCertificate, err)
	}
	return NewJWSVerifier(raw, nil)
}

// Verify checks token and returns its decoded claims segment.
func (v *JWSVerifier) Verify(token string) ([]byte, error) {
	if _, err := v.parser.Parse(token, v.key); err != nil {
		return nil, errors.Join(ErrUnverifiedPayload, err)
	}
	return decodeClaims(token)
}

func (v *JWSVerifier) key(t *gojwt.Token) (any, error) {
	raw, ok := t.Header["x5c"].([]any)
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("%w: missing x5c header", ErrInvalidCertificate)
	}

	certs := make([]*x509.Certificate, 0, len(raw))
	for _, entry := range raw {
		s, ok := entry.(string)
		if !ok {
			return nil, fmt.Errorf("%w: malformed x5c entry", ErrInvalidCertificate)
		}
		der, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, errors.Join(ErrInvalidCertificate, err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, errors.Join(ErrInvalidCertificate, err)
		}
		certs = append(certs, cert)
	}

	intermediates := x509.NewCertPool()
	for _, c := range certs[1:] {
		intermediates.AddCert(c)
	}
	if _, err := certs[0].Verify(x509.VerifyOptions{
		Roots:         v.roots,
		Intermediates: intermediates,
		CurrentTime:   v.now(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}); err != nil {
		return nil, errors.Join(ErrInvalidCertificate, err)
	}

	pub, ok := certs[0].PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: leaf key is not ECDSA", ErrInvalidCertificate)
	}
	return pub, nil
}

// decodeClaims returns the payload segment of a compact JWS without
// checking its signature.
func decodeClaims(token string) ([]byte, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: token must have three segments", ErrUnparsablePayload)
	}
	claims, err := gojwt.NewParser().DecodeSegment(parts[1])
	if err != nil {
		return nil, errors.Join(ErrUnparsablePayload, err)
	}
	return claims, nil
}

// decode verifies token with v, or only decodes it when v is nil.
func (v *JWSVerifier) decode(token string) ([]byte, error) {
	if v == nil {
		return decodeClaims(token)
	}
	return v.Verify(token)
}
