package app

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/moontrade/backbone/config"
	"github.com/moontrade/backbone/transport"
)

func parseTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}
	tlscfg := &tls.Config{
		Certificates: []tls.Certificate{pair},
	}
	for _, cert := range pair.Certificate {
		pcert, err := x509.ParseCertificate(cert)
		if err != nil {
			return nil, err
		}
		if len(pcert.DNSNames) > 0 {
			tlscfg.ServerName = pcert.DNSNames[0]
			break
		}
	}
	return tlscfg, nil
}

func tlsInit(s config.Config) (*tls.Config, error) {
	if s.Redis.TLSCert == "" || s.Redis.TLSKey == "" {
		return nil, nil
	}
	tlscfg, err := parseTLSConfig(s.Redis.TLSCert, s.Redis.TLSKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTLS, err)
	}
	return tlscfg, nil
}

// transportInit builds the client of the configured driver. Neither dials
// until first use.
func transportInit(s config.Config, tlscfg *tls.Config) transport.Transport {
	opts := transport.Options{
		Addr:        s.Redis.Addr,
		Addrs:       s.Redis.Addrs,
		MasterName:  s.Redis.MasterName,
		Auth:        s.Redis.Auth,
		TLS:         tlscfg,
		DialTimeout: s.Redis.DialTimeout,
		MaxIdle:     s.Redis.MaxIdle,
		MaxActive:   s.Redis.MaxActive,
	}
	if s.Redis.Driver == config.DriverGoRedis {
		return transport.NewUniversal(opts)
	}
	return transport.NewRedis(opts)
}
