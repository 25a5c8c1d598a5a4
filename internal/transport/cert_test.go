package transport

import "testing"

func TestGenerateSelfSignedCertProducesUsableCertificate(t *testing.T) {
	cert, err := generateSelfSignedCert()
	if err != nil {
		t.Fatalf("generateSelfSignedCert: %v", err)
	}
	if len(cert.Certificate) == 0 {
		t.Fatal("expected at least one DER certificate")
	}
	if cert.PrivateKey == nil {
		t.Fatal("expected a private key")
	}
}

func TestSelfSignedTLSConfigSetsALPN(t *testing.T) {
	conf, err := selfSignedTLSConfig()
	if err != nil {
		t.Fatalf("selfSignedTLSConfig: %v", err)
	}
	if len(conf.NextProtos) != 1 || conf.NextProtos[0] != ALPN {
		t.Fatalf("NextProtos = %v, want [%s]", conf.NextProtos, ALPN)
	}
	if len(conf.Certificates) != 1 {
		t.Fatalf("Certificates = %d, want 1", len(conf.Certificates))
	}
}

func TestGenerateSelfSignedCertIsUnique(t *testing.T) {
	a, err := generateSelfSignedCert()
	if err != nil {
		t.Fatal(err)
	}
	b, err := generateSelfSignedCert()
	if err != nil {
		t.Fatal(err)
	}
	if string(a.Certificate[0]) == string(b.Certificate[0]) {
		t.Fatal("expected distinct certificates across calls")
	}
}
