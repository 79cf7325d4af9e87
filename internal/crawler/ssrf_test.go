package crawler

import "testing"

func TestValidateFetchTargetRejectsDisallowedScheme(t *testing.T) {
	if _, err := ValidateFetchTarget("ftp://example.com/file"); err == nil {
		t.Fatal("expected ftp scheme to be rejected")
	}
}

func TestValidateFetchTargetRejectsLoopback(t *testing.T) {
	if _, err := ValidateFetchTarget("http://127.0.0.1/admin"); err == nil {
		t.Fatal("expected loopback address to be rejected")
	}
}

func TestValidateFetchTargetRejectsLinkLocal(t *testing.T) {
	if _, err := ValidateFetchTarget("http://169.254.169.254/latest/meta-data"); err == nil {
		t.Fatal("expected link-local metadata address to be rejected")
	}
}

func TestValidateFetchTargetRejectsMissingHost(t *testing.T) {
	if _, err := ValidateFetchTarget("http:///path"); err == nil {
		t.Fatal("expected missing host to be rejected")
	}
}
