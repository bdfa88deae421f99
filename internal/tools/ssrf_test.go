package tools

import (
	"net"
	"testing"
)

func mustParseIP(t *testing.T, s string) net.IP {
	t.Helper()
	ip := net.ParseIP(s)
	if ip == nil {
		t.Fatalf("invalid test IP: %s", s)
	}
	return ip
}

func TestCheckSSRF_BlocksLoopback(t *testing.T) {
	if err := checkSSRF("http://127.0.0.1/secret"); err == nil {
		t.Fatalf("expected loopback to be blocked")
	}
	if err := checkSSRF("http://localhost/secret"); err == nil {
		t.Fatalf("expected localhost to be blocked")
	}
}

func TestCheckSSRF_BlocksPrivateRanges(t *testing.T) {
	for _, host := range []string{"http://10.0.0.5/", "http://172.16.0.1/", "http://192.168.1.1/"} {
		if err := checkSSRF(host); err == nil {
			t.Fatalf("expected %s to be blocked", host)
		}
	}
}

func TestCheckSSRF_RejectsNonHTTPScheme(t *testing.T) {
	if err := checkSSRF("file:///etc/passwd"); err == nil {
		t.Fatalf("expected non-http scheme to be rejected")
	}
}

func TestCheckSSRF_AllowsPublicHost(t *testing.T) {
	if err := checkSSRF("http://1.1.1.1/"); err != nil {
		t.Fatalf("expected public IP literal to be allowed, got %v", err)
	}
}

func TestIsBlockedIP_LinkLocal(t *testing.T) {
	if !isBlockedIPString(t, "169.254.1.1") {
		t.Fatalf("expected link-local to be blocked")
	}
}

func isBlockedIPString(t *testing.T, s string) bool {
	t.Helper()
	ip := mustParseIP(t, s)
	return isBlockedIP(ip)
}
