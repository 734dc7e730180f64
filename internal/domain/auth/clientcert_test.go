package auth

import (
	"context"
	"testing"
)

func TestClientCertProviderTrustedAndVerified(t *testing.T) {
	p := NewClientCertProvider(ClientCertConfig{TrustedProxyIPs: []string{"10.0.0.5"}})
	id, authErr := p.AuthenticateRequest(context.Background(), ClientCertRequest{
		PeerAddr:       "10.0.0.5:54321",
		VerifiedHeader: "SUCCESS",
		SubjectHeader:  "CN=client,O=example",
	})
	if authErr != nil {
		t.Fatalf("unexpected error: %v", authErr)
	}
	if id.ID != "CN=client,O=example" {
		t.Fatalf("unexpected identity id: %q", id.ID)
	}
}

func TestClientCertProviderRejectsUntrustedProxy(t *testing.T) {
	p := NewClientCertProvider(ClientCertConfig{TrustedProxyIPs: []string{"10.0.0.5"}})
	_, authErr := p.AuthenticateRequest(context.Background(), ClientCertRequest{
		PeerAddr:       "203.0.113.7:443",
		VerifiedHeader: "SUCCESS",
		SubjectHeader:  "CN=client",
	})
	if authErr == nil {
		t.Fatal("expected rejection for a peer not in the trusted-proxy set")
	}
}

func TestClientCertProviderRejectsUnverifiedHeader(t *testing.T) {
	p := NewClientCertProvider(ClientCertConfig{TrustedProxyIPs: []string{"10.0.0.5"}})
	_, authErr := p.AuthenticateRequest(context.Background(), ClientCertRequest{
		PeerAddr:       "10.0.0.5:1",
		VerifiedHeader: "FAILED",
		SubjectHeader:  "CN=client",
	})
	if authErr == nil {
		t.Fatal("expected rejection when proxy did not verify the peer cert")
	}
}
