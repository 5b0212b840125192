package puf

import "testing"

func TestSimulatedProviderDeterministic(t *testing.T) {
	p1 := NewSimulatedProvider([]byte("secret-a"))
	p2 := NewSimulatedProvider([]byte("secret-a"))
	if !p1.PUFToMAC().Equal(p2.PUFToMAC()) {
		t.Fatal("same secret must yield the same base MAC")
	}
	challenge := p1.PUFToMAC()
	if !p1.GetPUFResponse(challenge).Equal(p2.GetPUFResponse(challenge)) {
		t.Fatal("same secret and challenge must yield the same response")
	}
}

func TestSimulatedProviderDiffersAcrossSecrets(t *testing.T) {
	p1 := NewSimulatedProvider([]byte("secret-a"))
	p2 := NewSimulatedProvider([]byte("secret-b"))
	if p1.PUFToMAC().Equal(p2.PUFToMAC()) {
		t.Fatal("different secrets should (overwhelmingly) yield different MACs")
	}
}

func TestGetPUFResponseVariesByChallenge(t *testing.T) {
	p := NewSimulatedProvider([]byte("secret-c"))
	m1 := [6]byte{1, 1, 1, 1, 1, 1}
	m2 := [6]byte{2, 2, 2, 2, 2, 2}
	r1 := p.GetPUFResponse(m1)
	r2 := p.GetPUFResponse(m2)
	if r1.Equal(r2) {
		t.Fatal("different challenges should (overwhelmingly) yield different responses")
	}
}
