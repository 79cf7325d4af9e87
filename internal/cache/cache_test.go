package cache

import "testing"

func TestBuildKeyScopedPerNamespaceAndProject(t *testing.T) {
	k1 := buildKey(NamespaceRetrieval, "acme", "q1")
	k2 := buildKey(NamespaceEmbedding, "acme", "q1")
	k3 := buildKey(NamespaceRetrieval, "beta", "q1")
	if k1 == k2 {
		t.Fatalf("expected distinct keys across namespaces, got %q for both", k1)
	}
	if k1 == k3 {
		t.Fatalf("expected distinct keys across projects, got %q for both", k1)
	}
}
