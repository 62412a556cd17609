package retrieval

import (
	"context"
	"testing"
)

func TestNullEngine_AlwaysEmpty(t *testing.T) {
	var e Engine = NullEngine{}
	res, err := e.Retrieve(context.Background(), "anything", 1000, 5)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(res.Artifacts) != 0 || res.CacheHit {
		t.Fatalf("expected empty non-cache result, got %+v", res)
	}
}
