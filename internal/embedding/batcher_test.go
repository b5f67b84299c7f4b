package embedding

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestEmbedAllSuccess(t *testing.T) {
	embedder := NewMockEmbedder(4)
	batcher := NewBatcher(embedder, 2)

	texts := []string{"one", "two", "three", "four", "five"}
	vectors, errs, calls := batcher.EmbedAll(context.Background(), texts)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("vectors length = %d, want %d", len(vectors), len(texts))
	}
	for i, vec := range vectors {
		if len(vec) != 4 {
			t.Errorf("vector %d has dimension %d", i, len(vec))
		}
	}
	// 5 texts at batch size 2 = 3 provider calls.
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestEmbedAllIsolatesSingleFailure(t *testing.T) {
	embedder := NewMockEmbedder(4)
	embedder.FailText("bad", errors.New("provider rejected input"))
	batcher := NewBatcher(embedder, 10)

	texts := []string{"a", "bad", "c", "d"}
	vectors, errs, _ := batcher.EmbedAll(context.Background(), texts)
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d: %v", len(errs), errs)
	}
	if errs[0].Index != 1 {
		t.Errorf("failed index = %d, want 1", errs[0].Index)
	}
	if vectors[1] != nil {
		t.Error("failed item has a vector")
	}
	for _, i := range []int{0, 2, 3} {
		if vectors[i] == nil {
			t.Errorf("sibling item %d dropped by failing batch", i)
		}
	}
}

func TestEmbedAllMultipleBatchesPartialFailure(t *testing.T) {
	embedder := NewMockEmbedder(4)
	embedder.FailText("bad-7", errors.New("boom"))
	batcher := NewBatcher(embedder, 3)

	texts := make([]string, 10)
	for i := range texts {
		texts[i] = fmt.Sprintf("text-%d", i)
	}
	texts[7] = "bad-7"

	vectors, errs, _ := batcher.EmbedAll(context.Background(), texts)
	if len(errs) != 1 || errs[0].Index != 7 {
		t.Fatalf("errs = %v, want single failure at 7", errs)
	}
	ok := 0
	for _, vec := range vectors {
		if vec != nil {
			ok++
		}
	}
	if ok != 9 {
		t.Errorf("%d successes, want 9", ok)
	}
}

func TestEmbedAllDeterministicAlignment(t *testing.T) {
	embedder := NewMockEmbedder(4)
	batcher := NewBatcher(embedder, 2)
	texts := []string{"alpha", "beta"}
	v1, _, _ := batcher.EmbedAll(context.Background(), texts)
	v2, _, _ := batcher.EmbedAll(context.Background(), texts)
	for i := range texts {
		for j := range v1[i] {
			if v1[i][j] != v2[i][j] {
				t.Fatalf("embedding for %q not stable across runs", texts[i])
			}
		}
	}
}

func TestEmbedAllCancelledContext(t *testing.T) {
	embedder := NewMockEmbedder(4)
	batcher := NewBatcher(embedder, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, errs, _ := batcher.EmbedAll(ctx, []string{"a", "b", "c"})
	if len(errs) != 3 {
		t.Errorf("expected all items to fail on cancelled context, got %d errors", len(errs))
	}
}

func TestEmbedAllEmptyInput(t *testing.T) {
	batcher := NewBatcher(NewMockEmbedder(4), 2)
	vectors, errs, calls := batcher.EmbedAll(context.Background(), nil)
	if len(vectors) != 0 || len(errs) != 0 || calls != 0 {
		t.Errorf("empty input produced work: %d vectors, %d errors, %d calls", len(vectors), len(errs), calls)
	}
}
