package store_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/calvinalkan/docbase/internal/document"
)

// Contract: concurrent read-modify-write cycles never lose an update.
func Test_Tx_Serializes_Concurrent_Writers_Without_Lost_Updates(t *testing.T) {
	t.Parallel()

	b := openBackend(t, 10*time.Second)

	const writers = 12

	var wg sync.WaitGroup

	errs := make(chan error, writers)

	for i := range writers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			tx, err := b.Begin(t.Context())
			if err != nil {
				errs <- err

				return
			}

			defer tx.Rollback()

			docs := append(tx.Documents(), document.Document{ID: fmt.Sprintf("doc_%02d", i)})

			errs <- tx.Commit(docs)
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("writer: %v", err)
		}
	}

	got := b.Load(t.Context())
	if len(got) != writers {
		t.Fatalf("documents = %d, want %d", len(got), writers)
	}

	seen := map[string]bool{}
	for _, d := range got {
		seen[d.ID] = true
	}

	for i := range writers {
		if id := fmt.Sprintf("doc_%02d", i); !seen[id] {
			t.Errorf("missing %s", id)
		}
	}
}

// Contract: readers never observe a partially written collection.
func Test_Load_Never_Observes_Partial_Write(t *testing.T) {
	t.Parallel()

	b := openBackend(t, 10*time.Second)

	big := make([]document.Document, 200)
	for i := range big {
		big[i] = document.Document{ID: fmt.Sprintf("doc_%03d", i), Content: fmt.Sprintf("%0512d", i)}
	}

	if err := b.Save(t.Context(), big[:1]); err != nil {
		t.Fatalf("save: %v", err)
	}

	done := make(chan struct{})

	go func() {
		defer close(done)

		for i := range 20 {
			n := 1
			if i%2 == 0 {
				n = len(big)
			}

			if err := b.Save(t.Context(), big[:n]); err != nil {
				t.Errorf("save: %v", err)

				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
		}

		if n := len(b.Load(t.Context())); n != 1 && n != len(big) {
			t.Fatalf("observed %d documents, want 1 or %d", n, len(big))
		}
	}
}
