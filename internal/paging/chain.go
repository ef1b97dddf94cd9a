package paging

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// WriteChain stores blocks in order across as many linked pages as needed
// and returns the id of the first page. base must exist.
func WriteChain(base string, blocks [][]byte) (uuid.UUID, error) {
	pages := []*Page{NewPage(uuid.Nil, uuid.Nil)}
	for _, block := range blocks {
		curr := pages[len(pages)-1]
		err := curr.Push(block)
		if err == ErrPageOverflow {
			next := NewPage(curr.id, uuid.Nil)
			curr.Next = next.id
			pages = append(pages, next)
			err = next.Push(block)
		}
		if err != nil {
			return uuid.Nil, err
		}
	}

	for _, p := range pages {
		if err := p.WriteToFile(base); err != nil {
			return uuid.Nil, err
		}
	}
	return pages[0].id, nil
}

// ReadChain calls fn with every block of the chain starting at first, in write order.
func ReadChain(base string, first uuid.UUID, fn func(block []byte) error) error {
	seen := map[uuid.UUID]bool{}
	for id := first; id != uuid.Nil; {
		if seen[id] {
			return fmt.Errorf("page chain loops back to %s", id)
		}
		seen[id] = true

		p, err := LoadPage(base, id)
		if err != nil {
			return err
		}
		r := p.NewReader()
		for r.ReadNext() {
			if err := fn(r.Buf); err != nil {
				return err
			}
		}
		if err := r.Err(); err != nil {
			return fmt.Errorf("page %s: %w", id, err)
		}
		id = p.Next
	}
	return nil
}

// ResetDir empties base, creating it when missing.
func ResetDir(base string) error {
	if err := os.RemoveAll(base); err != nil {
		return err
	}
	return os.MkdirAll(base, 0755)
}
