package paging

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/google/uuid"
)

const (
	MAX_PAGE_SIZE    = 4000 // 4KB
	PAGE_HEADER_SIZE = 48
)

// Page is one file of a chain: a header of three ids (self, previous, next)
// followed by length prefixed data blocks.
type Page struct {
	id uuid.UUID

	Prev uuid.UUID
	Next uuid.UUID

	buf []byte
}

func NewPage(prev_page_id, next_page_id uuid.UUID) *Page {
	return &Page{uuid.New(), prev_page_id, next_page_id, []byte{}}
}

func (p *Page) Id() uuid.UUID { return p.id }

// Size is the number of data bytes in the page, block headers included.
func (p *Page) Size() int { return len(p.buf) }

var ErrInvalidPageHeader = errors.New("invalid page headers")

func LoadPage(base string, id uuid.UUID) (*Page, error) {
	data, err := os.ReadFile(path.Join(base, id.String()))
	if err != nil {
		return nil, err
	}
	if len(data) < PAGE_HEADER_SIZE {
		return nil, fmt.Errorf("%w: page %s is %d bytes", ErrInvalidPageHeader, id, len(data))
	}

	ids := make([]uuid.UUID, 3)
	for i := range ids {
		ids[i], err = uuid.FromBytes(data[i*16 : (i+1)*16])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPageHeader, err)
		}
	}
	if ids[0] != id {
		return nil, fmt.Errorf("%w: page id mismatch %s vs %s", ErrInvalidPageHeader, id, ids[0])
	}

	return &Page{ids[0], ids[1], ids[2], data[PAGE_HEADER_SIZE:]}, nil
}

func (p *Page) WriteToFile(base string) error {
	buf := make([]byte, 0, PAGE_HEADER_SIZE+len(p.buf))
	buf = append(buf, p.id[:]...)
	buf = append(buf, p.Prev[:]...)
	buf = append(buf, p.Next[:]...)
	buf = append(buf, p.buf...)

	return os.WriteFile(path.Join(base, p.id.String()), buf, 0644)
}

var (
	ErrPageOverflow = errors.New("page overflow")
	ErrMaxDataSize  = errors.New("maximum data size exceeded")
)

const block_header_size = 4

// Push appends a block. A block larger than a page is only accepted by an empty page.
func (p *Page) Push(data []byte) error {
	data_size := len(data)
	if uint64(data_size) > uint64(^uint32(0)) {
		return ErrMaxDataSize
	}
	if len(p.buf) > 0 && len(p.buf)+block_header_size+data_size > MAX_PAGE_SIZE {
		return ErrPageOverflow
	}

	header := make([]byte, block_header_size)
	binary.BigEndian.PutUint32(header, uint32(data_size))
	p.buf = append(p.buf, header...)
	p.buf = append(p.buf, data...)
	return nil
}

func (p *Page) NewReader() *PageReader {
	return &PageReader{r: bufio.NewReader(bytes.NewReader(p.buf))}
}

type PageReader struct {
	r   *bufio.Reader
	err error

	Buf []byte
}

// ReadNext loads the next block into Buf. It returns false at the end of the page
// or on a truncated block, which Err reports.
func (r *PageReader) ReadNext() bool {
	header := make([]byte, block_header_size)
	if _, err := io.ReadFull(r.r, header); err != nil {
		if err != io.EOF {
			r.err = err
		}
		return false
	}

	buf := make([]byte, binary.BigEndian.Uint32(header))
	if _, err := io.ReadFull(r.r, buf); err != nil {
		r.err = err
		return false
	}
	r.Buf = buf
	return true
}

func (r *PageReader) Err() error { return r.err }
