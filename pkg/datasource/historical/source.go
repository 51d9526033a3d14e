package historical

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"unsafe"

	"golang.org/x/exp/mmap"
)

var ErrEof = errors.New("EOF")

// Source reads fixed-size records of type T from a memory mapped file. T must
// not contain pointers or padding.
type Source[T any] struct {
	dataSourceName string
	reader         *mmap.ReaderAt
	bufferPool     *sync.Pool
}

func NewSource[T any](dataSourceName string) *Source[T] {
	return &Source[T]{
		dataSourceName: dataSourceName,
		bufferPool: &sync.Pool{
			New: func() interface{} {
				buffer := make([]byte, int(unsafe.Sizeof(*new(T))))
				return &buffer
			},
		},
	}
}

func (s *Source[T]) Open() error {
	var err error
	s.reader, err = mmap.Open(s.dataSourceName)
	if err != nil {
		return fmt.Errorf("unable to open data source %q: %w", s.dataSourceName, err)
	}
	return nil
}

func (s *Source[T]) Close() error {
	if s.reader == nil {
		return nil
	}
	return s.reader.Close()
}

func (s *Source[T]) Read(index int64, data *T) error {
	buffer := s.bufferPool.Get().(*[]byte)
	defer s.bufferPool.Put(buffer)

	offset := index * int64(len(*buffer))

	n, err := s.reader.ReadAt(*buffer, offset)
	if err != nil && err != io.EOF {
		return fmt.Errorf("unable to read: %w", err)
	}
	if n < len(*buffer) {
		return ErrEof
	}

	*data = *(*T)(unsafe.Pointer(&(*buffer)[0])) // #nosec G103
	return nil
}

func (s *Source[T]) EntryCount() (int64, error) {
	entrySize := int64(unsafe.Sizeof(*new(T)))
	if entrySize == 0 {
		return 0, fmt.Errorf("size of T is zero")
	}

	totalSize := int64(s.reader.Len())
	if totalSize%entrySize != 0 {
		return 0, fmt.Errorf("data source %q: file size is not a multiple of entry size", s.dataSourceName)
	}

	return totalSize / entrySize, nil
}

// Search returns the smallest index in [low, high) for which pred is true,
// or high when there is none. pred must be monotonic over the file.
func (s *Source[T]) Search(low, high int64, pred func(*T) bool) (int64, error) {
	var entry T
	for low < high {
		mid := low + (high-low)/2
		if err := s.Read(mid, &entry); err != nil {
			return 0, fmt.Errorf("error reading entry at index %d: %w", mid, err)
		}
		if pred(&entry) {
			high = mid
		} else {
			low = mid + 1
		}
	}
	return low, nil
}
