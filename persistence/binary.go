package persistence

import (
	"errors"
	"io"
	"unsafe"
)

// Writer writes fixed-width values in native byte order.
//
// The first error is sticky: later writes are no-ops and Err reports it, so
// encoders can write a whole record and check once.
type Writer struct {
	w   io.Writer
	buf [8]byte
	err error
	n   int64
}

// NewWriter creates a new binary writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (bw *Writer) write(p []byte) {
	if bw.err != nil {
		return
	}
	n, err := bw.w.Write(p)
	bw.n += int64(n)
	bw.err = err
}

// Uint64 writes v as 8 bytes.
func (bw *Writer) Uint64(v uint64) {
	ByteOrder.PutUint64(bw.buf[:], v)
	bw.write(bw.buf[:8])
}

// Uint32 writes v as 4 bytes.
func (bw *Writer) Uint32(v uint32) {
	ByteOrder.PutUint32(bw.buf[:], v)
	bw.write(bw.buf[:4])
}

// Uint16 writes v as 2 bytes.
func (bw *Writer) Uint16(v uint16) {
	ByteOrder.PutUint16(bw.buf[:], v)
	bw.write(bw.buf[:2])
}

// Byte writes a single byte.
func (bw *Writer) Byte(v byte) {
	bw.buf[0] = v
	bw.write(bw.buf[:1])
}

// Bool writes v as one byte (0 or 1).
func (bw *Writer) Bool(v bool) {
	if v {
		bw.Byte(1)
		return
	}
	bw.Byte(0)
}

// Uint64Slice writes s as raw native-order bytes.
func (bw *Writer) Uint64Slice(s []uint64) {
	if len(s) == 0 {
		return
	}
	bw.write(unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*8))
}

// Float32Slice writes s as raw native-order bytes.
func (bw *Writer) Float32Slice(s []float32) {
	if len(s) == 0 {
		return
	}
	bw.write(unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4))
}

// Written returns the number of bytes written so far.
func (bw *Writer) Written() int64 { return bw.n }

// Err returns the first write error.
func (bw *Writer) Err() error { return bw.err }

// Reader reads fixed-width values in native byte order. Errors are sticky
// like Writer's; a short read surfaces as io.ErrUnexpectedEOF.
type Reader struct {
	r   io.Reader
	buf [8]byte
	err error
}

// NewReader creates a new binary reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (br *Reader) read(p []byte) bool {
	if br.err != nil {
		return false
	}
	if _, err := io.ReadFull(br.r, p); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		br.err = err
		return false
	}
	return true
}

// Uint64 reads 8 bytes.
func (br *Reader) Uint64() uint64 {
	if !br.read(br.buf[:8]) {
		return 0
	}
	return ByteOrder.Uint64(br.buf[:8])
}

// Uint32 reads 4 bytes.
func (br *Reader) Uint32() uint32 {
	if !br.read(br.buf[:4]) {
		return 0
	}
	return ByteOrder.Uint32(br.buf[:4])
}

// Uint16 reads 2 bytes.
func (br *Reader) Uint16() uint16 {
	if !br.read(br.buf[:2]) {
		return 0
	}
	return ByteOrder.Uint16(br.buf[:2])
}

// Byte reads one byte.
func (br *Reader) Byte() byte {
	if !br.read(br.buf[:1]) {
		return 0
	}
	return br.buf[0]
}

// Bool reads one byte; any non-zero value is true.
func (br *Reader) Bool() bool {
	return br.Byte() != 0
}

// Uint64SliceInto fills s from raw native-order bytes.
func (br *Reader) Uint64SliceInto(s []uint64) {
	if len(s) == 0 {
		return
	}
	br.read(unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*8))
}

// Float32SliceInto fills s from raw native-order bytes.
func (br *Reader) Float32SliceInto(s []float32) {
	if len(s) == 0 {
		return
	}
	br.read(unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4))
}

// Err returns the first read error.
func (br *Reader) Err() error { return br.err }
