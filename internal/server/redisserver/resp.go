package redisserver

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Protocol limits.
const (
	MaxArrayLen  = 1024
	MaxBulkLen   = 1 << 20
	MaxInlineLen = 4 * 1024
	maxHeaderLen = 64
)

var (
	ErrProtocol      = errors.New("resp: protocol error")
	ErrLimitExceeded = errors.New("resp: limit exceeded")
)

// Reader decodes client commands: RESP arrays of bulk strings, or inline
// space-separated lines.
type Reader struct {
	br *bufio.Reader
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// Peek blocks until at least one byte is buffered.
func (r *Reader) Peek() error {
	_, err := r.br.Peek(1)
	return err
}

// ReadCommand returns the next command's arguments. An empty line yields
// a nil slice.
func (r *Reader) ReadCommand() ([][]byte, error) {
	b, err := r.br.Peek(1)
	if err != nil {
		return nil, err
	}
	if b[0] == '*' {
		return r.readArray()
	}

	line, err := r.readLine(MaxInlineLen)
	if err != nil {
		return nil, err
	}
	fields := bytes.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

func (r *Reader) readArray() ([][]byte, error) {
	n, err := r.readHeader('*')
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	if n > MaxArrayLen {
		return nil, fmt.Errorf("%w: array length %d > %d", ErrLimitExceeded, n, MaxArrayLen)
	}

	args := make([][]byte, n)
	for i := range args {
		if args[i], err = r.readBulk(); err != nil {
			return nil, err
		}
	}
	return args, nil
}

func (r *Reader) readBulk() ([]byte, error) {
	n, err := r.readHeader('$')
	if err != nil {
		return nil, err
	}
	switch {
	case n == -1:
		return nil, nil
	case n < 0:
		return nil, fmt.Errorf("%w: bulk length %d", ErrProtocol, n)
	case n > MaxBulkLen:
		return nil, fmt.Errorf("%w: bulk length %d > %d", ErrLimitExceeded, n, MaxBulkLen)
	}

	buf := make([]byte, n+2)
	if _, err := io.ReadFull(r.br, buf); err != nil {
		return nil, err
	}
	if buf[n] != '\r' || buf[n+1] != '\n' {
		return nil, fmt.Errorf("%w: bulk not terminated by CRLF", ErrProtocol)
	}
	return buf[:n], nil
}

// readHeader reads "<prefix><int>\r\n".
func (r *Reader) readHeader(prefix byte) (int, error) {
	line, err := r.readLine(maxHeaderLen)
	if err != nil {
		return 0, err
	}
	if len(line) < 2 || line[0] != prefix {
		return 0, fmt.Errorf("%w: expected %q header", ErrProtocol, prefix)
	}
	n, err := strconv.Atoi(string(line[1:]))
	if err != nil {
		return 0, fmt.Errorf("%w: invalid length %q", ErrProtocol, line[1:])
	}
	return n, nil
}

// readLine reads up to CRLF, rejecting lines longer than limit.
func (r *Reader) readLine(limit int) ([]byte, error) {
	var line []byte
	for {
		frag, err := r.br.ReadSlice('\n')
		line = append(line, frag...)
		if len(line) > limit+2 {
			return nil, fmt.Errorf("%w: line longer than %d", ErrLimitExceeded, limit)
		}
		if err == nil {
			break
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return nil, err
		}
	}
	if !bytes.HasSuffix(line, []byte("\r\n")) {
		return nil, fmt.Errorf("%w: missing CRLF", ErrProtocol)
	}
	return line[:len(line)-2], nil
}

// Writer encodes replies. The first write error sticks and is returned
// by Flush.
type Writer struct {
	bw  *bufio.Writer
	err error
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

func (w *Writer) write(parts ...string) {
	for _, p := range parts {
		if w.err != nil {
			return
		}
		_, w.err = w.bw.WriteString(p)
	}
}

// Simple writes +s.
func (w *Writer) Simple(s string) { w.write("+", s, "\r\n") }

// Error writes -msg. Line breaks in msg are flattened.
func (w *Writer) Error(msg string) {
	w.write("-", strings.NewReplacer("\r", " ", "\n", " ").Replace(msg), "\r\n")
}

// Int writes :n.
func (w *Writer) Int(n int64) { w.write(":", strconv.FormatInt(n, 10), "\r\n") }

// Null writes the null bulk string.
func (w *Writer) Null() { w.write("$-1\r\n") }

// Bulk writes a bulk string.
func (w *Writer) Bulk(s string) {
	w.write("$", strconv.Itoa(len(s)), "\r\n", s, "\r\n")
}

// Array writes an array header for n elements.
func (w *Writer) Array(n int) { w.write("*", strconv.Itoa(n), "\r\n") }

// Flush sends buffered replies.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	return w.bw.Flush()
}
