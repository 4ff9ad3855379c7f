package kvcache

import (
	"bufio"
	"bytes"
	"io"
	"strconv"

	"github.com/facebookgo/stackerr"
	"github.com/pkg/errors"
)

const (
	MaxKeySize         = 250
	MaxItemSize        = 128 * (1 << 20) // 128 MB.
	DefaultMaxItemSize = 1 << 20
	MaxCommandSize     = 1 << 12

	Separator = "\r\n"

	SetCommand     = "set"
	AddCommand     = "add"
	ReplaceCommand = "replace"
	GetCommand     = "get"
	GetsCommand    = "gets"
	DeleteCommand  = "delete"
	QuitCommand    = "quit"

	NoReplyOption = "noreply"

	StoredResponse      = "STORED"
	NotStoredResponse   = "NOT_STORED"
	ValueResponse       = "VALUE"
	EndResponse         = "END"
	DeletedResponse     = "DELETED"
	NotFoundResponse    = "NOT_FOUND"
	ErrorResponse       = "ERROR"
	ClientErrorResponse = "CLIENT_ERROR"
	ServerErrorResponse = "SERVER_ERROR"

	// Implementation specific consts.
	InBufferSize  = 16 * (1 << 10)
	OutBufferSize = 16 * (1 << 10)
)

var _ = func() (_ struct{}) {
	if MaxCommandSize > InBufferSize {
		panic("max command should fit in input buffer")
	}
	return
}()

var (
	ErrTooLargeKey          = errors.New("too large key")
	ErrTooLargeItem         = errors.New("too large item")
	ErrTooLargeForCache     = errors.New("object too large for cache")
	ErrInvalidOption        = errors.New("invalid option")
	ErrTooManyFields        = errors.New("too many fields")
	ErrMoreFieldsRequired   = errors.New("more fields required")
	ErrTooLargeCommand      = errors.New("command length is too big")
	ErrEmptyCommand         = errors.New("empty command")
	ErrFieldsParseError     = errors.New("fields parse error")
	ErrBadDataSize          = errors.New("bad data chunk size")
	ErrInvalidLineSeparator = errors.New("invalid line separator")
	ErrInvalidCharInKey     = errors.New("key contains invalid characters")
	ErrEmptyKey             = errors.New("empty key")

	separatorBytes = []byte(Separator)
)

func isInvalidFieldChar(b byte) bool {
	return b <= ' ' || b == 127
}

func checkKey(p []byte) error {
	if len(p) == 0 {
		return stackerr.Wrap(ErrEmptyKey)
	}
	if len(p) > MaxKeySize {
		return stackerr.Wrap(ErrTooLargeKey)
	}
	for _, b := range p {
		if isInvalidFieldChar(b) {
			return stackerr.Wrap(ErrInvalidCharInKey)
		}
	}
	return nil
}

// storeMeta is parsed storage command line: <key> <flags> <exptime> <bytes> [noreply].
// Flags and exptime are validated, but not stored.
type storeMeta struct {
	key     []byte
	flags   uint32
	exptime int64
	bytes   int
	noreply bool
}

// parseStoreFields sets m.bytes to -1 if the data block size is unknown.
// The size is parsed before other fields, so on their errors the data block can still be skipped.
func parseStoreFields(fields [][]byte) (m storeMeta, err error) {
	const extraRequired = 3
	m.bytes = -1
	if len(fields) > extraRequired {
		var bytes uint64
		bytes, err = strconv.ParseUint(string(fields[extraRequired]), 10, 32)
		if err != nil {
			err = stackerr.Wrap(errors.Wrapf(ErrBadDataSize, "%s", err))
			return
		}
		m.bytes = int(bytes)
	}
	var extra [][]byte
	m.key, extra, m.noreply, err = parseKeyFields(fields, extraRequired)
	if err != nil {
		return
	}
	err = checkKey(m.key)
	if err != nil {
		return
	}
	var flags uint64
	flags, err = strconv.ParseUint(string(extra[0]), 10, 32)
	if err != nil {
		err = stackerr.Newf("%s: %s", ErrFieldsParseError, err)
		return
	}
	m.exptime, err = strconv.ParseInt(string(extra[1]), 10, 64)
	if err != nil {
		err = stackerr.Newf("%s: %s", ErrFieldsParseError, err)
		return
	}
	if m.bytes > MaxItemSize {
		err = stackerr.Wrap(ErrTooLargeItem)
		return
	}
	m.flags = uint32(flags)
	return
}

func parseGetFields(fields [][]byte) (keys [][]byte, err error) {
	if len(fields) == 0 {
		err = stackerr.Wrap(ErrMoreFieldsRequired)
		return
	}
	for _, key := range fields {
		err = checkKey(key)
		if err != nil {
			return
		}
	}
	keys = fields
	return
}

func parseDeleteFields(fields [][]byte) (key []byte, noreply bool, err error) {
	const extraRequired = 0
	key, _, noreply, err = parseKeyFields(fields, extraRequired)
	if err != nil {
		return
	}
	err = checkKey(key)
	return
}

func parseKeyFields(fields [][]byte, extraRequired int) (key []byte, extra [][]byte, noreply bool, err error) {
	if len(fields) < 1+extraRequired {
		err = stackerr.Wrap(ErrMoreFieldsRequired)
		return
	}
	key = fields[0]
	extra = fields[1:][:extraRequired]
	options := fields[1:][extraRequired:]
	const maxOptions = 1
	if len(options) > maxOptions {
		err = stackerr.Wrap(ErrTooManyFields)
		return
	}
	if len(options) != 0 {
		if string(options[0]) != NoReplyOption {
			err = stackerr.Wrap(ErrInvalidOption)
			return
		}
		noreply = true
	}
	return
}

type reader struct {
	*bufio.Reader
}

func newReader(r io.Reader, size int) reader {
	return reader{bufio.NewReaderSize(r, size)}
}

// WARN: returned byte slices points into read buffer and invalidated after next read.
func (r reader) readCommand() (command []byte, fields [][]byte, clientErr, err error) {
	var lineWithSeparator []byte
	// We accept only "\r\n" separator, so can't use ReadLine here.
	lineWithSeparator, err = r.ReadSlice('\n')
	if err == bufio.ErrBufferFull || err == nil && len(lineWithSeparator) > MaxCommandSize {
		clientErr = stackerr.Wrap(ErrTooLargeCommand)
		if err == bufio.ErrBufferFull {
			err = r.discardCommand()
		}
		return
	}
	if err == io.EOF {
		if len(lineWithSeparator) != 0 {
			err = stackerr.Wrap(io.ErrUnexpectedEOF)
		}
		return
	}
	if err != nil {
		err = stackerr.Wrap(err)
		return
	}
	if !bytes.HasSuffix(lineWithSeparator, separatorBytes) {
		clientErr = stackerr.Wrap(ErrInvalidLineSeparator)
		return
	}
	line := bytes.TrimSuffix(lineWithSeparator, separatorBytes)
	split := bytes.Fields(line)
	if len(split) == 0 {
		clientErr = stackerr.Wrap(ErrEmptyCommand)
		return
	}
	command = split[0]
	fields = split[1:]
	return
}

// readDataBlock reads data block of passed size followed by separator into new slice.
func (r reader) readDataBlock(size int) (data []byte, clientErr, err error) {
	data = make([]byte, size)
	_, err = io.ReadFull(r, data)
	if err != nil {
		err = stackerr.Wrap(err)
		return
	}
	var sep []byte
	sep, err = r.ReadSlice('\n')
	if err != nil {
		err = stackerr.Wrap(err)
		return
	}
	if !bytes.Equal(sep, separatorBytes) {
		clientErr = stackerr.Wrap(ErrInvalidLineSeparator)
	}
	return
}

// discardCommand discard all input until next separator.
func (r reader) discardCommand() error {
	for {
		lineWithSeparator, err := r.ReadSlice('\n')
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil {
			return stackerr.Wrap(err)
		}
		if !bytes.HasSuffix(lineWithSeparator, separatorBytes) {
			continue
		}
		return nil
	}
}

// discardDataBlock skips data block of too large item.
func (r reader) discardDataBlock(size int) error {
	_, err := r.Discard(size + len(Separator))
	return stackerr.Wrap(err)
}
