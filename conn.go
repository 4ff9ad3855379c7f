package kvcache

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/facebookgo/stackerr"

	"github.com/skipor/kvcache/log"
)

// deadliner is implemented by net.Conn. Connections without it are served without timeouts.
type deadliner interface {
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

type conn struct {
	reader
	*bufio.Writer
	rwc io.ReadWriteCloser
	*ConnMeta
	ctx context.Context
	log log.Logger
}

func newConn(ctx context.Context, l log.Logger, m *ConnMeta, rwc io.ReadWriteCloser) *conn {
	return &conn{
		reader:   newReader(rwc, m.InBufferSize),
		Writer:   bufio.NewWriterSize(rwc, m.OutBufferSize),
		rwc:      rwc,
		ConnMeta: m,
		ctx:      ctx,
		log:      l,
	}
}

func (c *conn) serve() {
	c.log.Debug("Serve connection.")
	defer func() {
		if r := recover(); r != nil {
			c.serverError(stackerr.Newf("Panic: %v", r))
		}
		c.Close()
		c.log.Debug("Connection closed.")
	}()

	err := c.loop()
	if err != nil {
		c.serverError(err)
	}
}

func (c *conn) Close() error {
	c.Flush()
	return c.rwc.Close()
}

func (c *conn) loop() error {
	for {
		c.setDeadlines()
		if c.ctx.Err() != nil {
			c.log.Debug("Server is stopping.")
			return nil
		}
		command, fields, clientErr, err := c.readCommand()
		if err != nil {
			switch {
			case err == io.EOF:
				// Just client disconnect. Ok.
				return nil
			case c.ctx.Err() != nil:
				c.log.Debug("Read interrupted by server stop.")
				return nil
			case isTimeout(err):
				c.log.Debug("Idle timeout.")
				return nil
			}
			return err
		}
		if clientErr == nil {
			c.log.Debugf("Command: %s.", command)
			switch string(command) { // No allocation.
			case GetCommand, GetsCommand:
				clientErr, err = c.get(fields)
			case SetCommand:
				clientErr, err = c.store(fields, c.Cache.Put, ServerErrorResponse+" "+ErrTooLargeForCache.Error())
			case AddCommand:
				clientErr, err = c.store(fields, c.Cache.PutIfAbsent, NotStoredResponse)
			case ReplaceCommand:
				clientErr, err = c.store(fields, c.Cache.Set, NotStoredResponse)
			case DeleteCommand:
				clientErr, err = c.delete(fields)
			case QuitCommand:
				c.log.Debug("Quit.")
				return nil
			default:
				c.log.Errorf("Unexpected command: %s", command)
				err = c.sendResponse(ErrorResponse)
			}
		}
		if clientErr != nil && err == nil {
			err = c.sendClientError(clientErr)
			if err == nil && unwrap(clientErr) == ErrBadDataSize {
				c.log.Debug("Data block size is unknown. Closing connection.")
				return nil
			}
		}
		if err != nil {
			return err
		}
	}
}

func (c *conn) setDeadlines() {
	d, ok := c.rwc.(deadliner)
	if !ok || c.Timeout <= 0 {
		return
	}
	deadline := time.Now().Add(c.Timeout)
	d.SetReadDeadline(deadline)
	d.SetWriteDeadline(deadline)
}

func (c *conn) get(fields [][]byte) (clientErr, err error) {
	var keys [][]byte
	keys, clientErr = parseGetFields(fields)
	if clientErr != nil {
		return
	}
	var found int
	for _, key := range keys {
		value, ok := c.Cache.Get(key)
		if !ok {
			continue
		}
		found++
		c.WriteString(ValueResponse)
		c.WriteByte(' ')
		c.Write(key)
		fmt.Fprintf(c, " 0 %v"+Separator, len(value))
		c.Write(value)
		_, err = c.WriteString(Separator)
		if err != nil {
			err = stackerr.Wrap(err)
			return
		}
	}
	c.log.Debugf("Sending %v found values.", found)
	err = c.sendResponse(EndResponse)
	return
}

// store handles set, add and replace. Op result false is reported with failResponse.
func (c *conn) store(fields [][]byte, op func(key, value []byte) bool, failResponse string) (clientErr, err error) {
	var m storeMeta
	m, clientErr = parseStoreFields(fields)
	if clientErr == nil && m.bytes > c.MaxItemSize {
		clientErr = stackerr.Wrap(ErrTooLargeItem)
	}
	if clientErr != nil {
		if m.bytes >= 0 {
			err = c.discardDataBlock(m.bytes)
		}
		return
	}
	// Key points into read buffer, which is overwritten by data block read.
	key := append([]byte(nil), m.key...)

	var data []byte
	data, clientErr, err = c.readDataBlock(m.bytes)
	if err != nil || clientErr != nil {
		return
	}

	stored := op(key, data)

	if m.noreply {
		err = c.Flush()
		return
	}
	response := StoredResponse
	if !stored {
		response = failResponse
	}
	err = c.sendResponse(response)
	return
}

func (c *conn) delete(fields [][]byte) (clientErr, err error) {
	var key []byte
	var noreply bool
	key, noreply, clientErr = parseDeleteFields(fields)
	if clientErr != nil {
		return
	}

	deleted := c.Cache.Delete(key)

	if noreply {
		err = c.Flush()
		return
	}
	var response string
	if deleted {
		response = DeletedResponse
	} else {
		response = NotFoundResponse
	}
	err = c.sendResponse(response)
	return
}

func (c *conn) serverError(err error) {
	c.log.Error("Server error: ", err)
	err = unwrap(err)
	if err == io.ErrUnexpectedEOF || isTimeout(err) {
		return
	}
	c.sendResponse(fmt.Sprintf("%s %s", ServerErrorResponse, err))
}

func (c *conn) sendClientError(err error) error {
	c.log.Warn("Client error: ", err)
	err = unwrap(err)
	return c.sendResponse(fmt.Sprintf("%s %s", ClientErrorResponse, err))
}

func (c *conn) sendResponse(res string) error {
	c.WriteString(res)
	c.WriteString(Separator)
	return c.Flush()
}

func (c *conn) Flush() error {
	return stackerr.Wrap(c.Writer.Flush())
}
