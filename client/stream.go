package client

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"studyboard/domain"
)

// maxEventSize bounds one event's accumulated data. Boards are sent whole, so
// the bound sits far above any realistic projection.
var maxEventSize = 64 << 20

var errEventTooLarge = errors.New("board event too large")

// Stream is an open board subscription.
type Stream struct {
	updates chan domain.Board

	mu  sync.Mutex
	err error
}

// Updates delivers every projection the server pushes. It is closed when the
// stream ends or its context is cancelled.
func (s *Stream) Updates() <-chan domain.Board { return s.updates }

// Err reports why the stream ended once Updates is closed. It is nil when the
// context was cancelled; any other end wraps domain.ErrTransient so the caller
// knows to re-fetch and subscribe again.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Subscribe opens the board stream.
func (c *HTTPClient) Subscribe(ctx context.Context) (*Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/board/stream", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.Bearer)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: open board stream: %v", domain.ErrTransient, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, responseError(resp)
	}

	s := &Stream{updates: make(chan domain.Board)}
	go func() {
		defer close(s.updates)
		defer resp.Body.Close()
		err := s.read(ctx, bufio.NewReaderSize(resp.Body, 64<<10))
		if ctx.Err() != nil {
			return
		}
		log.WithError(err).Warn("board stream ended")
		s.fail(fmt.Errorf("%w: board stream: %w", domain.ErrTransient, err))
	}()
	return s, nil
}

// read dispatches events until the body ends. It never returns nil.
func (s *Stream) read(ctx context.Context, r *bufio.Reader) error {
	var (
		event string
		data  []byte
	)
	for {
		line, err := readLine(r, maxEventSize-len(data)+len("\r\n"))
		if err != nil {
			if err == io.EOF {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		switch {
		case len(line) == 0:
			if event == "error" {
				var body struct {
					Error   string `json:"error"`
					Message string `json:"message"`
				}
				_ = sonic.Unmarshal(data, &body)
				return fmt.Errorf("server error %s: %s", body.Error, body.Message)
			}
			if len(data) == 0 {
				event = ""
				continue
			}
			var b domain.Board
			if err := sonic.Unmarshal(data, &b); err != nil {
				log.WithError(err).Warn("unable to parse board event")
			} else {
				select {
				case s.updates <- b:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			// Decoded strings may alias data.
			event, data = "", nil
		case bytes.HasPrefix(line, []byte("data:")):
			if len(data) > 0 {
				data = append(data, '\n')
			}
			data = append(data, fieldValue(line, "data:")...)
		case bytes.HasPrefix(line, []byte("event:")):
			event = string(fieldValue(line, "event:"))
		}
		// comments (": ping") and other fields are ignored
	}
}

// readLine returns the next line without its terminator. The returned slice is
// not shared with r.
func readLine(r *bufio.Reader, limit int) ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		if len(line)+len(chunk) > limit {
			return nil, errEventTooLarge
		}
		line = append(line, chunk...)
		switch {
		case err == bufio.ErrBufferFull:
			continue
		case err != nil:
			return nil, err
		}
		return bytes.TrimSuffix(line[:len(line)-1], []byte("\r")), nil
	}
}

func fieldValue(line []byte, field string) []byte {
	return bytes.TrimPrefix(line[len(field):], []byte(" "))
}
