package control

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

const maxRequestBytes = 1 << 20

// Response is the wire form of a control result. Error carries
// request-level rejections; operational failures live in Result.
type Response struct {
	Result
	Error string `json:"error,omitempty"`
}

// Server reads line-delimited JSON requests and writes one JSON
// response per line. A malformed line produces an error response
// rather than terminating the stream.
type Server struct {
	surface *Surface
	logger  *slog.Logger

	writeMu sync.Mutex
	out     io.Writer
}

// NewServer wraps the surface for stream transport.
func NewServer(surface *Surface, out io.Writer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{surface: surface, logger: logger, out: out}
}

// Serve processes requests from in until EOF, read error, or context
// cancellation. Unknown actions and bad parameters are reported to the
// client and do not end the session.
func (s *Server) Serve(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn("malformed control request", "error", err)
			if werr := s.write(Response{
				Result: Result{Outcome: OutcomeFailed, Detail: "malformed request"},
				Error:  ErrInvalidParams.Error(),
			}); werr != nil {
				return werr
			}
			continue
		}

		resp := s.handle(ctx, req)
		if err := s.write(resp); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("control: read request: %w", err)
	}
	return ctx.Err()
}

func (s *Server) handle(ctx context.Context, req Request) Response {
	result, err := s.surface.Dispatch(ctx, req)
	resp := Response{Result: result}
	if err != nil {
		resp.Error = err.Error()
		s.logger.Warn("control request rejected", "action", req.Action, "error", err)
	} else {
		s.logger.Info("control request handled", "action", req.Action, "outcome", result.Outcome)
	}
	return resp
}

func (s *Server) write(resp Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("control: encode response: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.out.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("control: write response: %w", err)
	}
	return nil
}
