// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ManuGH/tgstream/internal/domain/session/lifecycle"
	"github.com/ManuGH/tgstream/internal/domain/session/ports"
	"github.com/ManuGH/tgstream/internal/log"
)

// startUpload replaces any running upload for targetID. The upload is not
// bound to ctx beyond its values; Leave or Close end it.
func (c *Client) startUpload(ctx context.Context, targetID int64, chunks <-chan []byte) {
	c.stopUpload(targetID)

	upCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	u := &upload{cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	c.uploads[targetID] = u
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(u.done)
		defer cancel()

		err := c.upload(upCtx, targetID, chunks)

		c.mu.Lock()
		if c.uploads[targetID] == u {
			delete(c.uploads, targetID)
		}
		c.mu.Unlock()

		switch {
		case upCtx.Err() != nil:
			uploadsEnded.WithLabelValues("cancelled").Inc()
		case err != nil:
			uploadsEnded.WithLabelValues("failed").Inc()
			c.logger.Warn().Err(err).Int64(log.FieldTargetID, targetID).Msg("media upload failed")
			c.notifyEnd(ports.StreamEnd{TargetID: targetID, Err: err})
		default:
			uploadsEnded.WithLabelValues("completed").Inc()
		}
	}()
}

func (c *Client) stopUpload(targetID int64) {
	c.mu.Lock()
	u := c.uploads[targetID]
	delete(c.uploads, targetID)
	c.mu.Unlock()

	if u != nil {
		u.cancel()
		<-u.done
	}
}

func (c *Client) notifyEnd(ev ports.StreamEnd) {
	select {
	case c.ends <- ev:
	default:
		c.logger.Warn().Int64(log.FieldTargetID, ev.TargetID).Msg("stream end notification dropped")
	}
}

// upload streams chunks as one chunked PUT body. It returns nil when the
// chunk channel closed and the bridge accepted the body.
func (c *Client) upload(ctx context.Context, targetID int64, chunks <-chan []byte) error {
	pr, pw := io.Pipe()

	// The feeder outlives this call when the bridge answers before the body
	// ended; it exits once ctx is cancelled by the caller.
	eof := make(chan struct{})
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case chunk, ok := <-chunks:
				if !ok {
					close(eof)
					_ = pw.Close()
					return
				}
				if _, err := pw.Write(chunk); err != nil {
					drain(ctx, chunks)
					return
				}
				uploadBytes.Add(float64(len(chunk)))
			case <-ctx.Done():
				_ = pw.CloseWithError(ctx.Err())
				return
			}
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+callPath(targetID, "media"), pr)
	if err != nil {
		_ = pr.CloseWithError(err)
		return err
	}
	c.applyHeaders(req)
	req.Header.Set("Content-Type", mediaContentType)

	resp, err := c.media.Do(req)
	_ = pr.CloseWithError(errors.New("upload finished"))
	if err != nil {
		return fmt.Errorf("%w: media upload: %v", lifecycle.ErrConnectionFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return statusError(endpointCall+"/media", resp.StatusCode, readError(resp.Body))
	}
	select {
	case <-eof:
		return nil
	default:
		return fmt.Errorf("%w: bridge ended the media stream early", lifecycle.ErrConnectionFailed)
	}
}

// drain discards chunks after the bridge stopped reading so the producer
// never blocks on a dead upload.
func drain(ctx context.Context, chunks <-chan []byte) {
	for {
		select {
		case _, ok := <-chunks:
			if !ok {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
