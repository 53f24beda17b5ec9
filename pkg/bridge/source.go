// Package bridge keeps the pet renderer in sync with the shared blackboard.
//
// A Bridge polls a Source on its own ticker, independent of the camera
// frame rate, and pushes placement and emotion changes to a Renderer.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/teslashibe/go-moodpet/pkg/blackboard"
)

// Source yields the current shared state.
type Source interface {
	Snapshot(ctx context.Context) (blackboard.Snapshot, error)
}

// LocalSource reads an in-process board.
type LocalSource struct {
	Board *blackboard.Board
}

// Snapshot reads the board field by field.
func (s LocalSource) Snapshot(context.Context) (blackboard.Snapshot, error) {
	if s.Board == nil {
		return blackboard.Snapshot{}, errors.New("bridge: nil board")
	}
	return s.Board.Snapshot(), nil
}

// ErrRemoteStatus is returned when the state endpoint answers with an error.
var ErrRemoteStatus = errors.New("bridge: remote state request failed")

// RemoteSource polls GET /api/state of a moodpet control server.
type RemoteSource struct {
	client *resty.Client
}

// NewRemoteSource creates a source for a server base URL such as
// "http://127.0.0.1:8088".
func NewRemoteSource(baseURL string, timeout time.Duration) *RemoteSource {
	return &RemoteSource{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
	}
}

// Snapshot fetches the state.
func (s *RemoteSource) Snapshot(ctx context.Context) (blackboard.Snapshot, error) {
	var snap blackboard.Snapshot
	resp, err := s.client.R().
		SetContext(ctx).
		SetResult(&snap).
		Get("/api/state")
	if err != nil {
		return blackboard.Snapshot{}, fmt.Errorf("bridge: get state: %w", err)
	}
	if resp.IsError() {
		return blackboard.Snapshot{}, fmt.Errorf("%w: %s", ErrRemoteStatus, resp.Status())
	}
	return snap, nil
}
