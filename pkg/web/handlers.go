package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-moodpet/pkg/blackboard"
	"github.com/teslashibe/go-moodpet/pkg/camera"
	"github.com/teslashibe/go-moodpet/pkg/hub"
	"github.com/teslashibe/go-moodpet/pkg/pet"
	"github.com/teslashibe/go-moodpet/pkg/stream"
)

// Control panel slider ranges.
const (
	MinScale = 0.2
	MaxScale = 2.0
	MaxX     = 2000
	MaxY     = 1200
)

// StateUpdate is a partial update of the controller keys. The running flag
// is not part of it; use the start and stop endpoints.
type StateUpdate struct {
	PetType *string  `json:"pet_type,omitempty"`
	Scale   *float64 `json:"scale,omitempty"`
	X       *int     `json:"x,omitempty"`
	Y       *int     `json:"y,omitempty"`
	Mode    *string  `json:"mode,omitempty"`
}

// Validate returns every problem with the update, or nil.
func (u StateUpdate) Validate() []string {
	var errs []string
	if u.PetType != nil {
		if _, err := pet.Lookup(*u.PetType); err != nil {
			errs = append(errs, fmt.Sprintf("pet_type must be one of %v", pet.Names()))
		}
	}
	if u.Scale != nil && (*u.Scale < MinScale || *u.Scale > MaxScale) {
		errs = append(errs, fmt.Sprintf("scale must be between %.1f and %.1f", MinScale, MaxScale))
	}
	if u.X != nil && (*u.X < 0 || *u.X > MaxX) {
		errs = append(errs, fmt.Sprintf("x must be between 0 and %d", MaxX))
	}
	if u.Y != nil && (*u.Y < 0 || *u.Y > MaxY) {
		errs = append(errs, fmt.Sprintf("y must be between 0 and %d", MaxY))
	}
	if u.Mode != nil && *u.Mode != blackboard.ModeFace && *u.Mode != blackboard.ModeDog {
		errs = append(errs, "mode must be face or dog")
	}
	return errs
}

// Apply writes the present fields. Each key is written on its own.
func (u StateUpdate) Apply(b *blackboard.Board) {
	if u.PetType != nil {
		b.SetPetType(*u.PetType)
	}
	if u.Scale != nil {
		b.SetScale(*u.Scale)
	}
	if u.X != nil {
		b.SetX(*u.X)
	}
	if u.Y != nil {
		b.SetY(*u.Y)
	}
	if u.Mode != nil {
		b.SetMode(*u.Mode)
	}
}

func badRequest(c *fiber.Ctx, errs ...string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"errors": errs})
}

// handleGetState returns every scalar key of the blackboard.
func (s *Server) handleGetState(c *fiber.Ctx) error {
	return c.JSON(s.opts.Board.Snapshot())
}

// handlePatchState validates and applies a partial update.
func (s *Server) handlePatchState(c *fiber.Ctx) error {
	dec := json.NewDecoder(bytes.NewReader(c.Body()))
	dec.DisallowUnknownFields()

	var u StateUpdate
	if err := dec.Decode(&u); err != nil {
		return badRequest(c, "invalid state update: "+err.Error())
	}
	if errs := u.Validate(); len(errs) > 0 {
		return badRequest(c, errs...)
	}

	u.Apply(s.opts.Board)
	s.logger.Debug("state updated", "update", string(c.Body()))
	return c.JSON(s.opts.Board.Snapshot())
}

// handleStart launches the inference stream.
func (s *Server) handleStart(c *fiber.Ctx) error {
	if s.opts.Stream == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "no stream configured"})
	}

	err := s.opts.Stream.Start(s.baseCtx)
	if errors.Is(err, stream.ErrAlreadyRunning) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
			"state": s.opts.Stream.State().String(),
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	s.logger.Info("stream start requested")
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"state": s.opts.Stream.State().String()})
}

// handleStop asks the stream to stop. It does not wait.
func (s *Server) handleStop(c *fiber.Ctx) error {
	if s.opts.Stream == nil {
		s.opts.Board.SetRunning(false)
		return c.JSON(fiber.Map{"state": stream.Stopped.String()})
	}

	s.opts.Stream.Stop()
	s.logger.Info("stream stop requested")
	return c.JSON(fiber.Map{"state": s.opts.Stream.State().String()})
}

// handleListPets returns the pet catalogue.
func (s *Server) handleListPets(c *fiber.Ctx) error {
	return c.JSON(pet.Catalogue())
}

// handleStreamStats returns stream counters.
func (s *Server) handleStreamStats(c *fiber.Ctx) error {
	if s.opts.Stream == nil {
		return c.JSON(stream.Stats{State: stream.Stopped.String()})
	}
	return c.JSON(s.opts.Stream.Stats())
}

// handleFrame serves the latest frame slot.
func (s *Server) handleFrame(c *fiber.Ctx) error {
	f := s.opts.Board.Frame()
	if f == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no frame yet"})
	}
	c.Set(fiber.HeaderContentType, "image/jpeg")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(f.JPEG)
}

func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	if s.opts.Camera == nil {
		return c.JSON(camera.DefaultConfig())
	}
	return c.JSON(s.opts.Camera.GetConfig())
}

func (s *Server) handlePatchCamera(c *fiber.Ctx) error {
	if s.opts.Camera == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "camera not configurable"})
	}

	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return badRequest(c, "invalid camera update: "+err.Error())
	}
	if err := s.opts.Camera.UpdateConfig(params); err != nil {
		return badRequest(c, err.Error())
	}
	return c.JSON(s.opts.Camera.GetConfig())
}

func (s *Server) handleCameraPresets(c *fiber.Ctx) error {
	return c.JSON(camera.PresetList())
}

// handleEmotionsWS streams emotion events as JSON text frames.
func (s *Server) handleEmotionsWS(c *websocket.Conn) {
	s.serveHub(s.eventHub, c)
}

// handleCameraWS streams JPEG frames as binary messages.
func (s *Server) handleCameraWS(c *websocket.Conn) {
	s.serveHub(s.cameraHub, c)
}

func (s *Server) serveHub(h *hub.Hub, c *websocket.Conn) {
	client := hub.NewClient(h, c)
	if client == nil {
		c.Close()
		return
	}
	client.Run()
}
