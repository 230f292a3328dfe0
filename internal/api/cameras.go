package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/camlink/internal/camera"
	"github.com/smazurov/camlink/internal/config"
	"github.com/smazurov/camlink/internal/session"
)

// CameraData describes one camera's current state.
type CameraData struct {
	Name       string `json:"name" example:"porch" doc:"Camera name"`
	Address    string `json:"address" example:"tcp://192.168.1.10:9000" doc:"Camera address"`
	Connected  bool   `json:"connected" doc:"Whether a connection is currently live"`
	Generation uint64 `json:"generation,omitempty" doc:"Connection generation, increases on every reconnect"`
}

// CameraListResponse lists all supervised cameras.
type CameraListResponse struct {
	Body struct {
		Cameras []CameraData `json:"cameras"`
		Count   int          `json:"count"`
	}
}

// CameraResponse describes a single camera.
type CameraResponse struct {
	Body CameraData
}

// CameraConfigResponse carries a camera's effective configuration.
type CameraConfigResponse struct {
	Body config.Camera
}

// CameraConfigRequest replaces a camera's configuration.
type CameraConfigRequest struct {
	Name string        `path:"name" doc:"Camera name"`
	Body config.Camera `doc:"New camera configuration"`
}

// ControlRequest carries one control command for a camera.
type ControlRequest struct {
	Name string `path:"name" doc:"Camera name"`
	Body struct {
		Action string `json:"action" enum:"led,ir,reboot" doc:"Control action"`
		Value  string `json:"value,omitempty" example:"on" doc:"Action value: led on/off, ir on/off/auto"`
	}
}

func (s *Server) cameraData(h session.Handle) CameraData {
	data := CameraData{
		Name:    h.Name(),
		Address: h.Config().Address,
	}
	rx := h.WatchConnection()
	if ref := rx.Load(); ref.Live() {
		data.Connected = true
		data.Generation = ref.Generation
	}
	return data
}

func (s *Server) handleFor(name string) (session.Handle, error) {
	h, err := s.reactor.Get(name)
	if err != nil {
		return session.Handle{}, huma.Error404NotFound("Camera not found: " + name)
	}
	return h, nil
}

// registerCameraRoutes registers all camera endpoints.
func (s *Server) registerCameraRoutes() {
	// List cameras
	huma.Register(s.api, huma.Operation{
		OperationID: "list-cameras",
		Method:      http.MethodGet,
		Path:        "/api/cameras",
		Summary:     "List Cameras",
		Description: "Get all supervised cameras and their connection state",
		Tags:        []string{"cameras"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*CameraListResponse, error) {
		resp := &CameraListResponse{}
		for _, name := range s.reactor.Names() {
			h, err := s.reactor.Get(name)
			if err != nil {
				continue
			}
			resp.Body.Cameras = append(resp.Body.Cameras, s.cameraData(h))
		}
		resp.Body.Count = len(resp.Body.Cameras)
		return resp, nil
	})

	// Get one camera
	huma.Register(s.api, huma.Operation{
		OperationID: "get-camera",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{name}",
		Summary:     "Get Camera",
		Description: "Get one camera's connection state",
		Tags:        []string{"cameras"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(_ context.Context, input *struct {
		Name string `path:"name" doc:"Camera name"`
	}) (*CameraResponse, error) {
		h, err := s.handleFor(input.Name)
		if err != nil {
			return nil, err
		}
		return &CameraResponse{Body: s.cameraData(h)}, nil
	})

	// Get camera configuration
	huma.Register(s.api, huma.Operation{
		OperationID: "get-camera-config",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{name}/config",
		Summary:     "Get Camera Config",
		Description: "Get the configuration currently in effect for a camera",
		Tags:        []string{"cameras"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(_ context.Context, input *struct {
		Name string `path:"name" doc:"Camera name"`
	}) (*CameraConfigResponse, error) {
		h, err := s.handleFor(input.Name)
		if err != nil {
			return nil, err
		}
		return &CameraConfigResponse{Body: h.Config()}, nil
	})

	// Replace camera configuration
	huma.Register(s.api, huma.Operation{
		OperationID: "update-camera-config",
		Method:      http.MethodPut,
		Path:        "/api/cameras/{name}/config",
		Summary:     "Update Camera Config",
		Description: "Replace a camera's configuration. The session tears down its connection and redials with the new settings; handles stay valid.",
		Tags:        []string{"cameras"},
		Errors:      []int{400, 401, 404},
		Security:    withAuth(),
	}, func(_ context.Context, input *CameraConfigRequest) (*CameraConfigResponse, error) {
		cfg := input.Body
		cfg.Name = input.Name
		if err := cfg.Validate(); err != nil {
			return nil, huma.Error400BadRequest("Invalid camera configuration", err)
		}
		if err := s.reactor.Update(cfg); err != nil {
			if errors.Is(err, session.ErrSessionClosed) {
				return nil, huma.Error404NotFound("Camera not found: " + input.Name)
			}
			return nil, huma.Error400BadRequest("Failed to update configuration", err)
		}
		return &CameraConfigResponse{Body: cfg}, nil
	})

	// Control a camera
	huma.Register(s.api, huma.Operation{
		OperationID: "control-camera",
		Method:      http.MethodPost,
		Path:        "/api/cameras/{name}/control",
		Summary:     "Control Camera",
		Description: "Send a control command (led, ir, reboot) to a camera",
		Tags:        []string{"cameras"},
		Errors:      []int{400, 401, 404, 409},
		Security:    withAuth(),
	}, func(ctx context.Context, input *ControlRequest) (*struct{}, error) {
		h, err := s.handleFor(input.Name)
		if err != nil {
			return nil, err
		}

		switch input.Body.Action {
		case "led":
			err = h.SetStatusLED(ctx, input.Body.Value == "on")
		case "ir":
			var mode camera.IRMode
			if mode, err = camera.ParseIRMode(input.Body.Value); err != nil {
				return nil, huma.Error400BadRequest("Invalid IR mode", err)
			}
			err = h.SetIRLights(ctx, mode)
		case "reboot":
			err = h.Reboot(ctx)
		default:
			return nil, huma.Error400BadRequest("Unknown action: " + input.Body.Action)
		}

		if err != nil {
			if errors.Is(err, session.ErrNotConnected) {
				return nil, huma.Error409Conflict("Camera is not connected")
			}
			return nil, huma.Error400BadRequest("Control command failed", err)
		}
		return &struct{}{}, nil
	})
}
