package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/camlink/internal/logging"
)

// LogsResponse carries recent log entries from the ring buffer.
type LogsResponse struct {
	Body struct {
		Entries []logging.LogEntry `json:"entries"`
		Count   int                `json:"count"`
	}
}

// registerLogRoutes registers the log history endpoint.
func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Logs",
		Description: "Get recent log entries in chronological order",
		Tags:        []string{"logs"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, input *struct {
		Limit int `query:"limit" default:"200" minimum:"1" maximum:"1000" doc:"Maximum number of entries"`
	}) (*LogsResponse, error) {
		resp := &LogsResponse{}
		resp.Body.Entries = logging.GetBuffer().Last(input.Limit)
		resp.Body.Count = len(resp.Body.Entries)
		return resp, nil
	})
}
