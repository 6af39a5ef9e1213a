package wsstream

import (
	"context"
	"fmt"

	"github.com/sideruntime/sidesvc/internal/apperr"
	"github.com/sideruntime/sidesvc/pkg/models"
)

// handleExecuteJS runs msg.Code as raw JavaScript against the pinned
// session's driver, grounded on the original's _handle_execute_js.
func (g *Gateway) handleExecuteJS(ctx context.Context, conn *connection, msg models.StreamMessage) models.StreamResponse {
	if msg.Code == "" {
		return errorResponse(apperr.New(apperr.CommandFailed, "execute_js: code is required"))
	}
	lease, err := g.dispatcher.Pool.Acquire(ctx, conn.sessionID)
	if err != nil {
		return errorResponse(err)
	}
	result, err := lease.Driver.ExecuteScript(msg.Code, nil)
	if err != nil {
		return errorResponse(apperr.Wrap(apperr.CommandFailed, err, "execute_js failed"))
	}
	return models.StreamResponse{Type: "result", Data: fmt.Sprintf("%v", result)}
}

// handleExecuteSide runs a stored script's suite or test against the pinned
// session, reusing the dispatcher's script-preparation and command-execution
// path without acquiring a new lock (the connection already holds one),
// grounded on the original's _handle_execute_side.
func (g *Gateway) handleExecuteSide(ctx context.Context, conn *connection, msg models.StreamMessage) models.StreamResponse {
	if msg.ScriptID == "" {
		return errorResponse(apperr.New(apperr.CommandFailed, "execute_side: script_id is required"))
	}
	result, err := g.dispatcher.RunScript(ctx, conn.sessionID, models.ExecuteRequest{
		ScriptID: msg.ScriptID,
		Suite:    msg.Suite,
		Test:     msg.Test,
		Params:   msg.Params,
	})
	if err != nil {
		return errorResponse(err)
	}
	return models.StreamResponse{Type: "result", Data: result.PageSource}
}

// handleGetPageSource reads the pinned session's current page source,
// grounded on the original's _handle_get_page_source.
func (g *Gateway) handleGetPageSource(ctx context.Context, conn *connection) models.StreamResponse {
	lease, err := g.dispatcher.Pool.Acquire(ctx, conn.sessionID)
	if err != nil {
		return errorResponse(err)
	}
	pageSource, err := lease.Driver.PageSource()
	if err != nil {
		return errorResponse(apperr.Wrap(apperr.CommandFailed, err, "get_page_source failed"))
	}
	return models.StreamResponse{Type: "result", Data: pageSource}
}
