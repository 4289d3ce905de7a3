// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes paramlens tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tunehub/paramlens/internal/apperr"
	"github.com/tunehub/paramlens/internal/models"
	"github.com/tunehub/paramlens/internal/paramtext"
	"github.com/tunehub/paramlens/internal/reconcile"
	"github.com/tunehub/paramlens/internal/session"
	"github.com/tunehub/paramlens/internal/workflow"
)

// Server wraps the MCP server with paramlens tools.
type Server struct {
	mcp  *server.MCPServer
	svc  *workflow.Service
	sess *session.Session
}

// New creates a new MCP server with all paramlens tools registered.
func New(svc *workflow.Service, sess *session.Session) *Server {
	s := &Server{svc: svc, sess: sess}

	s.mcp = server.NewMCPServer(
		"paramlens",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("parse_parameter_text",
		mcp.WithDescription("Parse a raw parameter line from the host editor into "+
			"its structured identity (type, id, name, description). Read the "+
			"paramlens://parameter-text-format resource for the grammar."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Raw parameter line, e.g. \"[ECM] 12600 - Main Spark: High octane spark table\"")),
	), s.parseParameterText)

	s.mcp.AddTool(mcp.NewTool("get_parameter",
		mcp.WithDescription("Look up a parameter by module type and id. Checks the "+
			"canonical collection first, then pending submissions."),
		mcp.WithString("module_type", mcp.Required(), mcp.Description("Module type tag (ECM, TCM, BCM, PCM, ICM, OTHER)")),
		mcp.WithString("param_id", mcp.Required(), mcp.Description("Decimal parameter id")),
	), s.getParameter)

	s.mcp.AddTool(mcp.NewTool("submit_change",
		mcp.WithDescription("Submit an annotation for a parameter. Privileged "+
			"identities write the canonical dataset directly; everyone else queues "+
			"for review."),
		mcp.WithString("module_type", mcp.Required(), mcp.Description("Module type tag")),
		mcp.WithString("param_id", mcp.Required(), mcp.Description("Decimal parameter id")),
		mcp.WithString("name", mcp.Description("Parameter name")),
		mcp.WithString("description", mcp.Description("Short description")),
		mcp.WithString("details", mcp.Description("Free-text details / annotation")),
	), s.submitChange)

	s.mcp.AddTool(mcp.NewTool("list_contributions",
		mcp.WithDescription("List the signed-in identity's contributions across "+
			"pending, approved, and rejected, newest first."),
	), s.listContributions)

	s.mcp.AddTool(mcp.NewTool("approve_contribution",
		mcp.WithDescription("Approve a pending contribution (privileged identities only)."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Submission id")),
	), s.approveContribution)

	s.mcp.AddTool(mcp.NewTool("reject_contribution",
		mcp.WithDescription("Reject a pending contribution with a reason (privileged identities only)."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Submission id")),
		mcp.WithString("reason", mcp.Required(), mcp.Description("Why the contribution was rejected")),
	), s.rejectContribution)

	// Resource: parameter text grammar.
	s.mcp.AddResource(
		mcp.NewResource("paramlens://parameter-text-format", "Parameter Text Format",
			mcp.WithResourceDescription("Grammar of the parameter line the host editor renders."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) parseParameterText(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := paramtext.Parse(text)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(p, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getParameter(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, errResult := keyFromRequest(req)
	if errResult != nil {
		return errResult, nil
	}
	res, err := s.svc.GetParameter(ctx, s.sess, key)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("parameter not found: %s", key)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) submitChange(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, errResult := keyFromRequest(req)
	if errResult != nil {
		return errResult, nil
	}
	payload := reconcile.Payload{
		Name:        req.GetString("name", ""),
		Description: req.GetString("description", ""),
		Details:     req.GetString("details", ""),
	}
	c, err := s.svc.Submit(ctx, s.sess, key, payload)
	if err != nil {
		if errors.Is(err, apperr.ErrNoChanges) {
			return mcp.NewToolResultText("no changes: submission matches the canonical record"), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(c, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listContributions(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.svc.ListContributions(ctx, s.sess)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no contributions"), nil
	}
	out, _ := json.MarshalIndent(items, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) approveContribution(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := s.svc.Approve(ctx, s.sess, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("approved: %s (%s)", c.ID, c.Key)), nil
}

func (s *Server) rejectContribution(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	reason, err := req.RequireString("reason")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := s.svc.Reject(ctx, s.sess, id, reason)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("rejected: %s (%s)", c.ID, c.Key)), nil
}

func (s *Server) readFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "paramlens://parameter-text-format",
			MIMEType: "text/markdown",
			Text:     ParameterTextContract,
		},
	}, nil
}

func keyFromRequest(req mcp.CallToolRequest) (models.ParamKey, *mcp.CallToolResult) {
	rawType, err := req.RequireString("module_type")
	if err != nil {
		return models.ParamKey{}, mcp.NewToolResultError(err.Error())
	}
	id, err := req.RequireString("param_id")
	if err != nil {
		return models.ParamKey{}, mcp.NewToolResultError(err.Error())
	}
	mt, err := models.ParseModuleType(rawType)
	if err != nil {
		return models.ParamKey{}, mcp.NewToolResultError(err.Error())
	}
	return models.ParamKey{ModuleType: mt, ParamID: id}, nil
}
