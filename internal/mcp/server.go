package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"roofline-crm/backend/internal/workflow"
	"roofline-crm/backend/pkg/models"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type Server struct {
	mcpServer *server.MCPServer
	engine    *workflow.Engine
}

func NewServer(engine *workflow.Engine) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Roofline Production",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		engine: engine,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_production_status",
			mcp.WithDescription("Get the production workflow for a job or project, including its stage history and gate validation trail"),
			mcp.WithString("tenant_id", mcp.Required(), mcp.Description("The tenant the subject belongs to")),
			mcp.WithString("subject_id", mcp.Required(), mcp.Description("The job or project ID")),
		),
		s.handleGetProductionStatus,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"advance_stage",
			mcp.WithDescription("Attempt to move a production workflow to another stage. Forward moves are gate-checked; failures list every unmet requirement."),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("The workflow to advance")),
			mcp.WithString("to_stage", mcp.Required(), mcp.Description("The target stage, e.g. permit_submitted")),
			mcp.WithString("actor", mcp.Required(), mcp.Description("Who is requesting the move")),
			mcp.WithString("notes", mcp.Description("Optional notes recorded on the transition")),
			mcp.WithBoolean("bypass", mcp.Description("Skip gate requirements (requires bypass_reason)")),
			mcp.WithString("bypass_reason", mcp.Description("Justification for bypassing the gate")),
		),
		s.handleAdvanceStage,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"update_documents",
			mcp.WithDescription("Record document or progress flag changes on a workflow without changing its stage"),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("The workflow to update")),
			mcp.WithString("actor", mcp.Required(), mcp.Description("Who made the update")),
			mcp.WithBoolean("noc_uploaded", mcp.Description("NOC document uploaded")),
			mcp.WithBoolean("permit_application_submitted", mcp.Description("Permit application submitted")),
			mcp.WithBoolean("permit_approved", mcp.Description("Permit approved")),
			mcp.WithBoolean("materials_ordered", mcp.Description("Materials ordered")),
			mcp.WithBoolean("materials_delivered", mcp.Description("Materials delivered")),
			mcp.WithBoolean("work_completed", mcp.Description("Work completed")),
			mcp.WithBoolean("final_inspection_passed", mcp.Description("Final inspection passed")),
		),
		s.handleUpdateDocuments,
	)
}

func (s *Server) handleGetProductionStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	tenantID, ok := args["tenant_id"].(string)
	if !ok || tenantID == "" {
		return mcp.NewToolResultError("Missing required parameter: tenant_id"), nil
	}
	subjectID, ok := args["subject_id"].(string)
	if !ok || subjectID == "" {
		return mcp.NewToolResultError("Missing required parameter: subject_id"), nil
	}

	detail, err := s.engine.Get(ctx, tenantID, subjectID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get production status: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(detail)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleAdvanceStage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	workflowID, ok := args["workflow_id"].(string)
	if !ok || workflowID == "" {
		return mcp.NewToolResultError("Missing required parameter: workflow_id"), nil
	}
	rawStage, ok := args["to_stage"].(string)
	if !ok || rawStage == "" {
		return mcp.NewToolResultError("Missing required parameter: to_stage"), nil
	}
	actor, ok := args["actor"].(string)
	if !ok || actor == "" {
		return mcp.NewToolResultError("Missing required parameter: actor"), nil
	}

	toStage, err := models.ParseStage(rawStage)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	req := workflow.AdvanceRequest{
		WorkflowID: workflowID,
		ToStage:    toStage,
		Actor:      actor,
	}
	if notes, ok := args["notes"].(string); ok {
		req.Notes = notes
	}
	if bypass, ok := args["bypass"].(bool); ok {
		req.Bypass = bypass
	}
	if reason, ok := args["bypass_reason"].(string); ok {
		req.BypassReason = reason
	}

	result, err := s.engine.Advance(ctx, req)
	if err != nil {
		// Gate failures carry the full requirement list; surface it to the agent
		// so it can tell the user what is still missing.
		var gateErr *workflow.GateFailureError
		if errors.As(err, &gateErr) {
			jsonBytes, _ := json.Marshal(map[string]any{
				"error":    gateErr.Error(),
				"failures": gateErr.Failures,
				"details":  gateErr.Details,
			})
			return mcp.NewToolResultError(string(jsonBytes)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Failed to advance stage: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleUpdateDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	workflowID, ok := args["workflow_id"].(string)
	if !ok || workflowID == "" {
		return mcp.NewToolResultError("Missing required parameter: workflow_id"), nil
	}
	actor, ok := args["actor"].(string)
	if !ok || actor == "" {
		return mcp.NewToolResultError("Missing required parameter: actor"), nil
	}

	patch := models.FlagPatch{
		NOCUploaded:                boolArg(args, "noc_uploaded"),
		PermitApplicationSubmitted: boolArg(args, "permit_application_submitted"),
		PermitApproved:             boolArg(args, "permit_approved"),
		MaterialsOrdered:           boolArg(args, "materials_ordered"),
		MaterialsDelivered:         boolArg(args, "materials_delivered"),
		WorkCompleted:              boolArg(args, "work_completed"),
		FinalInspectionPassed:      boolArg(args, "final_inspection_passed"),
	}

	wf, err := s.engine.UpdateFlags(ctx, workflowID, patch, actor)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to update documents: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(wf)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func boolArg(args map[string]interface{}, key string) *bool {
	if v, ok := args[key].(bool); ok {
		return &v
	}
	return nil
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// SSE endpoints
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
