// Package mcptools exposes template inspection and placeholder previews as MCP
// tools.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/odyssey-erp/finreport/internal/docx"
	"github.com/odyssey-erp/finreport/internal/finreport"
	"github.com/odyssey-erp/finreport/internal/formula"
	"github.com/odyssey-erp/finreport/internal/placeholder"
)

// Templates opens template files by reference.
type Templates interface {
	OpenTemplate(ctx context.Context, ref string) ([]byte, error)
}

// Deps are the collaborators the tools use.
type Deps struct {
	Templates Templates
	Generator *finreport.Generator
	Formulas  *formula.Registry
}

// RegisterTools adds all finreport MCP tools to the server.
func RegisterTools(s *server.MCPServer, deps Deps) {
	if deps.Formulas == nil {
		deps.Formulas = formula.DefaultRegistry()
	}
	registerListTenants(s, deps)
	registerListTemplateTokens(s, deps)
	registerPreviewPlaceholders(s, deps)
}

func registerListTenants(s *server.MCPServer, deps Deps) {
	tool := mcp.NewTool("list_tenants",
		mcp.WithDescription("List the tenant formula sets a template can be bound to."),
	)
	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText(strings.Join(deps.Formulas.Tenants(), "\n")), nil
	})
}

// TokenInfo describes one template token.
type TokenInfo struct {
	Token  string `json:"token"`
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

func registerListTemplateTokens(s *server.MCPServer, deps Deps) {
	tool := mcp.NewTool("list_template_tokens",
		mcp.WithDescription("List the {{tokens}} found in a DOCX template and how each one is resolved: account figure, prefix summary or other."),
		mcp.WithString("template",
			mcp.Required(),
			mcp.Description("Template file name inside the template directory"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ref, err := request.RequireString("template")
		if err != nil {
			return mcp.NewToolResultError("template is required"), nil
		}
		infos, err := TemplateTokens(ctx, deps.Templates, ref)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(infos)
	})
}

func registerPreviewPlaceholders(s *server.MCPServer, deps Deps) {
	tool := mcp.NewTool("preview_placeholders",
		mcp.WithDescription("Compute the value every token of a template would receive for a period without generating a document."),
		mcp.WithString("template",
			mcp.Required(),
			mcp.Description("Template file name inside the template directory"),
		),
		mcp.WithString("tenant",
			mcp.Description("Tenant formula set (default: standard)"),
		),
		mcp.WithNumber("year",
			mcp.Required(),
			mcp.Description("Report year, e.g. 2024"),
		),
		mcp.WithString("month",
			mcp.Required(),
			mcp.Description("Report month, 01 to 12"),
		),
		mcp.WithString("ledger",
			mcp.Required(),
			mcp.Description("Ledger code"),
		),
		mcp.WithString("branch",
			mcp.Description("Branch code"),
		),
		mcp.WithString("organization",
			mcp.Description("Organization code"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ref, err := request.RequireString("template")
		if err != nil {
			return mcp.NewToolResultError("template is required"), nil
		}
		req := finreport.CreateRequest{
			TemplateID:   1,
			Month:        mcp.ParseString(request, "month", ""),
			Year:         mcp.ParseInt(request, "year", 0),
			Branch:       mcp.ParseString(request, "branch", ""),
			Organization: mcp.ParseString(request, "organization", ""),
			Ledger:       mcp.ParseString(request, "ledger", ""),
		}
		if err := req.Validate(); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		raw, err := deps.Templates.OpenTemplate(ctx, ref)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		rep := finreport.Report{
			Tenant:       mcp.ParseString(request, "tenant", formula.TenantStandard),
			Month:        req.Month,
			Year:         req.Year,
			Branch:       req.Branch,
			Organization: req.Organization,
			Ledger:       req.Ledger,
		}
		preview, err := deps.Generator.Preview(ctx, rep, raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(preview)
	})
}

// TemplateTokens lists and classifies the tokens of a template.
func TemplateTokens(ctx context.Context, templates Templates, ref string) ([]TokenInfo, error) {
	raw, err := templates.OpenTemplate(ctx, ref)
	if err != nil {
		return nil, err
	}
	doc, err := docx.Parse(raw)
	if err != nil {
		return nil, err
	}
	tokens, err := doc.Tokens()
	if err != nil {
		return nil, err
	}
	infos := make([]TokenInfo, 0, len(tokens))
	for _, token := range tokens {
		infos = append(infos, classify(token))
	}
	return infos, nil
}

var metadataTokens = map[string]struct{}{
	placeholder.TokenCurrentYear:  {},
	placeholder.TokenPriorYear:    {},
	placeholder.TokenMonth:        {},
	placeholder.TokenMonthNo:      {},
	placeholder.TokenPeriod:       {},
	placeholder.TokenBranch:       {},
	placeholder.TokenOrganization: {},
	placeholder.TokenLedger:       {},
	placeholder.TokenReportDate:   {},
}

func classify(token string) TokenInfo {
	if _, ok := metadataTokens[strings.ToUpper(token)]; ok {
		return TokenInfo{Token: token, Kind: "metadata"}
	}
	ref, ok, rejected := placeholder.Classify(token)
	switch {
	case rejected:
		return TokenInfo{Token: token, Kind: "rejected", Detail: "unsupported prefix level"}
	case !ok:
		return TokenInfo{Token: token, Kind: "other"}
	case ref.Kind == placeholder.RefPrefix:
		return TokenInfo{Token: token, Kind: "summary", Detail: fmt.Sprintf("level %d prefix %s", ref.Level, ref.Prefix)}
	case ref.IsData():
		return TokenInfo{Token: token, Kind: "account", Detail: ref.Account}
	default:
		return TokenInfo{Token: token, Kind: "other"}
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}
