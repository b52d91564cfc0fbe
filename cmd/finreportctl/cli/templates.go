package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/odyssey-erp/finreport/internal/finreport"
	"github.com/odyssey-erp/finreport/internal/formula"
	"github.com/odyssey-erp/finreport/internal/mcptools"
)

// TemplateRegistry persists template records.
type TemplateRegistry interface {
	SaveTemplate(ctx context.Context, tpl finreport.Template) (finreport.Template, error)
}

// TemplateCLI registers templates and inspects their tokens.
type TemplateCLI struct {
	registry TemplateRegistry
	files    mcptools.Templates
	formulas *formula.Registry
}

// NewTemplateCLI wires the CLI. registry may be nil for read-only commands.
func NewTemplateCLI(registry TemplateRegistry, files mcptools.Templates) (*TemplateCLI, error) {
	if files == nil {
		return nil, errors.New("template cli: template files not configured")
	}
	return &TemplateCLI{registry: registry, files: files, formulas: formula.DefaultRegistry()}, nil
}

// RegisterOptions defines the flags of the template register command.
type RegisterOptions struct {
	Name        string
	Description string
	File        string
	Tenant      string
	Inactive    bool
	Stdout      io.Writer
	Stderr      io.Writer
}

// RegisterCommand checks that the template file parses and upserts the record.
func (c *TemplateCLI) RegisterCommand(ctx context.Context, opts RegisterOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if c.registry == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "template register: database not configured")
		return 1
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" || strings.TrimSpace(opts.File) == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "template register: --name and --file are required")
		return 1
	}
	if _, err := c.formulas.Resolve(opts.Tenant); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "template register: %v\n", err)
		return 1
	}
	tokens, err := mcptools.TemplateTokens(ctx, c.files, opts.File)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "template register: %v\n", err)
		return 1
	}
	saved, err := c.registry.SaveTemplate(ctx, finreport.Template{
		Name:        name,
		Description: strings.TrimSpace(opts.Description),
		FileRef:     opts.File,
		Tenant:      opts.Tenant,
		IsActive:    !opts.Inactive,
	})
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "template register: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(opts.Stdout, "template %d %q registered for %s (%d tokens)\n", saved.ID, saved.Name, saved.Tenant, len(tokens))
	return 0
}

// TokensOptions defines the flags of the tokens command.
type TokensOptions struct {
	File       string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// TokensCommand lists the placeholder tokens of a template file. It exits with
// 10 when the template contains tokens that will be rejected.
func (c *TemplateCLI) TokensCommand(ctx context.Context, opts TokensOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	tokens, err := mcptools.TemplateTokens(ctx, c.files, opts.File)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "tokens: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(tokens); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "tokens: encode json: %v\n", err)
			return 1
		}
	} else {
		w := tabwriter.NewWriter(opts.Stdout, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "TOKEN\tKIND\tDETAIL")
		for _, info := range tokens {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", info.Token, info.Kind, info.Detail)
		}
		_ = w.Flush()
	}
	for _, info := range tokens {
		if info.Kind == "rejected" {
			return 10
		}
	}
	return 0
}
