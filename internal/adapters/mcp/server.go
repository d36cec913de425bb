package mcpadapter

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/ports"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/usecase"
)

const (
	toolAskDocuments = "ask_documents"
	toolListSources  = "list_sources"
)

type sourceLister interface {
	ListSources(ctx context.Context) ([]string, error)
}

type handlers struct {
	answerer ports.QuestionAnswerer
	sources  sourceLister
}

// NewServer exposes the corpus as two MCP tools. Tool calls are stateless:
// every question is answered without chat history.
func NewServer(answerer ports.QuestionAnswerer, sources sourceLister, version string) *server.MCPServer {
	h := &handlers{answerer: answerer, sources: sources}

	s := server.NewMCPServer("pdf-rag-assistant", version, server.WithToolCapabilities(false))
	s.AddTool(mcp.NewTool(toolAskDocuments,
		mcp.WithDescription("Answer a question strictly from the indexed PDF documents. Returns the fixed abstention message when the documents do not contain the answer."),
		mcp.WithString("question", mcp.Required(), mcp.Description("The question to answer.")),
		mcp.WithNumber("top_k", mcp.Description("Number of chunks to use as context (1-10)."), mcp.Min(1), mcp.Max(10)),
		mcp.WithArray("sources", mcp.Description("Restrict retrieval to these PDF file names."), mcp.Items(map[string]any{"type": "string"})),
	), h.askDocuments)
	s.AddTool(mcp.NewTool(toolListSources,
		mcp.WithDescription("List the PDF file names present in the index."),
	), h.listSources)
	return s
}

// ServeStdio blocks until ctx is done or the client disconnects.
func ServeStdio(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s).Listen(ctx, in, out)
}

func (h *handlers) askDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	topK := request.GetInt("top_k", 0)
	filter := domain.NewSourceFilter(request.GetStringSlice("sources", nil)...)

	answer, err := h.answerer.Answer(ctx, question, topK, filter, usecase.NoHistory)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("answer failed", err), nil
	}
	return mcp.NewToolResultText(formatAnswer(answer, filter.Active())), nil
}

func (h *handlers) listSources(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sources, err := h.sources.ListSources(ctx)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("list sources failed", err), nil
	}
	if len(sources) == 0 {
		return mcp.NewToolResultText("The index is empty."), nil
	}
	return mcp.NewToolResultText(strings.Join(sources, "\n")), nil
}

func formatAnswer(answer *domain.Answer, filtered bool) string {
	var b strings.Builder
	b.WriteString(answer.Text)
	if len(answer.Citations) > 0 {
		b.WriteString("\n\nSources:")
		for _, citation := range answer.Citations {
			fmt.Fprintf(&b, "\n- %s", citation)
		}
	}
	if answer.Abstained && filtered {
		b.WriteString("\n\n" + domain.FilteredOutHint)
	}
	return b.String()
}
