package connection

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// ClientInfo identifies this process to the remote server.
type ClientInfo struct {
	Name    string
	Version string
}

// NewStreamableDialer dials an MCP server over streamable HTTP. Every
// request carries the headers returned by the manager's hook for that
// request's context.
func NewStreamableDialer(endpoint string, info ClientInfo) Dialer {
	return func(ctx context.Context, headers HeaderFunc) (Session, error) {
		c, err := client.NewStreamableHttpClient(endpoint,
			transport.WithHTTPHeaderFunc(func(ctx context.Context) map[string]string {
				if headers == nil {
					return nil
				}
				return headers(ctx)
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("create mcp client: %w", err)
		}
		// The transport may hold on to the start context for its lifetime.
		if err := c.Start(context.WithoutCancel(ctx)); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("start mcp transport: %w", err)
		}

		req := mcp.InitializeRequest{}
		req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
		req.Params.ClientInfo = mcp.Implementation{Name: info.Name, Version: info.Version}
		if _, err := c.Initialize(ctx, req); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("initialize mcp session: %w", err)
		}
		return &mcpSession{client: c}, nil
	}
}

type mcpSession struct {
	client *client.Client
}

func (s *mcpSession) ListTools(ctx context.Context) ([]RemoteTool, error) {
	res, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, err
	}
	out := make([]RemoteTool, 0, len(res.Tools))
	for _, t := range res.Tools {
		out = append(out, RemoteTool{Name: t.Name, Description: t.Description})
	}
	return out, nil
}

func (s *mcpSession) CallTool(ctx context.Context, name string, args map[string]any) (CallResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := s.client.CallTool(ctx, req)
	if err != nil {
		return CallResult{}, fmt.Errorf("call %s: %w", name, err)
	}

	var texts []string
	for _, content := range res.Content {
		if tc, ok := mcp.AsTextContent(content); ok {
			texts = append(texts, tc.Text)
		}
	}
	return CallResult{Text: strings.Join(texts, "\n"), IsError: res.IsError}, nil
}

func (s *mcpSession) Close() error {
	return s.client.Close()
}
