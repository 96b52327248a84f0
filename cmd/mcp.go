package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/AzielCF/az-grouppost/ui/mcp"
	"github.com/AzielCF/az-grouppost/ui/websocket"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the scheduler MCP server using SSE",
	Long:  `Start an MCP (Model Context Protocol) server using Server-Sent Events, exposing tools to list postable groups and to schedule or cancel announcements.`,
	Run:   mcpServer,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("host", "", "Host for the SSE MCP server")
	mcpCmd.Flags().String("mcp-port", "", "Port for the SSE MCP server")
}

func mcpServer(cmd *cobra.Command, _ []string) {
	if v, _ := cmd.Flags().GetString("host"); v != "" {
		cfg.MCP.Host = v
	}
	if v, _ := cmd.Flags().GetString("mcp-port"); v != "" {
		cfg.MCP.Port = v
	}

	mcpServer := server.NewMCPServer(
		"VRChat Group Post Scheduler",
		cfg.App.Version,
		server.WithToolCapabilities(true),
	)

	// The scheduler is not started here. Posts created through the tools are
	// stored and armed by the rest process on its next sync.
	postHandler := mcp.InitMcpPost(authUsecase, groupUsecase, scheduler, clock, cfg.Location())
	postHandler.AddPostTools(mcpServer)

	// Progress and toasts still reach UIs attached to the rest process.
	if vkClient != nil {
		websocket.SetValkeyClient(vkClient, serverID)
		go websocket.RunHub()
	} else {
		go drainBroadcasts()
	}

	sseServer := server.NewSSEServer(
		mcpServer,
		server.WithBaseURL(fmt.Sprintf("http://%s:%s", cfg.MCP.Host, cfg.MCP.Port)),
		server.WithKeepAlive(true),
	)

	addr := fmt.Sprintf("%s:%s", cfg.MCP.Host, cfg.MCP.Port)
	logrus.Printf("[MCP] Starting SSE server on %s", addr)
	logrus.Printf("[MCP] SSE endpoint: http://%s/sse", addr)
	logrus.Printf("[MCP] Message endpoint: http://%s/message", addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[MCP] Reception of termination signal, shutting down gracefully...")
		StopApp()
		os.Exit(0)
	}()

	if err := sseServer.Start(addr); err != nil {
		logrus.Fatalf("Failed to start SSE server: %v", err)
	}
}

// drainBroadcasts discards hub messages when no websocket client can exist.
func drainBroadcasts() {
	for msg := range websocket.Broadcast {
		logrus.Debugf("[MCP] %s: %s", msg.Code, msg.Message)
	}
}
