// Package cmd wires the edgellm command line interface.
package cmd

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/edgellm/edgellm/envconfig"
	"github.com/edgellm/edgellm/llm"
	"github.com/edgellm/edgellm/logutil"
	"github.com/edgellm/edgellm/mcp"
	"github.com/edgellm/edgellm/server"
	"github.com/edgellm/edgellm/tokenizer"
	"github.com/edgellm/edgellm/tools"
	"github.com/edgellm/edgellm/version"
)

func NewCLI() *cobra.Command {
	root := &cobra.Command{
		Use:           "edgellm",
		Short:         "On-device OpenAI-compatible chat completion server",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if envconfig.Debug {
				level = slog.LevelDebug
			}
			slog.SetDefault(logutil.NewLogger(os.Stderr, level))
		},
	}

	serveCmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the chat completion server",
		RunE:    runServe,
	}
	f := serveCmd.Flags()
	f.String("model-path", envconfig.ModelPath, "directory containing model.json and weight files")
	f.Int("port", envconfig.Port, "listen port (0 selects the default)")
	f.String("web-root", envconfig.WebRoot, "static asset directory")
	f.Bool("use-vulkan", envconfig.UseVulkan, "run the backend on Vulkan when available")
	f.Bool("builtin-tools", envconfig.EnableBuiltinTools, "offer the builtin tools in every prompt")
	f.String("mcp-server", envconfig.McpServerCmdline, "command line of an external tool server to spawn")
	f.Int("mcp-timeout-ms", envconfig.McpTimeoutMs, "timeout for external tool calls")
	f.Bool("mcp-debug", envconfig.McpDebug, "log tool server traffic")
	f.String("mcp-transport", envconfig.McpTransport, "tool server framing: lsp or jsonl")
	f.Bool("mcp-merge-tools", envconfig.McpMergeTools, "merge external tools into client catalogs")
	f.Int("mcp-max-string-bytes", envconfig.McpMaxStringBytes, "budget for strings fed back to the model")

	tokenizeCmd := &cobra.Command{
		Use:   "tokenize <unigram.txt> [text]",
		Short: "Segment text with a unigram vocabulary and print the pieces",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runTokenize,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Version)
		},
	}

	root.AddCommand(serveCmd, tokenizeCmd, versionCmd)
	return root
}

func Execute() {
	if err := NewCLI().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	modelPath, _ := flags.GetString("model-path")
	port, _ := flags.GetInt("port")
	webRoot, _ := flags.GetString("web-root")
	useVulkan, _ := flags.GetBool("use-vulkan")
	builtinTools, _ := flags.GetBool("builtin-tools")
	mcpServer, _ := flags.GetString("mcp-server")
	mcpTimeoutMs, _ := flags.GetInt("mcp-timeout-ms")
	mcpDebug, _ := flags.GetBool("mcp-debug")
	mcpTransport, _ := flags.GetString("mcp-transport")
	mcpMergeTools, _ := flags.GetBool("mcp-merge-tools")
	mcpMaxStringBytes, _ := flags.GetInt("mcp-max-string-bytes")

	if modelPath == "" {
		return fmt.Errorf("--model-path (or EDGELLM_MODEL_PATH) is required")
	}
	if port == 0 {
		port = envconfig.DefaultPort
	}

	runner, err := llm.Open(modelPath, useVulkan)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	defer runner.Close()

	var builtins *tools.Registry
	if builtinTools {
		builtins = tools.Builtins()
	}

	state := mcp.Init(mcp.Options{
		Cmdline:        mcpServer,
		Timeout:        time.Duration(mcpTimeoutMs) * time.Millisecond,
		Transport:      mcp.ParseTransport(mcpTransport),
		Debug:          mcpDebug,
		MergeTools:     mcpMergeTools,
		MaxStringBytes: mcpMaxStringBytes,
	})
	if state.Client != nil {
		defer state.Client.Close()
	}

	ln, err := net.Listen("tcp", net.JoinHostPort("0.0.0.0", strconv.Itoa(port)))
	if err != nil {
		return err
	}

	slog.Info("edgellm server listening", "addr", ln.Addr(), "model", modelPath)
	srv := server.New(runner, builtins, state, webRoot)
	return srv.Serve(ln, envconfig.AllowOrigins)
}

func runTokenize(cmd *cobra.Command, args []string) error {
	text := "Hello 世界! 안녕하세요 こんにちは abc"
	if len(args) >= 2 {
		text = args[1]
	}

	tok, err := tokenizer.LoadFile(args[0], tokenizer.SpecialTokens{
		BOS: "<s>", EOS: "</s>", UNK: "<unk>", PAD: "<pad>", Mask: "<mask>",
	}, true, true, -10.0)
	if err != nil {
		return err
	}

	ids := tok.Encode(text, true, true, false, false)

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"ID", "PIECE", "SCORE"})
	for _, id := range ids {
		table.Append([]string{
			strconv.Itoa(id),
			tok.Piece(id),
			strconv.FormatFloat(tok.Score(id), 'f', 4, 64),
		})
	}
	table.Render()

	fmt.Fprintln(cmd.OutOrStdout(), "decoded:", tok.Decode(ids, true))
	return nil
}
