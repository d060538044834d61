package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/wolfman30/wellness-crm/cmd/mainconfig"
	"github.com/wolfman30/wellness-crm/internal/app/bootstrap"
	appconfig "github.com/wolfman30/wellness-crm/internal/config"
	"github.com/wolfman30/wellness-crm/internal/conversation"
	"github.com/wolfman30/wellness-crm/pkg/logging"
)

// llmtest sends one scripted conversation through the configured provider and
// the chat engine, then prints the reply and any collection state.
func main() {
	mode := flag.String("mode", "established", "chat mode: prospective or established")
	message := flag.String("message", "I need to reschedule my appointment next week", "final user message")
	flag.Parse()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	llm, err := bootstrap.BuildLLMClient(ctx, cfg, mainconfig.Loader(cfg), nil, logger)
	if err != nil {
		log.Fatalf("build llm client: %v", err)
	}
	if llm == nil {
		log.Fatalf("no LLM provider configured for %q; set LLM_API_URL/LLM_API_KEY, BEDROCK_MODEL_ID or GEMINI_API_KEY", cfg.LLMProvider)
	}

	svc, _, err := bootstrap.BuildChatService(cfg, llm, nil, nil, nil, logger)
	if err != nil {
		log.Fatalf("build chat service: %v", err)
	}

	req := conversation.ChatRequest{
		Mode: *mode,
		Messages: []conversation.ChatMessage{
			{Role: conversation.ChatRoleUser, Content: "Hi, I'm a current patient on the weight loss program."},
			{Role: conversation.ChatRoleAssistant, Content: "Welcome back! How can I help you today?"},
			{Role: conversation.ChatRoleUser, Content: *message},
		},
		CallerID: "llmtest",
	}

	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("provider=%s fallback=%s mode=%s\n", cfg.LLMProvider, cfg.LLMFallback, *mode)
	fmt.Println(strings.Repeat("=", 60))

	start := time.Now()
	resp, err := svc.Send(ctx, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chat error after %v: %v\n", time.Since(start).Round(time.Millisecond), err)
		os.Exit(1)
	}
	fmt.Printf("reply (%v):\n%s\n\n", time.Since(start).Round(time.Millisecond), resp.Response)
	fmt.Printf("needsEscalation=%v reason=%q\n", resp.NeedsEscalation, resp.EscalationReason)
	if resp.CollectionState != nil {
		out, _ := json.MarshalIndent(resp.CollectionState, "", "  ")
		fmt.Printf("collectionState:\n%s\n", out)
	}
}
