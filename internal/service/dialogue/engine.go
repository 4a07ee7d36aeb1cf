package dialogue

import (
	"context"
	"fmt"
	"log"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	session "github.com/zhouzirui/einstein-live/backend/internal/model/session"
)

// historyLimit caps how much of the dialogue context is replayed per turn.
const historyLimit = 10

// Engine turns a transcript into a persona-constrained reply. Provider
// failures never escape: the caller always gets usable text, falling back
// to a canned apology in the session's language.
type Engine struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewEngine compiles the prompt+model chain. A nil chat model yields an
// engine that always answers with the fallback utterance, which keeps the
// service usable when model credentials are absent.
func NewEngine(ctx context.Context, chatModel model.BaseChatModel) (*Engine, error) {
	if chatModel == nil {
		return &Engine{}, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile dialogue chain: %w", err)
	}

	return &Engine{chain: runnable}, nil
}

// Respond generates the reply for one turn. For the Korean hint the
// transcript is wrapped with an explicit answer-in-Korean instruction;
// otherwise it is passed unmodified.
func (e *Engine) Respond(ctx context.Context, history []session.Turn, transcript string, lang session.Language) string {
	if e.chain == nil {
		return Apology(lang)
	}

	input := map[string]any{
		"system":  systemPrompt,
		"history": buildHistoryMessages(history),
		"query":   buildQuery(transcript, lang),
	}

	response, err := e.chain.Invoke(ctx, input)
	if err != nil {
		log.Printf("[dialogue] provider error, using fallback: %v", err)
		return Apology(lang)
	}
	if response.Content == "" {
		log.Printf("[dialogue] provider returned empty reply, using fallback")
		return Apology(lang)
	}

	return response.Content
}

func buildQuery(transcript string, lang session.Language) string {
	if lang == session.Korean {
		return fmt.Sprintf("질문: %s\n(대답은 반드시 한국어로 해주세요)", transcript)
	}
	return transcript
}

func buildHistoryMessages(turns []session.Turn) []*schema.Message {
	history := []*schema.Message{schema.AssistantMessage(openingLine, nil)}

	startIdx := 0
	if len(turns) > historyLimit {
		startIdx = len(turns) - historyLimit
	}

	for _, turn := range turns[startIdx:] {
		switch turn.Sender {
		case "user":
			history = append(history, schema.UserMessage(turn.Content))
		case "assistant":
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}

	return history
}
