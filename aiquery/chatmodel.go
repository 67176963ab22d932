package aiquery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/tbxark/talkform/agent"
)

const systemPrompt = `Eres un analista de datos turísticos de la Comunitat Valenciana.
Respondes en español, de forma breve y con cifras cuando las tengas.
Si no conoces un dato, dilo claramente en lugar de inventarlo.
Ámbito de la consulta: %s.`

// scopeTopics is keyed by the redirect scope a form stores in the scope slot.
var scopeTopics = map[string]string{
	"FC_LUC_SEARCHS_PREDICTION": "ventana media y búsquedas previstas de vuelos hacia la Comunitat Valenciana",
	"FC_LUC_OPPORTUNITY_WINDOW": "ventana de oportunidad entre la búsqueda y el vuelo",
}

// ChatModelAgent answers with an LLM, keeping each sender's conversation in a HistoryStore.
type ChatModelAgent struct {
	model   model.BaseChatModel
	history *agent.HistoryStore
}

func NewChatModelAgent(chatModel model.BaseChatModel, history *agent.HistoryStore) (*ChatModelAgent, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}
	if history == nil {
		history = agent.NewMemoryHistoryStore(20)
	}
	return &ChatModelAgent{model: chatModel, history: history}, nil
}

func (a *ChatModelAgent) Answer(ctx context.Context, q *Question) (string, error) {
	if q.SenderID != "" {
		ctx = agent.WithStateKey(ctx, q.SenderID)
	}
	hist, err := a.history.Append(ctx, schema.UserMessage(q.Text))
	if err != nil {
		return "", err
	}
	topic, ok := scopeTopics[q.Scope]
	if !ok {
		topic = "datos turísticos generales"
	}
	input := append([]*schema.Message{schema.SystemMessage(fmt.Sprintf(systemPrompt, topic))}, hist...)

	msg, err := a.model.Generate(ctx, input)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", ErrEmptyResponse
	}
	if _, err := a.history.Append(ctx, schema.AssistantMessage(msg.Content, nil)); err != nil {
		return "", err
	}
	return msg.Content, nil
}
