package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/gpropadm/dcruzimoveis/internal/lead"
)

const (
	claudeDefaultModel   = "claude-3-5-sonnet-20241022"
	claudeDefaultTimeout = 20 * time.Second
	claudeMaxTokens      = 500
)

// ClaudeConfig configures the AI classifier.
type ClaudeConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Claude scores leads with the Anthropic API. It returns the same three-tier
// output as the heuristic; wrap it with WithFallback so failures degrade
// instead of aborting the lead.
type Claude struct {
	client  sdk.Client
	model   string
	timeout time.Duration
}

func NewClaude(cfg ClaudeConfig) (*Claude, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("claude: api key is empty")
	}
	model := cfg.Model
	if model == "" {
		model = claudeDefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = claudeDefaultTimeout
	}
	return &Claude{
		client:  sdk.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:   model,
		timeout: timeout,
	}, nil
}

// claudeVerdict is the strict JSON shape the prompt asks for. Extra analysis
// fields are accepted and ignored; only the priority drives the pipeline.
type claudeVerdict struct {
	Priority string `json:"priority"`
}

func (c *Claude) Classify(ctx context.Context, l lead.Lead) (lead.Tier, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:       sdk.Model(c.model),
		MaxTokens:   claudeMaxTokens,
		Temperature: sdk.Float(0.1),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(buildPrompt(l))),
		},
	})
	if err != nil {
		return lead.TierCold, fmt.Errorf("claude: create message: %w", err)
	}

	var text string
	for _, b := range msg.Content {
		if b.Type == "text" {
			text = b.Text
			break
		}
	}

	verdict, err := parseVerdict(text)
	if err != nil {
		return lead.TierCold, err
	}

	switch strings.ToUpper(strings.TrimSpace(verdict.Priority)) {
	case "QUENTE":
		return lead.TierHot, nil
	case "MORNO":
		return lead.TierWarm, nil
	case "FRIO":
		return lead.TierCold, nil
	default:
		return lead.TierCold, fmt.Errorf("claude: unknown priority %q", verdict.Priority)
	}
}

func buildPrompt(l lead.Lead) string {
	var b strings.Builder
	b.WriteString("LEAD PARA ANÁLISE:\n\n")
	fmt.Fprintf(&b, "Nome: %s\n", orNA(l.Name))
	fmt.Fprintf(&b, "Email: %s\n", orNA(l.Email))
	fmt.Fprintf(&b, "Telefone: %s\n", orNA(l.Phone))
	fmt.Fprintf(&b, "Mensagem: %q\n\n", l.Message)
	b.WriteString("IMÓVEL DE INTERESSE:\n")
	fmt.Fprintf(&b, "Título: %s\n", orNA(l.PropertyTitle))
	fmt.Fprintf(&b, "Preço: R$ %s\n", orNA(l.PropertyPrice))
	fmt.Fprintf(&b, "Tipo: %s\n\n", orNA(l.PropertyType))
	b.WriteString("TAREFA:\n")
	b.WriteString("Analise este lead imobiliário e retorne APENAS um JSON com:\n")
	b.WriteString(`{"priority": "QUENTE|MORNO|FRIO"}` + "\n\n")
	b.WriteString("Considere: urgência da linguagem, completude dos dados, valor do imóvel, intenção de compra explícita.\n")
	return b.String()
}

// parseVerdict extracts the JSON object from the model output, tolerating
// prose around it.
func parseVerdict(text string) (claudeVerdict, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return claudeVerdict{}, errors.New("claude: no JSON object in response")
	}
	var v claudeVerdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil {
		return claudeVerdict{}, fmt.Errorf("claude: decode verdict: %w", err)
	}
	return v, nil
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
