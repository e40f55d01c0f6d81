package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/rocketscienceinc/tictactoe-online/internal/entity"
)

var ErrEmptyResponse = errors.New("empty model response")

type geminiGenerator struct {
	client      *genai.Client
	model       string
	temperature float32
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string, temperature float32) (MoveGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &geminiGenerator{
		client:      client,
		model:       model,
		temperature: temperature,
	}, nil
}

func (that *geminiGenerator) GenerateMove(ctx context.Context, board entity.Board, mark entity.Mark) (int, error) {
	temperature := that.temperature

	resp, err := that.client.Models.GenerateContent(ctx, that.model, genai.Text(BuildPrompt(board, mark)), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   moveSchema(),
		Temperature:      &temperature,
	})
	if err != nil {
		return -1, fmt.Errorf("failed to generate content: %w", err)
	}

	return ParseMove(responseText(resp))
}

func moveSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"move": {
				Type:        genai.TypeInteger,
				Description: "The index from 0 to 8 for the next move.",
			},
		},
		Required: []string{"move"},
	}
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}

	return text.String()
}

// BuildPrompt - describes the board as a 9-element array with null for empty cells.
func BuildPrompt(board entity.Board, mark entity.Mark) string {
	cells := make([]string, 0, len(board))
	for _, cell := range board {
		if cell == entity.EmptyCell {
			cells = append(cells, "null")
			continue
		}

		cells = append(cells, fmt.Sprintf("%q", string(cell)))
	}

	return fmt.Sprintf(
		"You are a Tic-Tac-Toe expert playing as '%s'. The board is a 9-element array. "+
			"'%s' is the opponent, '%s' is you, and null is empty. Board: [%s]. "+
			"Your task is to return the index (0-8) for your next move. The move must be on an empty (null) square.",
		mark, mark.Opponent(), mark, strings.Join(cells, ", "),
	)
}

// ParseMove - reads {"move": n} from the model output.
func ParseMove(text string) (int, error) {
	if strings.TrimSpace(text) == "" {
		return -1, ErrEmptyResponse
	}

	var result struct {
		Move *int `json:"move"`
	}

	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return -1, fmt.Errorf("failed to unmarshal move: %w", err)
	}

	if result.Move == nil {
		return -1, fmt.Errorf("%w: move is missing", ErrIllegalAIMove)
	}

	return *result.Move, nil
}
