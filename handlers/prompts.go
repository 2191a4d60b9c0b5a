// ABOUTME: MCP prompt handlers for transaction workflow templates
// ABOUTME: Builds a closing checklist prompt from a transaction's milestones and sync state
package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/closingcal/sync"
)

type PromptHandlers struct {
	tx *TransactionHandlers
}

func NewPromptHandlers(tx *TransactionHandlers) *PromptHandlers {
	return &PromptHandlers{tx: tx}
}

// GetPrompt generates the prompt message based on the template
func (h *PromptHandlers) GetPrompt(ctx context.Context, request *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	switch request.Params.Name {
	case "closing-checklist":
		return h.getClosingChecklistPrompt(ctx, request.Params.Arguments)
	default:
		return nil, fmt.Errorf("unknown prompt: %s", request.Params.Name)
	}
}

func (h *PromptHandlers) getClosingChecklistPrompt(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error) {
	id, ok := args["transaction_id"]
	if !ok {
		return nil, fmt.Errorf("transaction_id is required")
	}

	tx, err := h.tx.loadTransaction(id)
	if err != nil {
		return nil, err
	}

	state, err := h.tx.engine.Repo.GetTransactionSyncState(ctx, tx.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sync state: %w", err)
	}

	var promptText strings.Builder
	promptText.WriteString("Please prepare a closing checklist for this real-estate transaction:\n\n")
	promptText.WriteString(fmt.Sprintf("Property: %s\n", tx.PropertyAddress))
	if tx.BuyerName != "" {
		promptText.WriteString(fmt.Sprintf("Buyer: %s\n", tx.BuyerName))
	}
	if tx.SellerName != "" {
		promptText.WriteString(fmt.Sprintf("Seller: %s\n", tx.SellerName))
	}

	milestones := sync.ExtractMilestones(tx)
	if len(milestones) == 0 {
		promptText.WriteString("\nNo milestone dates have been set yet.\n")
	} else {
		promptText.WriteString("\nMilestones:\n")
		for _, m := range milestones {
			promptText.WriteString(fmt.Sprintf("- %s: %s\n", m.Date.Format(dateLayout), m.Title))
		}
	}

	if state != nil && state.Warning != "" {
		promptText.WriteString(fmt.Sprintf("\nCalendar sync warning: %s\n", state.Warning))
	}

	promptText.WriteString("\nPlease provide:")
	promptText.WriteString("\n1. Tasks due before each upcoming milestone")
	promptText.WriteString("\n2. Any deadlines that look too close together")
	promptText.WriteString("\n3. Missing milestone dates worth confirming with the other agent")

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Closing checklist for %s", tx.PropertyAddress),
		Messages: []*mcp.PromptMessage{
			{
				Role:    "user",
				Content: &mcp.TextContent{Text: promptText.String()},
			},
		},
	}, nil
}
