package jira

import (
	"context"
	"fmt"

	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/tool"
)

// ToolName is the name participants call the ticket tool by.
const ToolName = "create_ticket"

// NotConfiguredText is the reply when no tracker is configured.
const NotConfiguredText = "The ticket tracker is not configured; no ticket was created."

type ticketArgs struct {
	Title        string `json:"title" description:"Short summary of the issue"`
	CustomerName string `json:"customerName" description:"Customer or team the issue belongs to"`
	Description  string `json:"description" description:"Full description with the details the user gave"`
}

// NewTool exposes creator as the create_ticket tool. A rejected ticket is
// reported as text; the participant decides how to go on. A nil creator
// yields NotConfiguredText.
func NewTool(creator Creator, logger logging.Logger) tool.Tool {
	log := logging.OrNoOp(logger)
	return tool.NewFunctionToolFromStruct(
		ToolName,
		"Create an issue in the ticket tracker from a title, the customer name and a description.",
		ticketArgs{},
		func(ctx context.Context, args map[string]any) (any, error) {
			t := Ticket{
				Title:        tool.StringArg(args, "title"),
				CustomerName: tool.StringArg(args, "customerName"),
				Description:  tool.StringArg(args, "description"),
			}
			if creator == nil {
				log.Warn("jira.create.unconfigured", "title", t.Title)
				return NotConfiguredText, nil
			}
			issue, err := creator.CreateIssue(ctx, t)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				log.Warn("jira.create.failed", "title", t.Title, "error", err)
				return fmt.Sprintf("Ticket %q could not be created: %v", t.Title, err), nil
			}
			log.Info("jira.create.done", "key", issue.Key)
			return fmt.Sprintf("Created ticket %s: %s", issue.Key, issue.URL), nil
		},
	)
}
