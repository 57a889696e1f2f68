// Package jira files issues in a Jira project and exposes that as the
// create_ticket tool.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

// Config locates the Jira instance and project.
type Config struct {
	BaseURL    string        `mapstructure:"base_url" yaml:"base_url"`
	User       string        `mapstructure:"user" yaml:"user"`
	APIToken   string        `mapstructure:"api_token" yaml:"api_token"`
	ProjectKey string        `mapstructure:"project_key" yaml:"project_key"`
	IssueType  string        `mapstructure:"issue_type" yaml:"issue_type"`
	Labels     []string      `mapstructure:"labels" yaml:"labels"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// Concurrency bounds BulkCreate.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

// Ticket is what a participant asks to file.
type Ticket struct {
	Title        string `json:"title"`
	CustomerName string `json:"customerName"`
	Description  string `json:"description"`
}

// Issue identifies a created issue.
type Issue struct {
	ID  string `json:"id"`
	Key string `json:"key"`
	URL string `json:"url"`
}

// APIError is a non-2xx answer from Jira.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jira returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Creator files issues.
type Creator interface {
	CreateIssue(ctx context.Context, t Ticket) (Issue, error)
}

// Client talks to the Jira REST API v2.
type Client struct {
	cfg  Config
	http *http.Client
}

var _ Creator = (*Client)(nil)

// NewClient validates cfg. A nil httpClient uses one with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	if cfg.BaseURL == "" || cfg.ProjectKey == "" {
		return nil, errors.New("jira: base_url and project_key are required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.IssueType == "" {
		cfg.IssueType = "Task"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient}, nil
}

// CreateIssue posts one issue.
func (c *Client) CreateIssue(ctx context.Context, t Ticket) (Issue, error) {
	if strings.TrimSpace(t.Title) == "" {
		return Issue{}, errors.New("jira: ticket title is required")
	}

	description := t.Description
	if t.CustomerName != "" {
		description = fmt.Sprintf("Customer: %s\n\n%s", t.CustomerName, t.Description)
	}
	fields := map[string]any{
		"project":     map[string]any{"key": c.cfg.ProjectKey},
		"summary":     t.Title,
		"description": description,
		"issuetype":   map[string]any{"name": c.cfg.IssueType},
	}
	if len(c.cfg.Labels) > 0 {
		fields["labels"] = c.cfg.Labels
	}
	body, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return Issue{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/rest/api/2/issue", bytes.NewReader(body))
	if err != nil {
		return Issue{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.User != "" {
		req.SetBasicAuth(c.cfg.User, c.cfg.APIToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Issue{}, fmt.Errorf("jira request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Issue{}, fmt.Errorf("jira response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Issue{}, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	parsed := gjson.ParseBytes(data)
	key := parsed.Get("key").String()
	if key == "" {
		return Issue{}, fmt.Errorf("jira response without issue key: %s", data)
	}
	return Issue{
		ID:  parsed.Get("id").String(),
		Key: key,
		URL: c.cfg.BaseURL + "/browse/" + key,
	}, nil
}

// Outcome is the result of one ticket in a bulk run.
type Outcome struct {
	Ticket Ticket
	Issue  Issue
	Err    error
}

// BulkCreate files every ticket with bounded concurrency. Individual
// failures are reported per Outcome and never stop the batch; outcomes
// keep the input order.
func BulkCreate(ctx context.Context, creator Creator, tickets []Ticket, concurrency int) []Outcome {
	if concurrency <= 0 {
		concurrency = 4
	}
	out := make([]Outcome, len(tickets))
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, t := range tickets {
		g.Go(func() error {
			issue, err := creator.CreateIssue(ctx, t)
			out[i] = Outcome{Ticket: t, Issue: issue, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Concurrency returns the configured bulk concurrency.
func (c *Client) Concurrency() int { return c.cfg.Concurrency }

// TicketsFromRecords converts extracted records (title, customerName,
// description) into tickets.
func TicketsFromRecords(records []map[string]any) []Ticket {
	tickets := make([]Ticket, 0, len(records))
	for _, r := range records {
		str := func(k string) string {
			s, _ := r[k].(string)
			return strings.TrimSpace(s)
		}
		tickets = append(tickets, Ticket{
			Title:        str("title"),
			CustomerName: str("customerName"),
			Description:  str("description"),
		})
	}
	return tickets
}

// FormatReport renders bulk outcomes as a markdown report.
func FormatReport(outcomes []Outcome) string {
	var ok, failed []string
	for _, o := range outcomes {
		if o.Err == nil {
			ok = append(ok, fmt.Sprintf("- **%s**: [%s](%s)", o.Ticket.Title, o.Issue.Key, o.Issue.URL))
			continue
		}
		details := o.Err.Error()
		if len(details) > 200 {
			details = details[:200] + "..."
		}
		failed = append(failed, fmt.Sprintf("- **%s**: %s", o.Ticket.Title, details))
	}

	lines := []string{"## Jira bulk creation report"}
	if len(ok) > 0 {
		lines = append(lines, "", "### Created")
		lines = append(lines, ok...)
	}
	if len(failed) > 0 {
		lines = append(lines, "", "### Failed")
		lines = append(lines, failed...)
	}
	if len(outcomes) == 0 {
		lines = append(lines, "", "No tickets were processed.")
	}
	return strings.Join(lines, "\n")
}
