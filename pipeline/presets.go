package pipeline

import (
	"sort"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/extract"
	"github.com/hupe1980/taskmesh/termination"
)

// Tool names the presets refer to. The tools themselves live in tools/.
const (
	ToolSearchKnowledge = "search_knowledge_base"
	ToolExecuteCommand  = "execute_command"
	ToolCreateTicket    = "create_ticket"
	ToolGetWeather      = "get_weather"
)

// Router answers chat requests by letting a selector pick between
// specialists. The specialist that answers appends TERMINATE, so the result
// is the terminal message with the sentinel stripped.
func Router() Config {
	return Config{
		Name:        "router",
		Description: "Routes a chat request to the knowledge, server, ticket or general specialist.",
		Participants: []core.ParticipantSpec{
			{
				ID:          "knowledge_expert",
				Description: "Questions about products, documents, policies or history that need internal knowledge.",
				RoleDirective: "You are a knowledge base expert. Call search_knowledge_base with the user's original question, " +
					"answer from what it returns and say so when the knowledge base has nothing relevant. " +
					"Finish your reply with TERMINATE. Never reply with TERMINATE alone.",
				Tools: []string{ToolSearchKnowledge},
			},
			{
				ID:          "server_admin",
				Description: "Server maintenance, service restarts, status checks and log analysis; runs real commands.",
				RoleDirective: "You are a server administration expert. For any request about server state or operations, " +
					"call execute_command and reply with the complete tool output without summarising it. " +
					"Finish your reply with TERMINATE.",
				Tools: []string{ToolExecuteCommand},
			},
			{
				ID:          "ticket_specialist",
				Description: "Requests that explicitly ask to file issue tracker tickets.",
				RoleDirective: "You are an issue tracker specialist. Call create_ticket for every ticket the user asks for " +
					"and reply with the complete tool result, success or failure. Finish your reply with TERMINATE.",
				Tools: []string{ToolCreateTicket},
			},
			{
				ID:          "general_assistant",
				Description: "Small talk, general questions, weather and anything the other specialists do not cover.",
				RoleDirective: "You are a friendly general assistant. Answer in well structured markdown and tell the user " +
					"what else you can do: server administration, knowledge base questions and filing tickets. " +
					"For weather questions call get_weather and pass its table on. " +
					"Cite sources when you have them. Finish your reply with TERMINATE.",
				Tools: []string{ToolGetWeather},
			},
		},
		TurnPolicy: TurnPolicyConfig{Kind: PolicySelector, Default: "general_assistant"},
		Termination: termination.Config{
			Mentions:    []string{"TERMINATE"},
			MaxMessages: 25,
		},
		Extraction:      extract.Extractor{Strategy: extract.SentinelStrip, Sentinel: "TERMINATE"},
		MaxTurns:        25,
		EmptyResultText: "Your request was processed, but no explicit reply was produced.",
	}
}

// Tickets turns free text into validated ticket records. The validator
// answers with the bare marker VALID_JSON, so the payload is the message
// before it.
func Tickets() Config {
	return Config{
		Name:        "tickets",
		Description: "Extracts issue tracker tickets from free text as validated JSON.",
		Participants: []core.ParticipantSpec{
			{
				ID:          "requirements_analyst",
				Description: "Splits the request into individual tickets.",
				RoleDirective: "You are a requirements analyst. Split the user's text into individual tickets. " +
					"For each one name the customer, a short title and a complete description.",
			},
			{
				ID:          "parameter_extractor",
				Description: "Writes the tickets as JSON.",
				RoleDirective: "You convert the analysed tickets into JSON of the form " +
					"{\"jiraList\":[{\"title\":\"...\",\"customerName\":\"...\",\"description\":\"...\"}]}. " +
					"Reply with a single ```json fenced block and nothing else.",
			},
			{
				ID:          "json_validator",
				Description: "Validates the JSON.",
				RoleDirective: "You validate the JSON from the previous message. Every item needs a non-empty title, " +
					"customerName and description. If it is valid reply with exactly VALID_JSON. Otherwise reply with " +
					"the corrected JSON in a ```json fenced block.",
			},
		},
		TurnPolicy:  TurnPolicyConfig{Kind: PolicyRoundRobin},
		Termination: termination.Config{Mentions: []string{"VALID_JSON"}, MaxMessages: 9},
		Extraction: extract.Extractor{
			Strategy:       extract.Penultimate,
			Structured:     true,
			RecordsPath:    "jiraList",
			RequiredFields: []string{"title", "customerName", "description"},
		},
		MaxTurns: 9,
	}
}

// Command plans, reviews and runs a shell command on a remote host. The
// executor appends TERMINATE after the command output.
func Command() Config {
	return Config{
		Name:        "command",
		Description: "Generates, vets, optimises and executes a remote shell command.",
		Participants: []core.ParticipantSpec{
			{
				ID:          "command_generator",
				Description: "Writes the Linux command.",
				RoleDirective: "You generate a Linux command for the user's request. Return only a command that runs " +
					"inside an existing SSH session: no ssh prefix, no explanations, sudo only when required.",
			},
			{
				ID:          "command_analyzer",
				Description: "Checks the command for interactive or long running behaviour.",
				RoleDirective: "You review the previous command. Check whether it is interactive, may hang, waits for " +
					"confirmation or opens a pager or editor. Reply SAFE_COMMAND, or PROBLEMATIC_COMMAND: followed by the problem.",
			},
			{
				ID:          "command_optimizer",
				Description: "Rewrites problematic commands into safe equivalents.",
				RoleDirective: "If the command was marked SAFE_COMMAND repeat it unchanged. If it was marked " +
					"PROBLEMATIC_COMMAND write an equivalent one-shot command (snapshot instead of monitor, print " +
					"instead of page or edit). Reply with the command followed by EXECUTE_COMMAND.",
			},
			{
				ID:          "command_executor",
				Description: "Runs the final command.",
				RoleDirective: "Take the command before EXECUTE_COMMAND in the previous message, run it with " +
					"execute_command and reply with the raw tool output followed by TERMINATE.",
				Tools: []string{ToolExecuteCommand},
			},
		},
		TurnPolicy:  TurnPolicyConfig{Kind: PolicyRoundRobin},
		Termination: termination.Config{Mentions: []string{"TERMINATE"}, MaxMessages: 15},
		Extraction:  extract.Extractor{Strategy: extract.SentinelStrip, Sentinel: "TERMINATE"},
		MaxTurns:    15,
	}
}

// Report writes a weekly report and has it reviewed. The reviewer approves
// with "FINAL_REPORT_APPROVED:" followed by the report, usually fenced as
// markdown.
func Report() Config {
	return Config{
		Name:        "report",
		Description: "Summarises raw work logs into a reviewed weekly report.",
		Participants: []core.ParticipantSpec{
			{
				ID:          "summarizer",
				Description: "Drafts the weekly report.",
				RoleDirective: "You write weekly reports from raw work logs. Use markdown with level three and four " +
					"headings only, no report title and no closing summary. Keep it formal, concise and written the way " +
					"an engineer would write it.",
			},
			{
				ID:          "reviewer",
				Description: "Reviews the draft and approves it.",
				RoleDirective: "You review the weekly report draft for structure, grammar, tone and heading levels. " +
					"If it needs work, list concrete fixes. If it is acceptable reply with " +
					"FINAL_REPORT_APPROVED: followed by the final report.",
				Model: "reviewer",
			},
		},
		TurnPolicy:  TurnPolicyConfig{Kind: PolicyRoundRobin},
		Termination: termination.Config{Mentions: []string{"FINAL_REPORT_APPROVED:"}, MaxMessages: 6},
		Extraction: extract.Extractor{
			Strategy:    extract.SentinelStrip,
			Sentinel:    "FINAL_REPORT_APPROVED:",
			StripFences: []string{"markdown"},
		},
		MaxTurns: 6,
	}
}

// Presets returns the built-in pipelines keyed by name.
func Presets() map[string]Config {
	out := map[string]Config{}
	for _, c := range []Config{Router(), Tickets(), Command(), Report()} {
		out[c.Name] = c
	}
	return out
}

// PresetNames returns the built-in pipeline names, sorted.
func PresetNames() []string {
	names := make([]string, 0, 4)
	for n := range Presets() {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
