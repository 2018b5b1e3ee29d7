// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package score

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"

	"github.com/pdiddy/discovery-engine/pkg/types"
)

// singlePromptTmpl scores one paper. The model must answer with a single
// JSON object and nothing else.
var singlePromptTmpl = template.Must(template.New("single").Funcs(template.FuncMap{"join": strings.Join}).Parse(`You are a research relevance assessment system. Judge how relevant the following paper is to the research topic.

Research topic: {{.Topic}}
{{if .Questions}}
Research questions:
{{range .Questions}}- {{.}}
{{end}}{{end}}
Paper:
Title: {{.Paper.Title}}
{{if .Paper.Authors}}Authors: {{join .Paper.Authors ", "}}
{{end}}{{if .Paper.Year}}Year: {{.Paper.Year}}
{{end}}{{if .Paper.Venue}}Venue: {{.Paper.Venue}}
{{end}}{{if .Paper.Abstract}}Abstract: {{.Paper.Abstract}}
{{end}}
Respond with a JSON object: {"relevance_score": <float between 0.0 and 1.0>, "reasoning": "<one sentence>"}. Do not include any text outside the JSON object.
`))

// chunkPromptTmpl scores a whole chunk in one call. The model must answer
// with a JSON array keyed by DOI so responses can be matched back to the
// request papers.
var chunkPromptTmpl = template.Must(template.New("chunk").Parse(`You are a research relevance assessment system. Judge how relevant each of the following papers is to the research topic. Seeing the papers together, calibrate the scores against each other.

Research topic: {{.Topic}}
{{if .Questions}}
Research questions:
{{range .Questions}}- {{.}}
{{end}}{{end}}
Papers:
{{range .Papers}}
DOI: {{.DOI}}
Title: {{.Title}}
{{if .Year}}Year: {{.Year}}
{{end}}{{if .Abstract}}Abstract: {{.Abstract}}
{{end}}{{end}}
Respond with a JSON array with one element per paper: [{"doi": "<doi exactly as given>", "relevance_score": <float between 0.0 and 1.0>, "reasoning": "<one sentence>"}, ...]. Include every DOI from the request. Do not include any text outside the JSON array.
`))

// claudeAPIURL is the Claude API endpoint. Package-level var for test
// substitution.
var claudeAPIURL = "https://api.anthropic.com/v1/messages"

// ClaudeBackend scores papers by calling the Claude Messages API.
type ClaudeBackend struct {
	APIKey string
	Model  string
	Client *http.Client
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []claudeContent `json:"content"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// singleScoreResponse is the JSON contract for a one-paper call.
type singleScoreResponse struct {
	RelevanceScore float64 `json:"relevance_score"`
	Reasoning      string  `json:"reasoning"`
}

// chunkScoreEntry is one element of the JSON array a chunk call returns.
type chunkScoreEntry struct {
	DOI            string  `json:"doi"`
	RelevanceScore float64 `json:"relevance_score"`
	Reasoning      string  `json:"reasoning"`
}

// ScorePaper renders the single-paper prompt and parses the JSON object
// response.
func (c *ClaudeBackend) ScorePaper(ctx context.Context, req Request, paper types.Paper) (float64, error) {
	var buf bytes.Buffer
	err := singlePromptTmpl.Execute(&buf, struct {
		Topic     string
		Questions []string
		Paper     types.Paper
	}{Topic: req.Topic, Questions: req.Questions, Paper: paper})
	if err != nil {
		return 0, fmt.Errorf("rendering prompt: %w", err)
	}

	text, err := c.complete(ctx, buf.String())
	if err != nil {
		return 0, err
	}

	var resp singleScoreResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return 0, fmt.Errorf("parsing relevance response: %w", err)
	}
	return resp.RelevanceScore, nil
}

// ScoreChunk renders the chunk prompt and parses the JSON array response
// into a DOI-keyed score map. DOIs the model omitted are simply absent
// from the map; the caller decides what that means.
func (c *ClaudeBackend) ScoreChunk(ctx context.Context, req Request, papers []types.Paper) (map[string]float64, error) {
	var buf bytes.Buffer
	err := chunkPromptTmpl.Execute(&buf, struct {
		Topic     string
		Questions []string
		Papers    []types.Paper
	}{Topic: req.Topic, Questions: req.Questions, Papers: papers})
	if err != nil {
		return nil, fmt.Errorf("rendering prompt: %w", err)
	}

	text, err := c.complete(ctx, buf.String())
	if err != nil {
		return nil, err
	}

	var entries []chunkScoreEntry
	if err := json.Unmarshal([]byte(text), &entries); err != nil {
		return nil, fmt.Errorf("parsing batch relevance response: %w", err)
	}

	scores := make(map[string]float64, len(entries))
	for _, e := range entries {
		scores[types.NormalizeDOI(e.DOI)] = e.RelevanceScore
	}
	return scores, nil
}

// complete sends one user message to the Claude API and returns the text
// of the first text content block.
func (c *ClaudeBackend) complete(ctx context.Context, prompt string) (string, error) {
	reqBody := claudeRequest{
		Model:     c.Model,
		MaxTokens: 4096,
		Messages:  []claudeMessage{{Role: "user", Content: prompt}},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claudeAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling Claude API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("Claude API returned %d: %s", resp.StatusCode, string(body))
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return "", fmt.Errorf("decoding Claude response: %w", err)
	}

	for _, block := range cResp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in Claude API response")
}
