// Package report renders project summaries from document metadata, optionally
// polished by an external text-completion backend. The backend is best-effort
// only: any failure degrades to a deterministic report built from local data,
// and its transport errors never reach the caller.
package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"corevault.org/internal/document"
	"corevault.org/internal/obs"
)

const maxBundleDocuments = 50

var defaultSections = []string{
	"1. Project Summary",
	"2. Key Documents & Evidence",
	"3. Activities Timeline",
	"4. Commodities & Targets",
	"5. Data Gaps & Next Steps",
}

const systemInstructions = `You are a technical writer generating concise mining/exploration project reports.
Write clearly and factually, using only the provided context. If data is missing, say so briefly.
Output Markdown. Keep it structured with headings.
Audience: internal stakeholders (technical + managerial).`

// Bundle is the local data a report is generated from.
type Bundle struct {
	ProcessID   string
	ProcessName string
	Mode        string
	Commodity   string
	Documents   []document.Document
}

// Result is a generated report plus how it was produced.
type Result struct {
	Markdown string `json:"markdown"`
	// Fallback is true when the completion backend failed and the report was
	// rendered locally instead.
	Fallback    bool      `json:"fallback"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Service generates reports over the document store.
type Service struct {
	docs      *document.Service
	completer Completer
	timeout   time.Duration
	now       func() time.Time
}

// NewService constructs the report service. A nil completer is allowed and
// means every report takes the fallback path.
func NewService(docs *document.Service, completer Completer, timeout time.Duration) (*Service, error) {
	if docs == nil {
		return nil, errors.New("document service is required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{docs: docs, completer: completer, timeout: timeout, now: time.Now}, nil
}

// FetchBundle gathers the process documents a report is built from.
func (s *Service) FetchBundle(ctx context.Context, processID, processName, mode, commodity string) (Bundle, error) {
	docs, err := s.docs.ListByProcess(ctx, processID)
	if err != nil {
		return Bundle{}, err
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt.After(docs[j].CreatedAt) })
	if len(docs) > maxBundleDocuments {
		docs = docs[:maxBundleDocuments]
	}
	return Bundle{
		ProcessID:   processID,
		ProcessName: processName,
		Mode:        mode,
		Commodity:   commodity,
		Documents:   docs,
	}, nil
}

// Generate renders the report, preferring the completion backend and falling
// back to a deterministic local rendering on any backend failure.
func (s *Service) Generate(ctx context.Context, bundle Bundle) Result {
	generated := s.now().UTC()
	if s.completer != nil {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		text, err := s.completer.Complete(callCtx, BuildPrompt(BuildContext(bundle), generated))
		if err == nil && strings.TrimSpace(text) != "" {
			return Result{Markdown: text, GeneratedAt: generated}
		}
		if err != nil {
			obs.LogRequest(map[string]any{
				"level": "warn",
				"msg":   "report backend failed, using fallback",
				"error": err.Error(),
			})
		}
	}
	return Result{Markdown: FallbackReport(bundle, generated), Fallback: true, GeneratedAt: generated}
}

// BuildContext converts the bundle into a compact context block.
func BuildContext(bundle Bundle) string {
	var b strings.Builder
	b.WriteString("PROCESS\n")
	fmt.Fprintf(&b, "  id: %s\n", bundle.ProcessID)
	fmt.Fprintf(&b, "  name: %s\n", bundle.ProcessName)
	fmt.Fprintf(&b, "  mode: %s\n", bundle.Mode)
	fmt.Fprintf(&b, "  commodity: %s\n", bundle.Commodity)
	b.WriteString("\nDOCUMENTS (latest up to 50)\n")
	for _, d := range bundle.Documents {
		fmt.Fprintf(&b, "  - {id: %s, title: %q, type: %s, conf: %s, created_at: %s}\n",
			d.ID, d.Title, d.DocType, d.Confidentiality, d.CreatedAt.Format("2006-01-02 15:04"))
	}
	return b.String()
}

// BuildPrompt assembles the full completion prompt.
func BuildPrompt(context string, asOf time.Time) string {
	var b strings.Builder
	b.WriteString(systemInstructions)
	b.WriteString("\n\nDATE: ")
	b.WriteString(asOf.Format("2006-01-02"))
	b.WriteString("\n\nCONTEXT:\n")
	b.WriteString(context)
	b.WriteString("\nTASK:\nWrite the report with these sections:\n")
	for _, s := range defaultSections {
		b.WriteString(s)
		b.WriteString("\n")
	}
	return b.String()
}

// FallbackReport renders the deterministic local report used when the
// completion backend is unavailable.
func FallbackReport(bundle Bundle, asOf time.Time) string {
	var b strings.Builder
	name := bundle.ProcessName
	if name == "" {
		name = bundle.ProcessID
	}
	fmt.Fprintf(&b, "# Project Report: %s\n\n", name)
	fmt.Fprintf(&b, "_Generated %s from local records (automated summary unavailable)._\n\n", asOf.Format("2006-01-02"))
	fmt.Fprintf(&b, "## Project Summary\n\n- Mode: %s\n- Commodity: %s\n- Documents on record: %d\n\n", bundle.Mode, bundle.Commodity, len(bundle.Documents))
	b.WriteString("## Key Documents\n\n")
	if len(bundle.Documents) == 0 {
		b.WriteString("No documents recorded for this project.\n")
		return b.String()
	}
	for _, d := range bundle.Documents {
		fmt.Fprintf(&b, "- %s (%s, %s, added %s)\n", d.Title, orDash(d.DocType), d.Confidentiality, d.CreatedAt.Format("2006-01-02"))
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
